package brain

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// reminderWindow is how far ahead of an event its reminder fires.
const reminderWindow = 10 * time.Minute

// Event is one scheduled entry, persisted as JSON.
type Event struct {
	Title    string    `json:"title"`
	At       time.Time `json:"at"`
	Reminded bool      `json:"reminded"`
}

// Scheduler keeps voice-created events in a JSON file and surfaces
// reminders shortly before each one.
type Scheduler struct {
	path string
	log  *slog.Logger
	now  func() time.Time

	mu     sync.Mutex
	events []Event
}

// NewScheduler loads the schedule file; a missing file is an empty schedule.
func NewScheduler(path string, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{path: path, log: log, now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.events); err != nil {
			return nil, fmt.Errorf("brain: parse schedule %q: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("brain: read schedule %q: %w", path, err)
	}
	return s, nil
}

var (
	dayWordRe  = regexp.MustCompile(`오늘|내일|모레`)
	clockRe    = regexp.MustCompile(`(오전|오후)?\s*(\d{1,2})시(?:\s*(\d{1,2})분)?`)
	scheduleRe = regexp.MustCompile(`(.+?)\s*(일정|약속)\s*(추가|등록|잡아)`)
)

// ParseWhen resolves a spoken Korean time reference against now.
//
// Day words shift the date (오늘 +0, 내일 +1, 모레 +2); a clock phrase sets
// the time of day, with 오후 adding twelve hours. Without a clock phrase the
// event defaults to one hour from now. A resolved time already in the past
// rolls forward one day.
func ParseWhen(text string, now time.Time) time.Time {
	dayOffset := 0
	switch dayWordRe.FindString(text) {
	case "내일":
		dayOffset = 1
	case "모레":
		dayOffset = 2
	}

	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return now.Add(time.Hour).Truncate(time.Minute)
	}

	hour := atoiSafe(m[2])
	minute := 0
	if m[3] != "" {
		minute = atoiSafe(m[3])
	}
	if m[1] == "오후" && hour < 12 {
		hour += 12
	}

	at := time.Date(now.Year(), now.Month(), now.Day()+dayOffset, hour, minute, 0, 0, now.Location())
	// An unqualified hour that already passed usually means the evening
	// ("7시" said at 3 PM); only then roll a whole day.
	if !at.After(now) && m[1] == "" && hour < 12 {
		at = at.Add(12 * time.Hour)
	}
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// AddFromText creates an event when the utterance looks like a scheduling
// request. The returned line confirms the booking.
func (s *Scheduler) AddFromText(text string) (string, bool) {
	m := scheduleRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	title := strings.TrimSpace(dayWordRe.ReplaceAllString(clockRe.ReplaceAllString(m[1], ""), ""))
	if title == "" {
		title = "일정"
	}
	at := ParseWhen(text, s.now())

	s.mu.Lock()
	s.events = append(s.events, Event{Title: title, At: at})
	sort.Slice(s.events, func(i, j int) bool { return s.events[i].At.Before(s.events[j].At) })
	s.persist()
	s.mu.Unlock()

	return fmt.Sprintf("%s %s 일정을 잡아 두었어요", TimeLine(at), title), true
}

// DueReminders returns the announcement for every event entering its
// reminder window, marking each so it only fires once. Past events are
// dropped once their time has passed.
func (s *Scheduler) DueReminders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var due []string
	changed := false
	kept := s.events[:0]
	for _, e := range s.events {
		if e.At.Before(now) {
			changed = true
			continue
		}
		if !e.Reminded && e.At.Sub(now) <= reminderWindow {
			e.Reminded = true
			changed = true
			due = append(due, fmt.Sprintf("%s에 %s 일정이 있어요", TimeLine(e.At), e.Title))
		}
		kept = append(kept, e)
	}
	s.events = kept
	if changed {
		s.persist()
	}
	return due
}

// TodaySummary describes today's remaining events for the reference block.
func (s *Scheduler) TodaySummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var parts []string
	for _, e := range s.events {
		if e.At.Before(now) {
			continue
		}
		if e.At.Year() == now.Year() && e.At.YearDay() == now.YearDay() {
			parts = append(parts, fmt.Sprintf("%s %s", TimeLine(e.At), e.Title))
		}
	}
	if len(parts) == 0 {
		return "오늘 남은 일정은 없어요"
	}
	return "오늘 일정: " + strings.Join(parts, ", ")
}

// persist writes the schedule file. Must be called with mu held.
func (s *Scheduler) persist() {
	data, err := json.MarshalIndent(s.events, "", "  ")
	if err != nil {
		s.log.Warn("schedule encode failed", "err", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.log.Warn("schedule write failed", "err", err)
	}
}
