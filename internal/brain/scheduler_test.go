package brain

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var schedNow = time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)

func TestParseWhen(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"today afternoon", "오늘 오후 6시에 약속", time.Date(2026, 8, 25, 18, 0, 0, 0, time.UTC)},
		{"tomorrow morning", "내일 오전 9시 30분 회의", time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)},
		{"day after tomorrow", "모레 오후 2시", time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC)},
		{"bare hour", "7시에 보자", time.Date(2026, 8, 25, 19, 0, 0, 0, time.UTC)},
		{"past rolls forward", "오전 9시 병원", time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)},
		{"no clock defaults an hour out", "저녁에 보자", schedNow.Add(time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseWhen(tt.in, schedNow); !got.Equal(tt.want) {
				t.Errorf("ParseWhen(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSchedulerAddAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	s, err := NewScheduler(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return schedNow }

	line, ok := s.AddFromText("내일 오전 10시 병원 일정 추가해줘")
	if !ok {
		t.Fatal("AddFromText did not recognize a scheduling request")
	}
	if !strings.Contains(line, "병원") {
		t.Errorf("confirmation = %q", line)
	}

	if _, ok := s.AddFromText("오늘 날씨 어때"); ok {
		t.Error("non-scheduling text created an event")
	}

	// A fresh scheduler sees the persisted event.
	s2, err := NewScheduler(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	s2.now = func() time.Time { return schedNow }
	if got := len(s2.events); got != 1 {
		t.Fatalf("persisted events = %d, want 1", got)
	}
	if s2.events[0].Title != "병원" {
		t.Errorf("title = %q, want 병원", s2.events[0].Title)
	}
	if want := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC); !s2.events[0].At.Equal(want) {
		t.Errorf("at = %v, want %v", s2.events[0].At, want)
	}
}

func TestSchedulerReminders(t *testing.T) {
	now := schedNow
	s, err := NewScheduler(filepath.Join(t.TempDir(), "schedule.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return now }

	if _, ok := s.AddFromText("오늘 오후 4시 회의 일정 등록"); !ok {
		t.Fatal("add failed")
	}

	if due := s.DueReminders(); len(due) != 0 {
		t.Errorf("reminder fired an hour early: %q", due)
	}

	now = time.Date(2026, 8, 25, 15, 52, 0, 0, time.UTC)
	due := s.DueReminders()
	if len(due) != 1 || !strings.Contains(due[0], "회의") {
		t.Fatalf("due = %q", due)
	}
	if again := s.DueReminders(); len(again) != 0 {
		t.Errorf("reminder fired twice: %q", again)
	}

	// Once the event passes it is dropped.
	now = time.Date(2026, 8, 25, 16, 1, 0, 0, time.UTC)
	s.DueReminders()
	if got := len(s.events); got != 0 {
		t.Errorf("events after passing = %d, want 0", got)
	}
}

func TestSchedulerTodaySummary(t *testing.T) {
	s, err := NewScheduler(filepath.Join(t.TempDir(), "schedule.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return schedNow }

	if got := s.TodaySummary(); !strings.Contains(got, "없어요") {
		t.Errorf("empty summary = %q", got)
	}

	s.AddFromText("오늘 오후 6시 저녁 약속 추가")
	s.AddFromText("내일 오전 9시 회의 일정 추가")

	got := s.TodaySummary()
	if !strings.Contains(got, "저녁") {
		t.Errorf("summary = %q, missing today's event", got)
	}
	if strings.Contains(got, "회의") {
		t.Errorf("summary = %q, includes tomorrow's event", got)
	}
}
