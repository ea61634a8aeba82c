package brain

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// weatherCacheTTL bounds how often the weather API is hit; the answer does
// not change fast enough to justify one call per question.
const weatherCacheTTL = 300 * time.Second

// rssHeadlines is how many feed items a news answer quotes.
const rssHeadlines = 3

var koreanWeekdays = [...]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}

// TimeLine renders the current date and time the way the assistant speaks it.
func TimeLine(now time.Time) string {
	hour := now.Hour()
	meridiem := "오전"
	h12 := hour
	if hour >= 12 {
		meridiem = "오후"
		if hour > 12 {
			h12 = hour - 12
		}
	}
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d년 %d월 %d일 %s %s %d시 %d분",
		now.Year(), int(now.Month()), now.Day(),
		koreanWeekdays[now.Weekday()], meridiem, h12, now.Minute())
}

// ---- weather ----

// Weather fetches current conditions from OpenWeatherMap for a fixed
// location and caches the rendered line.
type Weather struct {
	apiKey  string
	lat     float64
	lon     float64
	baseURL string
	httpc   *http.Client
	now     func() time.Time

	mu       sync.Mutex
	cached   string
	cachedAt time.Time
}

// NewWeather creates a client for the given coordinates. An empty API key
// disables the service; Current then returns "".
func NewWeather(apiKey string, lat, lon float64) *Weather {
	return &Weather{
		apiKey:  apiKey,
		lat:     lat,
		lon:     lon,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		httpc:   &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
}

type owmResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
}

// Current returns a one-line Korean weather summary, served from cache
// within the TTL.
func (w *Weather) Current(ctx context.Context) (string, error) {
	if w.apiKey == "" {
		return "", nil
	}

	w.mu.Lock()
	if w.cached != "" && w.now().Sub(w.cachedAt) < weatherCacheTTL {
		line := w.cached
		w.mu.Unlock()
		return line, nil
	}
	w.mu.Unlock()

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", w.lat))
	q.Set("lon", fmt.Sprintf("%.4f", w.lon))
	q.Set("appid", w.apiKey)
	q.Set("units", "metric")
	q.Set("lang", "kr")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("brain: build weather request: %w", err)
	}
	resp, err := w.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("brain: fetch weather: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("brain: weather API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("brain: decode weather response: %w", err)
	}
	desc := "알 수 없음"
	if len(out.Weather) > 0 {
		desc = out.Weather[0].Description
	}
	line := fmt.Sprintf("현재 날씨는 %s, 기온 %.1f도(체감 %.1f도), 습도 %d%%",
		desc, out.Main.Temp, out.Main.FeelsLike, out.Main.Humidity)

	w.mu.Lock()
	w.cached, w.cachedAt = line, w.now()
	w.mu.Unlock()
	return line, nil
}

// ---- RSS ----

// RSS fetches headlines from one feed.
type RSS struct {
	feedURL string
	httpc   *http.Client
}

// NewRSS creates a reader for feedURL. An empty URL disables the service.
func NewRSS(feedURL string) *RSS {
	return &RSS{feedURL: feedURL, httpc: &http.Client{Timeout: 10 * time.Second}}
}

type rssDoc struct {
	Channel struct {
		Items []struct {
			Title string `xml:"title"`
		} `xml:"item"`
	} `xml:"channel"`
}

// Headlines returns the top feed item titles.
func (r *RSS) Headlines(ctx context.Context) ([]string, error) {
	if r.feedURL == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("brain: build feed request: %w", err)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brain: fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brain: feed status %d", resp.StatusCode)
	}

	var doc rssDoc
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("brain: decode feed: %w", err)
	}
	var titles []string
	for _, item := range doc.Channel.Items {
		if t := strings.TrimSpace(item.Title); t != "" {
			titles = append(titles, t)
		}
		if len(titles) == rssHeadlines {
			break
		}
	}
	return titles, nil
}

// ---- timers ----

var (
	minutesRe = regexp.MustCompile(`(\d+)\s*분`)
	secondsRe = regexp.MustCompile(`(\d+)\s*초`)
)

// timer is one pending countdown.
type timer struct {
	due   time.Time
	label string
}

// Timers holds countdowns set by voice ("3분 타이머").
type Timers struct {
	mu     sync.Mutex
	active []timer
	now    func() time.Time
}

// NewTimers returns an empty timer set.
func NewTimers() *Timers {
	return &Timers{now: time.Now}
}

// ParseDuration extracts a countdown length from the utterance; ok is false
// when no duration is present.
func ParseDuration(text string) (time.Duration, bool) {
	var d time.Duration
	if m := minutesRe.FindStringSubmatch(text); m != nil {
		d += time.Duration(atoiSafe(m[1])) * time.Minute
	}
	if m := secondsRe.FindStringSubmatch(text); m != nil {
		d += time.Duration(atoiSafe(m[1])) * time.Second
	}
	return d, d > 0
}

// SetFromText starts a countdown when the utterance contains a duration.
// The returned line confirms what was set.
func (t *Timers) SetFromText(text string) (string, bool) {
	d, ok := ParseDuration(text)
	if !ok {
		return "", false
	}
	t.mu.Lock()
	t.active = append(t.active, timer{due: t.now().Add(d), label: formatDuration(d)})
	t.mu.Unlock()
	return fmt.Sprintf("%s 타이머를 맞췄어요", formatDuration(d)), true
}

// Expired pops every countdown that has run out and returns their
// announcement lines.
func (t *Timers) Expired() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var done []string
	remaining := t.active[:0]
	for _, tm := range t.active {
		if !tm.due.After(now) {
			done = append(done, fmt.Sprintf("%s 타이머가 끝났어요!", tm.label))
		} else {
			remaining = append(remaining, tm)
		}
	}
	t.active = remaining
	return done
}

// Status describes the running countdowns.
func (t *Timers) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.active) == 0 {
		return "지금 맞춰 둔 타이머는 없어요"
	}
	now := t.now()
	parts := make([]string, 0, len(t.active))
	for _, tm := range t.active {
		left := tm.due.Sub(now).Round(time.Second)
		if left < 0 {
			left = 0
		}
		parts = append(parts, fmt.Sprintf("%s 타이머 %s 남음", tm.label, formatDuration(left)))
	}
	return strings.Join(parts, ", ")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d / time.Minute)
	s := int(d/time.Second) % 60
	switch {
	case m > 0 && s > 0:
		return fmt.Sprintf("%d분 %d초", m, s)
	case m > 0:
		return fmt.Sprintf("%d분", m)
	default:
		return fmt.Sprintf("%d초", s)
	}
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
		if n > 1<<20 {
			return 1 << 20
		}
	}
	return n
}
