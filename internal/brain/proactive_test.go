package brain

import (
	"math/rand"
	"testing"
	"time"
)

func newTestProactive(interval time.Duration) (*Proactive, *time.Time) {
	now := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)
	p := NewProactive(interval)
	p.rng = rand.New(rand.NewSource(1))
	p.now = func() time.Time { return now }
	return p, &now
}

func TestProactiveInterval(t *testing.T) {
	p, now := newTestProactive(30 * time.Minute)

	if _, ok := p.Next(); !ok {
		t.Fatal("first Next = not due")
	}
	if _, ok := p.Next(); ok {
		t.Error("second Next fired inside the interval")
	}

	*now = now.Add(31 * time.Minute)
	if _, ok := p.Next(); !ok {
		t.Error("Next not due after the interval passed")
	}
}

func TestProactiveQuietHours(t *testing.T) {
	p, now := newTestProactive(time.Minute)

	for _, hour := range []int{0, 5, 10} {
		*now = time.Date(2026, 8, 25, hour, 30, 0, 0, time.UTC)
		if msg, ok := p.Next(); ok {
			t.Errorf("hour %d: Next = %q, want silence", hour, msg)
		}
	}

	*now = time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	if _, ok := p.Next(); !ok {
		t.Error("Next silent at the start of waking hours")
	}
}

func TestProactiveNoRecentRepeats(t *testing.T) {
	p, now := newTestProactive(time.Minute)

	var msgs []string
	for i := 0; i < proactiveRecentLen+1; i++ {
		msg, ok := p.Next()
		if !ok {
			t.Fatalf("draw %d: nothing due", i)
		}
		msgs = append(msgs, msg)
		*now = now.Add(2 * time.Minute)
	}

	for i := 1; i < len(msgs); i++ {
		lookback := i - proactiveRecentLen
		if lookback < 0 {
			lookback = 0
		}
		for j := lookback; j < i; j++ {
			if msgs[i] == msgs[j] {
				t.Errorf("draw %d repeated recent message %q", i, msgs[i])
			}
		}
	}
}
