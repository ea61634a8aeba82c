package observe

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCountersSummary(t *testing.T) {
	c := NewCounters()
	c.Observe("stt", 200*time.Millisecond)
	c.Observe("stt", 400*time.Millisecond)
	c.Observe("llm", 1*time.Second)
	c.IncrTurn("ok")
	c.IncrTurn("ok")
	c.IncrTurn("unsure")
	c.IncrDrop()
	c.IncrReject()

	s := c.Summary()
	for _, want := range []string{
		"stt   calls=2 total=600ms avg=300ms",
		"llm   calls=1",
		"turns[ok]=2",
		"turns[unsure]=1",
		"queue drops=1 gate rejects=1",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary missing %q:\n%s", want, s)
		}
	}
}

func TestCountersConcurrent(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.Observe("tts", time.Millisecond)
				c.IncrTurn("ok")
			}
		}()
	}
	wg.Wait()

	s := c.Summary()
	if !strings.Contains(s, "tts   calls=800") {
		t.Errorf("Summary missing aggregated tts count:\n%s", s)
	}
	if !strings.Contains(s, "turns[ok]=800") {
		t.Errorf("Summary missing aggregated turn count:\n%s", s)
	}
}

func TestCountersEmptySummary(t *testing.T) {
	s := NewCounters().Summary()
	if !strings.Contains(s, "queue drops=0 gate rejects=0") {
		t.Errorf("empty Summary = %q", s)
	}
}
