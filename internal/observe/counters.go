package observe

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Counters accumulates per-stage call counts and latencies for the lifetime
// of the process. It backs the summary banner printed at shutdown; the OTel
// instruments in [Metrics] cover live scraping, but a scrape target is gone
// by the time the process exits, so the banner is kept separately.
//
// Safe for concurrent use.
type Counters struct {
	mu     sync.Mutex
	stages map[string]*stageStat

	turns   map[string]int64 // by outcome
	drops   int64
	rejects int64
	started time.Time
}

// stageStat is the cumulative latency record of one pipeline stage.
type stageStat struct {
	count int64
	total time.Duration
}

// NewCounters returns an empty Counters anchored at the current time.
func NewCounters() *Counters {
	return &Counters{
		stages:  make(map[string]*stageStat),
		turns:   make(map[string]int64),
		started: time.Now(),
	}
}

// Observe records one completed call of the named stage ("stt", "llm",
// "tts", "turn").
func (c *Counters) Observe(stage string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stages[stage]
	if s == nil {
		s = &stageStat{}
		c.stages[stage] = s
	}
	s.count++
	s.total += d
}

// IncrTurn records one finished turn by outcome ("ok", "unsure", "empty",
// "error").
func (c *Counters) IncrTurn(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns[outcome]++
}

// IncrDrop records one evicted queue job.
func (c *Counters) IncrDrop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drops++
}

// IncrReject records one stream rejected by the input gate.
func (c *Counters) IncrReject() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejects++
}

// Summary renders the cumulative statistics as a multi-line banner for the
// shutdown log.
func (c *Counters) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.WriteString("session statistics\n")
	fmt.Fprintf(&b, "  uptime: %s\n", time.Since(c.started).Round(time.Second))

	stageNames := make([]string, 0, len(c.stages))
	for name := range c.stages {
		stageNames = append(stageNames, name)
	}
	sort.Strings(stageNames)
	for _, name := range stageNames {
		s := c.stages[name]
		avg := time.Duration(0)
		if s.count > 0 {
			avg = s.total / time.Duration(s.count)
		}
		fmt.Fprintf(&b, "  %-5s calls=%d total=%s avg=%s\n",
			name, s.count, s.total.Round(time.Millisecond), avg.Round(time.Millisecond))
	}

	outcomes := make([]string, 0, len(c.turns))
	for o := range c.turns {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(&b, "  turns[%s]=%d\n", o, c.turns[o])
	}
	fmt.Fprintf(&b, "  queue drops=%d gate rejects=%d", c.drops, c.rejects)
	return b.String()
}
