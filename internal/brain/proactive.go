package brain

import (
	"math/rand"
	"sync"
	"time"
)

// Proactive gating: at most one unprompted message per interval, only during
// waking hours, never repeating any of the last few messages.
const (
	proactiveRecentLen = 5
	proactiveHourFrom  = 11
	proactiveHourTo    = 23
)

// proactiveCategory groups messages with a selection weight.
type proactiveCategory struct {
	weight   int
	messages []string
}

var proactiveCategories = []proactiveCategory{
	{30, []string{
		"밖에 날씨가 궁금하지 않아요? 물어보면 알려드릴게요.",
		"오늘 하루는 어땠어요?",
		"물 한 잔 마실 시간이에요.",
	}},
	{30, []string{
		"저 심심해요. 말 걸어 주세요!",
		"혹시 제가 도울 일이 있을까요?",
		"요즘 재밌는 일 있었어요?",
	}},
	{20, []string{
		"잠깐 스트레칭 한번 어때요?",
		"눈도 쉬어 줄 겸 먼 곳을 한번 바라봐요.",
	}},
	{20, []string{
		"오늘 일정 확인해 볼까요?",
		"내일 계획 세워 둔 거 있어요?",
	}},
}

// Proactive decides when the assistant speaks unprompted and what it says.
type Proactive struct {
	interval time.Duration
	rng      *rand.Rand
	now      func() time.Time

	mu     sync.Mutex
	last   time.Time
	recent []string
}

// NewProactive creates a picker firing at most once per interval.
func NewProactive(interval time.Duration) *Proactive {
	if interval <= 0 {
		interval = 1800 * time.Second
	}
	return &Proactive{
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
}

// Next returns an unprompted message when one is due. It returns ok=false
// outside waking hours, inside the interval since the last message, or when
// every candidate was said recently.
func (p *Proactive) Next() (string, bool) {
	now := p.now()
	if h := now.Hour(); h < proactiveHourFrom || h > proactiveHourTo {
		return "", false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return "", false
	}

	msg, ok := p.pick()
	if !ok {
		return "", false
	}
	p.last = now
	p.recent = append(p.recent, msg)
	if len(p.recent) > proactiveRecentLen {
		p.recent = p.recent[len(p.recent)-proactiveRecentLen:]
	}
	return msg, true
}

// pick draws a weighted category, then a message from it that was not said
// recently. Must be called with mu held.
func (p *Proactive) pick() (string, bool) {
	total := 0
	for _, c := range proactiveCategories {
		total += c.weight
	}

	// A few draws are enough; with five recent messages across four
	// categories a fresh candidate almost always exists.
	for attempt := 0; attempt < 10; attempt++ {
		n := p.rng.Intn(total)
		var cat proactiveCategory
		for _, c := range proactiveCategories {
			if n < c.weight {
				cat = c
				break
			}
			n -= c.weight
		}
		msg := cat.messages[p.rng.Intn(len(cat.messages))]
		if !p.saidRecently(msg) {
			return msg, true
		}
	}
	return "", false
}

func (p *Proactive) saidRecently(msg string) bool {
	for _, r := range p.recent {
		if r == msg {
			return true
		}
	}
	return false
}
