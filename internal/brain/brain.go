// Package brain is everything the assistant knows beyond the current
// utterance: file-backed memory, an emotion engine, info services (clock,
// weather, news, timers), a schedule with reminders, and the proactive
// picker that lets the assistant speak unprompted.
//
// The [Brain] façade assembles these collaborators into the three surfaces
// the conversation pipeline consumes: the system prompt, the per-utterance
// reference block, and the post-reply emotion command. Collaborators are
// optional; a nil field simply removes its section.
package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwhan-dev/ccoli/pkg/types"
)

// refreshTimeout bounds the background memory refresh model calls.
const refreshTimeout = 60 * time.Second

// Brain wires the collaborators behind the conversation pipeline.
type Brain struct {
	name        string
	personality string
	log         *slog.Logger

	memory    *Memory
	emotion   *Emotion
	weather   *Weather
	rss       *RSS
	timers    *Timers
	scheduler *Scheduler
	proactive *Proactive

	now func() time.Time

	refreshWG sync.WaitGroup
}

// Options carries the collaborators of a [Brain]. Nil fields disable the
// corresponding feature.
type Options struct {
	Personality string
	Memory      *Memory
	Emotion     *Emotion
	Weather     *Weather
	RSS         *RSS
	Timers      *Timers
	Scheduler   *Scheduler
	Proactive   *Proactive
	Logger      *slog.Logger
}

// New creates a brain for the named assistant.
func New(name string, opts Options) *Brain {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Personality == "" {
		opts.Personality = "cheerful"
	}
	if opts.Emotion == nil {
		opts.Emotion = NewEmotion()
	}
	if opts.Timers == nil {
		opts.Timers = NewTimers()
	}
	return &Brain{
		name:        name,
		personality: opts.Personality,
		log:         opts.Logger,
		memory:      opts.Memory,
		emotion:     opts.Emotion,
		weather:     opts.Weather,
		rss:         opts.RSS,
		timers:      opts.Timers,
		scheduler:   opts.Scheduler,
		proactive:   opts.Proactive,
		now:         time.Now,
	}
}

// SystemPrompt assembles the persona prompt for the next turn. The memory
// snapshot and clock are local; the weather section is fetched concurrently
// and skipped on failure — a missing section must never block a reply.
func (b *Brain) SystemPrompt(ctx context.Context) string {
	var (
		weatherLine string
		schedule    string
	)
	eg, egCtx := errgroup.WithContext(ctx)
	if b.weather != nil {
		eg.Go(func() error {
			line, err := b.weather.Current(egCtx)
			if err != nil {
				b.log.Warn("weather section skipped", "err", err)
				return nil
			}
			weatherLine = line
			return nil
		})
	}
	if b.scheduler != nil {
		eg.Go(func() error {
			schedule = b.scheduler.TodaySummary()
			return nil
		})
	}
	_ = eg.Wait()

	var p strings.Builder
	fmt.Fprintf(&p, "너는 %q라는 이름의 음성 비서야. 성격은 %s.\n", b.name, b.personality)
	p.WriteString("한국어로 짧고 자연스럽게 대답해. 음성으로 읽히니까 목록이나 마크다운은 쓰지 마.\n")
	p.WriteString("대화를 끝내려는 의도가 보이면 대답 끝에 [INTENT:sleep]을, ")
	p.WriteString("로봇 조종 모드를 원하면 [INTENT:mode_robot]을 붙여.\n")

	if b.memory != nil {
		if snap := b.memory.Snapshot(); snap != "" {
			p.WriteString("\n")
			p.WriteString(snap)
			p.WriteString("\n")
		}
	}

	fmt.Fprintf(&p, "\n지금은 %s.", TimeLine(b.now()))
	if weatherLine != "" {
		fmt.Fprintf(&p, " %s.", weatherLine)
	}
	if schedule != "" {
		fmt.Fprintf(&p, " %s.", schedule)
	}
	return p.String()
}

// ReferenceData returns factual lines matching the utterance, or "" when no
// service applies. Timer and schedule requests have side effects here: the
// countdown or event is created and the confirmation becomes the reference
// line the model speaks from.
func (b *Brain) ReferenceData(ctx context.Context, utterance string) string {
	var lines []string

	if strings.Contains(utterance, "날씨") && b.weather != nil {
		if line, err := b.weather.Current(ctx); err != nil {
			b.log.Warn("weather lookup failed", "err", err)
		} else if line != "" {
			lines = append(lines, line)
		}
	}

	if containsAny(utterance, "시간", "몇 시", "날짜", "며칠", "요일") {
		lines = append(lines, "지금은 "+TimeLine(b.now()))
	}

	if containsAny(utterance, "뉴스", "소식") && b.rss != nil {
		if titles, err := b.rss.Headlines(ctx); err != nil {
			b.log.Warn("headline fetch failed", "err", err)
		} else if len(titles) > 0 {
			lines = append(lines, "주요 뉴스: "+strings.Join(titles, " / "))
		}
	}

	if strings.Contains(utterance, "타이머") {
		if line, ok := b.timers.SetFromText(utterance); ok {
			lines = append(lines, line)
		} else {
			lines = append(lines, b.timers.Status())
		}
	}

	if b.scheduler != nil && containsAny(utterance, "일정", "약속", "스케줄") {
		if line, ok := b.scheduler.AddFromText(utterance); ok {
			lines = append(lines, line)
		} else {
			lines = append(lines, b.scheduler.TodaySummary())
		}
	}

	return strings.Join(lines, "\n")
}

// ObserveTurn feeds one exchange into emotion and memory. When the memory
// cadence comes due the refresh runs in the background; replies never wait
// on it.
func (b *Brain) ObserveTurn(user, reply string) {
	b.emotion.Observe(user)
	if b.memory == nil {
		return
	}
	if b.memory.Observe(user, reply) {
		b.refreshWG.Add(1)
		go func() {
			defer b.refreshWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			b.memory.Refresh(ctx)
		}()
	}
}

// EmotionCommand returns the device expression for the current mood, or nil
// when neutral.
func (b *Brain) EmotionCommand() *types.Command {
	return b.emotion.Command()
}

// Tick returns everything the assistant wants to say unprompted right now:
// expired timers, due schedule reminders, and at most one proactive message.
// The caller speaks them only when the session is idle.
func (b *Brain) Tick() []string {
	var out []string
	out = append(out, b.timers.Expired()...)
	if b.scheduler != nil {
		out = append(out, b.scheduler.DueReminders()...)
	}
	if b.proactive != nil {
		if msg, ok := b.proactive.Next(); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Close waits for any background memory refresh to finish.
func (b *Brain) Close() {
	b.refreshWG.Wait()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
