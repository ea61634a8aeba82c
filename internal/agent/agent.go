// Package agent implements the conversational mode: utterances become model
// replies, replies become synthesized speech. The package owns the prompt
// assembly, the bounded conversation history, intent tagging, reply
// sanitation, and the chunked synthesis pipeline that turns a reply into one
// continuous PCM stream.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jwhan-dev/ccoli/pkg/audio"
	"github.com/jwhan-dev/ccoli/pkg/provider/llm"
	"github.com/jwhan-dev/ccoli/pkg/provider/tts"
	"github.com/jwhan-dev/ccoli/pkg/types"
)

const (
	replyTemperature = 0.8
	replyMaxTokens   = 256

	// fallbackReply covers replies that sanitize away to nothing;
	// errorReply covers model failures. Both still get synthesized so the
	// device is never left waiting in silence.
	fallbackReply = "무엇을 도와드릴까요?"
	errorReply    = "죄송해요, 오류가 발생했어요."
)

// Brain supplies the context around a conversation: the persona prompt,
// reference data matched to the utterance, and the turn observer that feeds
// memory and emotion. A nil Brain degrades to a static persona.
type Brain interface {
	// SystemPrompt returns the full persona prompt for the next turn.
	SystemPrompt(ctx context.Context) string

	// ReferenceData returns factual context matching the utterance (weather,
	// schedule, timers), or "" when nothing matches.
	ReferenceData(ctx context.Context, utterance string) string

	// ObserveTurn records a completed user/assistant exchange.
	ObserveTurn(user, reply string)
}

// Adapter is the agent mode handler.
//
// Reply and Speak are split on purpose: the dispatcher needs the reply text
// (and its intent) before it decides whether to synthesize, and mode-switch
// announcements go through Speak without a model call.
type Adapter struct {
	chat  llm.Chat
	tts   tts.Synthesizer
	brain Brain
	log   *slog.Logger

	name         string
	personality  string
	historyTurns int
	maxChunks    int

	mu      sync.Mutex
	history []types.Message

	sanitizer *sanitizer
}

// Option configures an [Adapter].
type Option func(*Adapter)

// WithBrain attaches the brain façade.
func WithBrain(b Brain) Option {
	return func(a *Adapter) { a.brain = b }
}

// WithPersonality overrides the fallback persona used when no brain is
// attached.
func WithPersonality(p string) Option {
	return func(a *Adapter) { a.personality = p }
}

// WithHistoryTurns bounds the conversation history kept between turns.
func WithHistoryTurns(n int) Option {
	return func(a *Adapter) { a.historyTurns = n }
}

// WithMaxChunks caps how many pieces a reply is synthesized in.
func WithMaxChunks(n int) Option {
	return func(a *Adapter) { a.maxChunks = n }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Adapter) { a.log = log }
}

// New creates an agent adapter speaking as the named assistant.
func New(chat llm.Chat, synth tts.Synthesizer, name string, opts ...Option) *Adapter {
	a := &Adapter{
		chat:         chat,
		tts:          synth,
		name:         name,
		personality:  "cheerful",
		historyTurns: 20,
		maxChunks:    3,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.sanitizer = newSanitizer(name)
	return a
}

// Reply runs one conversational turn: prompt assembly, the model call,
// intent extraction, and sanitation. It never fails; model errors yield the
// canned error reply with [types.IntentNone].
func (a *Adapter) Reply(ctx context.Context, text string) (string, types.Intent) {
	msgs := a.buildMessages(ctx, text)

	raw, err := a.chat.Chat(ctx, msgs, llm.Options{
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
	})
	if err != nil {
		a.log.Warn("chat failed, using canned reply", "err", err)
		return errorReply, types.IntentNone
	}

	reply, intent := a.sanitizer.extractIntent(raw)
	reply = a.sanitizer.clean(reply)
	if reply == "" {
		reply = fallbackReply
	}

	a.remember(text, reply)
	if a.brain != nil {
		a.brain.ObserveTurn(text, reply)
	}
	return reply, intent
}

// Speak synthesizes text into one continuous 16 kHz PCM16LE stream. Long
// replies are split into chunks, each chunk is synthesized and post-processed
// separately, and the pieces are cross-faded back together.
func (a *Adapter) Speak(ctx context.Context, text string) ([]byte, error) {
	parts := splitForSpeech(text, a.maxChunks)
	if len(parts) == 0 {
		return nil, nil
	}

	chunks := make([][]float32, 0, len(parts))
	for i, part := range parts {
		samples, err := a.tts.Synthesize(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("agent: synthesize chunk %d/%d: %w", i+1, len(parts), err)
		}
		if len(samples) == 0 {
			continue
		}
		chunks = append(chunks, postProcess(samples, i, len(parts)))
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	merged := audio.CrossFadeAll(chunks, audio.SamplesFor(crossFadeDur))
	return audio.Float32ToPCM16(merged), nil
}

// Forget clears the conversation history. Called when the session ends.
func (a *Adapter) Forget() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

// buildMessages assembles system prompt, reference block, bounded history,
// and the current utterance.
func (a *Adapter) buildMessages(ctx context.Context, text string) []types.Message {
	system := a.defaultPersona()
	if a.brain != nil {
		if p := a.brain.SystemPrompt(ctx); p != "" {
			system = p
		}
		if ref := a.brain.ReferenceData(ctx, text); ref != "" {
			system += "\n\n[참고 데이터]\n" + ref
		}
	}

	a.mu.Lock()
	history := make([]types.Message, len(a.history))
	copy(history, a.history)
	a.mu.Unlock()

	msgs := make([]types.Message, 0, len(history)+2)
	msgs = append(msgs, types.Message{Role: types.RoleSystem, Content: system})
	msgs = append(msgs, history...)
	msgs = append(msgs, types.Message{Role: types.RoleUser, Content: text})
	return msgs
}

func (a *Adapter) defaultPersona() string {
	var b strings.Builder
	fmt.Fprintf(&b, "너는 %q라는 이름의 음성 비서야. 성격은 %s.\n", a.name, a.personality)
	b.WriteString("한국어로 짧고 자연스럽게 대답해. 음성으로 읽히니까 목록이나 마크다운은 쓰지 마.\n")
	b.WriteString("대화를 끝내려는 의도가 보이면 대답 끝에 [INTENT:sleep]을 붙여.")
	return b.String()
}

// remember appends one exchange and trims the history to the configured
// number of turns.
func (a *Adapter) remember(user, reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history,
		types.Message{Role: types.RoleUser, Content: user},
		types.Message{Role: types.RoleAssistant, Content: reply},
	)
	if max := a.historyTurns * 2; max > 0 && len(a.history) > max {
		a.history = a.history[len(a.history)-max:]
	}
}
