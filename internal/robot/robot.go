// Package robot implements the voice command mode: recognized utterances are
// mapped onto the closed set of device actions, either through the phonetic
// catalog matcher or, when that misses, through a two-step model call that
// first refines the transcription and then picks an action as JSON.
package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jwhan-dev/ccoli/internal/config"
	"github.com/jwhan-dev/ccoli/pkg/provider/llm"
	"github.com/jwhan-dev/ccoli/pkg/types"
)

const (
	// refine and decide run against a small local model; tight budgets keep
	// the turn latency bounded.
	refineTemperature = 0.1
	refineMaxTokens   = 64
	decideTemperature = 0.1
	decideMaxTokens   = 64

	// promptCommands and promptKeywords cap how much of the catalog is
	// shown to the model.
	promptCommands = 10
	promptKeywords = 3
)

// jsonObjectRe extracts the first JSON object from a model reply that may
// wrap it in prose or code fences.
var jsonObjectRe = regexp.MustCompile(`\{[^}]+\}`)

// decision is the JSON shape the decide prompt asks for.
type decision struct {
	Action string `json:"action"`
	Angle  *int   `json:"angle"`
}

// Adapter is the robot mode handler. It tracks the servo's last commanded
// angle so relative commands and the decide prompt have a reference point.
// Safe for concurrent use, though the session calls it from one worker.
type Adapter struct {
	chat    llm.Chat
	catalog []config.CatalogEntry
	matcher *Matcher
	log     *slog.Logger

	mu    sync.Mutex
	angle int
}

// New creates a robot adapter over the given chat backend and command
// catalog. The servo is assumed centered at startup.
func New(chat llm.Chat, catalog []config.CatalogEntry, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		chat:    chat,
		catalog: catalog,
		matcher: NewMatcher(catalog),
		log:     log,
		angle:   90,
	}
}

// Angle reports the last commanded servo angle.
func (a *Adapter) Angle() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.angle
}

// Handle maps one utterance onto a device command. It never returns an
// invalid action: anything the pipeline cannot interpret degrades to NOOP
// with the appropriate meaningful/recognized flags.
func (a *Adapter) Handle(ctx context.Context, text string, sid uint64) types.Command {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < 2 {
		return types.Command{Action: types.ActionNoop, SID: sid, Recognized: text != ""}
	}

	// Catalog fast path: no model call needed.
	if entry, score, ok := a.matcher.Match(text); ok {
		a.log.Debug("catalog match", "text", text, "command", entry.Name, "score", score)
		return a.fromEntry(entry, sid)
	}

	refined := a.refine(ctx, text)
	cmd, err := a.decide(ctx, refined)
	if err != nil {
		a.log.Warn("decide failed, treating as NOOP", "text", refined, "error", err)
		return types.Command{Action: types.ActionNoop, SID: sid, Recognized: true}
	}
	cmd.SID = sid
	if cmd.Action == types.ActionServoSet {
		a.setAngle(cmd.Angle)
	}
	return cmd
}

// fromEntry converts a catalog entry into a command, resolving relative
// angles against the current position.
func (a *Adapter) fromEntry(entry config.CatalogEntry, sid uint64) types.Command {
	switch entry.Action {
	case types.ActionServoSet:
		angle := entry.Angle
		if entry.Delta != 0 {
			angle = types.ClampAngle(a.Angle() + entry.Delta)
		}
		a.setAngle(angle)
		return types.Command{
			Action:     types.ActionServoSet,
			SID:        sid,
			Servo:      entry.Servo,
			Angle:      angle,
			Meaningful: true,
			Recognized: true,
		}
	case types.ActionStop:
		return types.Command{Action: types.ActionStop, Servo: entry.Servo}
	case types.ActionWiggle:
		return types.Command{Action: types.ActionWiggle, SID: sid}
	case types.ActionSwitchMode:
		return types.Command{Action: types.ActionSwitchMode, Mode: types.ModeAgent}
	default:
		return types.Command{Action: types.ActionNoop, SID: sid, Recognized: true}
	}
}

func (a *Adapter) setAngle(angle int) {
	a.mu.Lock()
	a.angle = angle
	a.mu.Unlock()
}

// refine asks the model to repair transcription errors. The original text is
// kept when the call fails or the result looks implausible: empty, or more
// than three times the input length.
func (a *Adapter) refine(ctx context.Context, text string) string {
	msgs := []types.Message{
		{Role: types.RoleSystem, Content: "너는 음성 인식 결과를 교정하는 도우미야. " +
			"사용자의 문장에서 잘못 인식된 단어를 바로잡아 교정된 문장만 출력해. " +
			"설명은 하지 마."},
		{Role: types.RoleUser, Content: text},
	}
	refined, err := a.chat.Chat(ctx, msgs, llm.Options{
		Temperature: refineTemperature,
		MaxTokens:   refineMaxTokens,
		Think:       llm.ThinkOff,
	})
	if err != nil {
		a.log.Debug("refine failed, keeping original", "error", err)
		return text
	}
	refined = strings.TrimSpace(refined)
	if refined == "" || utf8.RuneCountInString(refined) > 3*utf8.RuneCountInString(text) {
		return text
	}
	return refined
}

// decide asks the model to pick one action for the utterance and parses the
// JSON object out of the reply.
func (a *Adapter) decide(ctx context.Context, text string) (types.Command, error) {
	reply, err := a.chat.Chat(ctx, []types.Message{
		{Role: types.RoleSystem, Content: a.decidePrompt()},
		{Role: types.RoleUser, Content: text},
	}, llm.Options{
		Temperature: decideTemperature,
		MaxTokens:   decideMaxTokens,
		Think:       llm.ThinkOff,
	})
	if err != nil {
		return types.Command{}, fmt.Errorf("robot: decide call: %w", err)
	}

	raw := jsonObjectRe.FindString(reply)
	if raw == "" {
		return types.Command{}, fmt.Errorf("robot: no JSON object in reply %q", reply)
	}
	var d decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return types.Command{}, fmt.Errorf("robot: parse decision %q: %w", raw, err)
	}

	switch types.Action(strings.ToUpper(strings.TrimSpace(d.Action))) {
	case types.ActionServoSet:
		angle := a.Angle()
		if d.Angle != nil {
			angle = types.ClampAngle(*d.Angle)
		}
		return types.Command{
			Action:     types.ActionServoSet,
			Angle:      angle,
			Meaningful: true,
			Recognized: true,
		}, nil
	case types.ActionStop:
		return types.Command{Action: types.ActionStop}, nil
	case types.ActionSwitchMode:
		return types.Command{Action: types.ActionSwitchMode, Mode: types.ModeAgent}, nil
	case types.ActionNoop:
		return types.Command{Action: types.ActionNoop, Recognized: true}, nil
	default:
		return types.Command{}, fmt.Errorf("robot: model picked unknown action %q", d.Action)
	}
}

// decidePrompt renders the action-selection instruction with the current
// angle and a bounded slice of the catalog.
func (a *Adapter) decidePrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "너는 서보 모터 로봇의 음성 명령 해석기야. 현재 각도는 %d도야.\n", a.Angle())
	b.WriteString("사용 가능한 명령:\n")
	for i, e := range a.catalog {
		if i >= promptCommands {
			break
		}
		kws := e.Keywords
		if len(kws) > promptKeywords {
			kws = kws[:promptKeywords]
		}
		fmt.Fprintf(&b, "- %s (%s)\n", e.Name, strings.Join(kws, ", "))
	}
	b.WriteString("\n사용자 문장에 맞는 행동 하나를 JSON으로만 답해.\n")
	b.WriteString(`형식: {"action": "SERVO_SET" | "STOP" | "SWITCH_MODE" | "NOOP", "angle": 0-180}` + "\n")
	b.WriteString("각도가 필요 없는 행동이면 angle은 생략해.")
	return b.String()
}
