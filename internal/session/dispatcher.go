package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jwhan-dev/ccoli/internal/agent"
	"github.com/jwhan-dev/ccoli/internal/robot"
	"github.com/jwhan-dev/ccoli/pkg/types"
)

// switchAnnouncement is spoken when the session enters agent mode.
const switchAnnouncement = "대화 모드로 변경되었습니다."

// sender is the outbound half of the connection the dispatcher needs.
// *wire.Conn implements it; tests substitute a recorder.
type sender interface {
	SendCommand(cmd types.Command) error
	SendAudio(pcm []byte) error
}

// EmotionSource supplies the expression command emitted after agent replies.
// The brain implements it; nil disables the pass-through.
type EmotionSource interface {
	EmotionCommand() *types.Command
}

// Dispatcher routes recognized utterances to the adapter of the current mode
// and owns the mode state machine. switchMode is the only place the mode
// changes.
type Dispatcher struct {
	robot   *robot.Adapter
	agent   *agent.Adapter
	send    sender
	emotion EmotionSource
	log     *slog.Logger

	mu   sync.Mutex
	mode types.Mode
}

// NewDispatcher creates a dispatcher starting in the given mode.
func NewDispatcher(initial types.Mode, r *robot.Adapter, a *agent.Adapter, send sender, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		robot: r,
		agent: a,
		send:  send,
		log:   log,
		mode:  initial,
	}
}

// SetEmotionSource attaches the post-reply expression hook.
func (d *Dispatcher) SetEmotionSource(src EmotionSource) {
	d.emotion = src
}

// Mode reports the current mode.
func (d *Dispatcher) Mode() types.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Dispatch routes one recognized utterance. Errors are absorbed here: a
// failed send is logged and the turn ends, matching the device's
// fire-and-forget contract.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, sid uint64) {
	switch d.Mode() {
	case types.ModeRobot:
		d.dispatchRobot(ctx, text, sid)
	case types.ModeAgent:
		d.dispatchAgent(ctx, text, sid)
	}
}

// DispatchUnsure ends a turn whose audio was too short or too quiet to
// transcribe. Robot mode answers with an explicit non-action so the device
// stops listening; agent mode stays silent.
func (d *Dispatcher) DispatchUnsure(ctx context.Context, sid uint64) {
	if d.Mode() != types.ModeRobot {
		return
	}
	cmd := types.Command{Action: types.ActionNoop, SID: sid}
	if err := d.send.SendCommand(cmd); err != nil {
		d.log.Warn("send NOOP failed", "sid", sid, "err", err)
	}
}

func (d *Dispatcher) dispatchRobot(ctx context.Context, text string, sid uint64) {
	cmd := d.robot.Handle(ctx, text, sid)
	if cmd.Action == types.ActionSwitchMode {
		d.switchMode(ctx, cmd.Mode)
		return
	}
	if err := d.send.SendCommand(cmd); err != nil {
		d.log.Warn("send command failed", "sid", sid, "action", cmd.Action, "err", err)
	}
}

func (d *Dispatcher) dispatchAgent(ctx context.Context, text string, sid uint64) {
	reply, intent := d.agent.Reply(ctx, text)

	switch intent {
	case types.IntentModeRobot:
		d.speak(ctx, reply)
		d.switchMode(ctx, types.ModeRobot)
		return
	case types.IntentModeAgent:
		// Already here; fall through to the normal reply.
	}

	d.speak(ctx, reply)

	if d.emotion != nil {
		if cmd := d.emotion.EmotionCommand(); cmd != nil {
			if err := d.send.SendCommand(*cmd); err != nil {
				d.log.Warn("send emotion failed", "err", err)
			}
		}
	}
}

// Speak synthesizes text and streams it to the device. Exposed for
// out-of-turn audio: proactive messages and reminders.
func (d *Dispatcher) Speak(ctx context.Context, text string) {
	d.speak(ctx, text)
}

func (d *Dispatcher) speak(ctx context.Context, text string) {
	pcm, err := d.agent.Speak(ctx, text)
	if err != nil {
		d.log.Warn("synthesis failed", "err", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	if err := d.send.SendAudio(pcm); err != nil {
		d.log.Warn("send audio failed", "err", err)
	}
}

// switchMode transitions the mode state machine. Switching to the current
// mode is a no-op. Entering agent mode is announced by voice; entering robot
// mode by the attention animation, so the user always gets feedback through
// the channel the new mode speaks.
func (d *Dispatcher) switchMode(ctx context.Context, target types.Mode) {
	d.mu.Lock()
	if d.mode == target {
		d.mu.Unlock()
		d.log.Debug("mode unchanged", "mode", target)
		return
	}
	from := d.mode
	d.mode = target
	d.mu.Unlock()

	d.log.Info("mode switched", "from", from, "to", target)

	switch target {
	case types.ModeAgent:
		d.speak(ctx, switchAnnouncement)
	case types.ModeRobot:
		if err := d.send.SendCommand(types.Command{Action: types.ActionWiggle}); err != nil {
			d.log.Warn("send wiggle failed", "err", err)
		}
	}
}
