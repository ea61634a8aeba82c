package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/jwhan-dev/ccoli/internal/agent"
	"github.com/jwhan-dev/ccoli/internal/config"
	"github.com/jwhan-dev/ccoli/internal/observe"
	"github.com/jwhan-dev/ccoli/internal/robot"
	"github.com/jwhan-dev/ccoli/internal/wire"
	"github.com/jwhan-dev/ccoli/pkg/audio"
	llmmock "github.com/jwhan-dev/ccoli/pkg/provider/llm/mock"
	"github.com/jwhan-dev/ccoli/pkg/provider/stt"
	sttmock "github.com/jwhan-dev/ccoli/pkg/provider/stt/mock"
	ttsmock "github.com/jwhan-dev/ccoli/pkg/provider/tts/mock"
	"github.com/jwhan-dev/ccoli/pkg/types"
)

// device drives the client end of a net.Pipe as the embedded device would.
type device struct {
	t *testing.T
	c net.Conn
}

func (d *device) send(pt wire.PacketType, payload []byte) {
	d.t.Helper()
	frame := make([]byte, 3+len(payload))
	frame[0] = byte(pt)
	binary.LittleEndian.PutUint16(frame[1:], uint16(len(payload)))
	copy(frame[3:], payload)
	if _, err := d.c.Write(frame); err != nil {
		d.t.Fatalf("device write: %v", err)
	}
}

func (d *device) read() (wire.PacketType, []byte) {
	d.t.Helper()
	if err := d.c.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		d.t.Fatalf("set deadline: %v", err)
	}
	header := make([]byte, 3)
	if _, err := io.ReadFull(d.c, header); err != nil {
		d.t.Fatalf("device read header: %v", err)
	}
	length := int(binary.LittleEndian.Uint16(header[1:]))
	payload := make([]byte, length)
	if _, err := io.ReadFull(d.c, payload); err != nil {
		d.t.Fatalf("device read payload: %v", err)
	}
	return wire.PacketType(header[0]), payload
}

// readCommand skips over audio packets until a CMD arrives.
func (d *device) readCommand() map[string]any {
	d.t.Helper()
	for {
		pt, payload := d.read()
		switch pt {
		case wire.TypeCmd:
			var cmd map[string]any
			if err := json.Unmarshal(payload, &cmd); err != nil {
				d.t.Fatalf("decode command %q: %v", payload, err)
			}
			return cmd
		case wire.TypeAudioOut, wire.TypeAudioOutEnd, wire.TypePong:
		default:
			d.t.Fatalf("unexpected packet %s", pt)
		}
	}
}

// startSession wires a full session over a net.Pipe and runs it.
func startSession(t *testing.T, mode types.Mode, transcriber stt.Transcriber, opts Options) (*device, func()) {
	t.Helper()
	server, client := net.Pipe()
	conn := wire.NewConn(server)

	r := robot.New(&llmmock.Chat{}, config.DefaultCatalog(), nil)
	a := agent.New(&llmmock.Chat{Replies: []string{"네."}}, &ttsmock.Synthesizer{Samples: testTone(8000)}, "아이")
	opts.Transcriber = transcriber
	opts.Dispatcher = NewDispatcher(mode, r, a, conn, nil)

	sess := New(conn, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()

	return &device{t: t, c: client}, func() {
		cancel()
		_ = client.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("session did not stop")
		}
	}
}

func TestSessionPingPong(t *testing.T) {
	dev, stop := startSession(t, types.ModeRobot, &sttmock.Transcriber{}, Options{})
	defer stop()

	dev.send(wire.TypePing, nil)
	if pt, _ := dev.read(); pt != wire.TypePong {
		t.Errorf("got %s, want PONG", pt)
	}
}

func TestSessionRobotTurn(t *testing.T) {
	transcriber := &sttmock.Transcriber{Texts: []string{"왼쪽으로 돌아"}}
	dev, stop := startSession(t, types.ModeRobot, transcriber, Options{})
	defer stop()

	pcm := audio.Float32ToPCM16(testTone(audio.SampleRate)) // 1 s of tone
	dev.send(wire.TypeStart, nil)
	dev.send(wire.TypeAudio, pcm)
	dev.send(wire.TypeEnd, nil)

	cmd := dev.readCommand()
	if cmd["action"] != "SERVO_SET" {
		t.Errorf("action = %v, want SERVO_SET", cmd["action"])
	}
	if cmd["angle"] != float64(180) {
		t.Errorf("angle = %v, want 180", cmd["angle"])
	}
	if cmd["sid"] != float64(1) {
		t.Errorf("sid = %v, want 1", cmd["sid"])
	}
}

func TestSessionUnsureTurn(t *testing.T) {
	transcriber := &sttmock.Transcriber{Texts: []string{"왼쪽"}}
	dev, stop := startSession(t, types.ModeRobot, transcriber, Options{})
	defer stop()

	// 100 ms is below the utterance minimum; the transcriber must not run.
	pcm := audio.Float32ToPCM16(testTone(audio.SampleRate / 10))
	dev.send(wire.TypeStart, nil)
	dev.send(wire.TypeAudio, pcm)
	dev.send(wire.TypeEnd, nil)

	cmd := dev.readCommand()
	if cmd["action"] != "NOOP" {
		t.Errorf("action = %v, want NOOP", cmd["action"])
	}
	if cmd["meaningful"] != false || cmd["recognized"] != false {
		t.Errorf("cmd = %v, want both flags false", cmd)
	}
	if got := transcriber.CallCount(); got != 0 {
		t.Errorf("transcriber ran %d times on weak audio", got)
	}
}

func TestSessionAgentTurn(t *testing.T) {
	transcriber := &sttmock.Transcriber{Texts: []string{"안녕"}}
	dev, stop := startSession(t, types.ModeAgent, transcriber, Options{})
	defer stop()

	dev.send(wire.TypeStart, nil)
	dev.send(wire.TypeAudio, audio.Float32ToPCM16(testTone(audio.SampleRate)))
	dev.send(wire.TypeEnd, nil)

	// Reply audio: one or more AUDIO_OUT frames, then the terminator.
	sawAudio := false
	for {
		pt, payload := dev.read()
		if pt == wire.TypeAudioOut {
			sawAudio = true
			if len(payload) == 0 || len(payload) > wire.AudioChunkSize || len(payload)%2 != 0 {
				t.Fatalf("bad AUDIO_OUT payload length %d", len(payload))
			}
			continue
		}
		if pt == wire.TypeAudioOutEnd {
			break
		}
		t.Fatalf("unexpected packet %s", pt)
	}
	if !sawAudio {
		t.Error("no reply audio received")
	}
}

func TestSessionLengthCap(t *testing.T) {
	transcriber := &sttmock.Transcriber{Texts: []string{"왼쪽"}}
	dev, stop := startSession(t, types.ModeRobot, transcriber, Options{
		MaxAudio: 500 * time.Millisecond,
	})
	defer stop()

	// 1 s of audio with no END: the cap must cut the stream and run the
	// turn anyway.
	dev.send(wire.TypeStart, nil)
	dev.send(wire.TypeAudio, audio.Float32ToPCM16(testTone(audio.SampleRate)))

	cmd := dev.readCommand()
	if cmd["action"] != "SERVO_SET" {
		t.Errorf("action = %v, want SERVO_SET from the capped stream", cmd["action"])
	}
}

// heldTranscriber blocks inside Transcribe until released, holding a turn in
// flight while more packets arrive.
type heldTranscriber struct {
	inner   *sttmock.Transcriber
	started chan struct{}
	release chan struct{}
}

func (h *heldTranscriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	h.started <- struct{}{}
	<-h.release
	return h.inner.Transcribe(ctx, samples)
}

func (h *heldTranscriber) Ready() bool { return h.inner.Ready() }

func TestSessionDropsStreamDuringTurn(t *testing.T) {
	transcriber := &heldTranscriber{
		inner:   &sttmock.Transcriber{Texts: []string{"왼쪽으로 돌아"}},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	counters := observe.NewCounters()
	dev, stop := startSession(t, types.ModeRobot, transcriber, Options{Counters: counters})
	defer stop()

	pcm := audio.Float32ToPCM16(testTone(audio.SampleRate))
	dev.send(wire.TypeStart, nil)
	dev.send(wire.TypeAudio, pcm)
	dev.send(wire.TypeEnd, nil)

	// The first turn is now inside the transcriber with the gate held busy.
	select {
	case <-transcriber.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never reached the transcriber")
	}

	// A whole second stream lands mid-turn. Its bytes must be consumed and
	// discarded without producing anything.
	dev.send(wire.TypeStart, nil)
	dev.send(wire.TypeAudio, pcm)
	dev.send(wire.TypeEnd, nil)
	close(transcriber.release)

	cmd := dev.readCommand()
	if cmd["sid"] != float64(1) {
		t.Errorf("sid = %v, want 1", cmd["sid"])
	}

	// A ping after the command must answer directly: no second command, no
	// reply audio for the dropped stream.
	dev.send(wire.TypePing, nil)
	if pt, _ := dev.read(); pt != wire.TypePong {
		t.Errorf("got %s, want PONG with nothing in between", pt)
	}
	if got := transcriber.inner.CallCount(); got != 1 {
		t.Errorf("transcriber ran %d times, want 1", got)
	}
	if s := counters.Summary(); !strings.Contains(s, "gate rejects=1") {
		t.Errorf("summary missing the gate rejection:\n%s", s)
	}
}

func TestSessionQueueEvictsOldest(t *testing.T) {
	server, client := net.Pipe()
	conn := wire.NewConn(server)

	transcriber := &sttmock.Transcriber{Texts: []string{"왼쪽으로 돌아", "오른쪽으로 돌아"}}
	r := robot.New(&llmmock.Chat{}, config.DefaultCatalog(), nil)
	a := agent.New(&llmmock.Chat{}, &ttsmock.Synthesizer{}, "아이")
	counters := observe.NewCounters()
	sess := New(conn, Options{
		Transcriber: transcriber,
		Dispatcher:  NewDispatcher(types.ModeRobot, r, a, conn, nil),
		QueueSize:   2,
		Counters:    counters,
	})

	// Three utterances land before the worker starts; the queue holds two,
	// so the oldest is evicted.
	tone := testTone(audio.SampleRate)
	for sid := uint64(1); sid <= 3; sid++ {
		sess.enqueue(context.Background(), job{sid: sid, samples: tone})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()
	defer func() {
		cancel()
		_ = client.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("session did not stop")
		}
	}()

	dev := &device{t: t, c: client}
	for _, want := range []float64{2, 3} {
		cmd := dev.readCommand()
		if cmd["sid"] != want {
			t.Errorf("sid = %v, want %v", cmd["sid"], want)
		}
	}

	// No third command: the evicted job must never run.
	dev.send(wire.TypePing, nil)
	if pt, _ := dev.read(); pt != wire.TypePong {
		t.Errorf("got %s, want PONG after the surviving turns", pt)
	}
	if got := transcriber.CallCount(); got != 2 {
		t.Errorf("transcriber ran %d times, want 2", got)
	}
	if s := counters.Summary(); !strings.Contains(s, "queue drops=1") {
		t.Errorf("summary missing the eviction:\n%s", s)
	}
}

func TestSessionUnknownPacketIgnored(t *testing.T) {
	transcriber := &sttmock.Transcriber{Texts: []string{"왼쪽"}}
	dev, stop := startSession(t, types.ModeRobot, transcriber, Options{})
	defer stop()

	dev.send(wire.PacketType(0x7E), []byte("junk"))
	dev.send(wire.TypePing, nil)
	if pt, _ := dev.read(); pt != wire.TypePong {
		t.Errorf("got %s, want PONG after unknown packet", pt)
	}
}
