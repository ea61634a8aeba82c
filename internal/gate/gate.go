// Package gate implements half-duplex admission control for inbound audio
// streams: one complete turn (transcribe → decide → respond) at a time.
//
// An utterance that arrives while a turn is in flight is deliberately dropped
// rather than queued — queueing would make the device act on stale commands
// long after the reply they raced against. The reader still consumes the
// rejected stream's bytes from the wire; they just never reach the job queue.
package gate

import "sync"

// EndResult is the outcome of [Gate.EndStream].
type EndResult int

const (
	// EndAccept means the stream completed cleanly and may be enqueued.
	EndAccept EndResult = iota

	// EndDrop means the stream was admitted only for draining; discard it.
	EndDrop

	// EndIgnore means no stream was active; the END packet is stray.
	EndIgnore
)

// String returns the outcome name for logging.
func (r EndResult) String() string {
	switch r {
	case EndAccept:
		return "accept"
	case EndDrop:
		return "drop"
	case EndIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Gate is the per-session admission state machine. All transitions are atomic
// under one mutex; the zero value is ready to use.
type Gate struct {
	mu           sync.Mutex
	busy         bool
	streamActive bool
	drop         bool
}

// StartStream opens an inbound stream. It returns true when the stream is
// accepted for buffering. When a turn is busy or another stream is already
// open, the stream is still marked active — the reader must drain it — but
// flagged for dropping, and false is returned.
func (g *Gate) StartStream() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busy || g.streamActive {
		g.streamActive = true
		g.drop = true
		return false
	}
	g.streamActive = true
	g.drop = false
	return true
}

// CanAcceptAudio reports whether AUDIO payloads of the current stream should
// be buffered.
func (g *Gate) CanAcceptAudio() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.streamActive && !g.drop
}

// EndStream closes the current stream and reports what to do with its buffer.
func (g *Gate) EndStream() EndResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.streamActive {
		return EndIgnore
	}
	wasDrop := g.drop
	g.streamActive = false
	g.drop = false
	if wasDrop {
		return EndDrop
	}
	return EndAccept
}

// MarkBusy flags the start of a turn. Until [Gate.MarkIdle], every new stream
// is rejected.
func (g *Gate) MarkBusy() {
	g.mu.Lock()
	g.busy = true
	g.mu.Unlock()
}

// MarkIdle flags the end of a turn.
func (g *Gate) MarkIdle() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}

// Busy reports whether a turn is in flight. Used by the status log.
func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}
