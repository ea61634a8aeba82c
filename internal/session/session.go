// Package session drives one device connection: the reader goroutine that
// owns the inbound side of the wire, the worker goroutine that runs
// transcription turns, and the dispatcher that routes recognized text to the
// mode adapters.
//
// The two goroutines meet at a bounded job queue. The reader never blocks on
// a turn: streams arriving mid-turn are drained and dropped by the gate, and
// when the queue is full the oldest job is evicted. The worker processes one
// job at a time, holding the gate busy for the whole turn.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jwhan-dev/ccoli/internal/gate"
	"github.com/jwhan-dev/ccoli/internal/observe"
	"github.com/jwhan-dev/ccoli/internal/queue"
	"github.com/jwhan-dev/ccoli/internal/wire"
	"github.com/jwhan-dev/ccoli/pkg/audio"
	"github.com/jwhan-dev/ccoli/pkg/provider/stt"
)

const (
	// unsureMinDuration and unsureMinRMSDB gate transcription: shorter or
	// quieter audio is noise, not speech.
	unsureMinDuration = 450 * time.Millisecond
	unsureMinRMSDB    = -45.0

	// Pre-transcription conditioning.
	sttTrimTopDB  = 35.0
	sttTrimPadMS  = 140
	sttTargetDBFS = -22.0
	sttMaxGainDB  = 18.0

	statusInterval = 10 * time.Second
)

// job is one complete utterance awaiting transcription.
type job struct {
	sid     uint64
	samples []float32
}

// Options carries the tunables and collaborators of a [Session].
type Options struct {
	// Transcriber turns audio into text.
	Transcriber stt.Transcriber

	// Dispatcher routes recognized text.
	Dispatcher *Dispatcher

	// MaxAudio caps one stream's buffered audio; longer streams are cut
	// with a synthetic end-of-stream. Zero means 12 s.
	MaxAudio time.Duration

	// QueueSize bounds the job queue. Zero means 4.
	QueueSize int

	// GetTimeout is the worker's queue poll interval. Zero means 1 s.
	GetTimeout time.Duration

	// Counters feeds the shutdown banner. Nil disables it.
	Counters *observe.Counters

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Session is one connected device.
type Session struct {
	conn     *wire.Conn
	gate     *gate.Gate
	jobs     *queue.Queue[job]
	stt      stt.Transcriber
	dispatch *Dispatcher
	counters *observe.Counters
	metrics  *observe.Metrics
	log      *slog.Logger

	maxSamples int
	getTimeout time.Duration

	sid uint64 // last assigned stream ID; reader-owned
}

// New creates a session over an accepted connection.
func New(conn *wire.Conn, opts Options) *Session {
	if opts.MaxAudio <= 0 {
		opts.MaxAudio = 12 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4
	}
	if opts.GetTimeout <= 0 {
		opts.GetTimeout = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		conn:       conn,
		gate:       &gate.Gate{},
		jobs:       queue.New[job](opts.QueueSize),
		stt:        opts.Transcriber,
		dispatch:   opts.Dispatcher,
		counters:   opts.Counters,
		metrics:    observe.DefaultMetrics(),
		log:        opts.Logger.With("remote", conn.RemoteAddr().String()),
		maxSamples: audio.SamplesFor(opts.MaxAudio),
		getTimeout: opts.GetTimeout,
	}
}

// Gate exposes the admission gate so out-of-turn senders (proactive
// messages) can check for an idle session.
func (s *Session) Gate() *gate.Gate {
	return s.gate
}

// Dispatcher returns the session's dispatcher.
func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatch
}

// Run serves the connection until the peer disconnects, goes silent, or ctx
// is canceled. It always returns with the connection closed and the worker
// drained.
func (s *Session) Run(ctx context.Context) {
	s.log.Info("session started", "mode", s.dispatch.Mode())
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.worker(workerCtx)
	}()

	// Close the connection when ctx ends so the blocked reader unblocks.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })

	s.readLoop(ctx)

	stop()
	_ = s.conn.Close()
	s.jobs.Close()
	cancelWorker()
	wg.Wait()
	s.log.Info("session ended")
}

// readLoop owns the inbound wire. It buffers accepted streams, answers
// keepalives, and hands complete utterances to the queue.
func (s *Session) readLoop(ctx context.Context) {
	var buf []float32
	collecting := false
	lastStatus := time.Now()

	finishStream := func(reason string) {
		res := s.gate.EndStream()
		switch res {
		case gate.EndAccept:
			if !collecting {
				return
			}
			samples := buf
			buf = nil
			collecting = false
			s.enqueue(ctx, job{sid: s.sid, samples: samples})
		case gate.EndDrop:
			s.log.Debug("stream dropped", "reason", reason)
			buf = nil
			collecting = false
		case gate.EndIgnore:
			s.log.Debug("stray end of stream")
		}
	}

	for {
		pkt, err := s.conn.ReadPacket()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				s.log.Info("peer disconnected")
			case errors.Is(err, wire.ErrTooManyTimeouts):
				s.log.Warn("peer silent, dropping session")
			case ctx.Err() != nil:
				s.log.Info("session canceled")
			default:
				s.log.Error("read failed", "err", err)
			}
			return
		}

		switch pkt.Type {
		case wire.TypePing:
			if err := s.conn.SendPong(); err != nil {
				s.log.Warn("pong failed", "err", err)
			}

		case wire.TypeStart:
			if s.gate.StartStream() {
				s.sid++
				collecting = true
				buf = buf[:0]
				s.log.Debug("stream started", "sid", s.sid)
			} else {
				if s.counters != nil {
					s.counters.IncrReject()
				}
				s.metrics.RecordStreamRejected(ctx)
				s.log.Info("stream rejected, turn in flight")
			}

		case wire.TypeAudio:
			if s.gate.CanAcceptAudio() {
				buf = append(buf, audio.PCM16ToFloat32(pkt.Payload)...)
				if len(buf) >= s.maxSamples {
					s.log.Info("stream hit length cap, forcing end", "sid", s.sid)
					finishStream("length cap")
				}
			}

		case wire.TypeEnd:
			finishStream("device end")

		default:
			s.log.Warn("unknown packet type skipped", "type", pkt.Type.String(), "len", len(pkt.Payload))
		}

		if time.Since(lastStatus) >= statusInterval {
			lastStatus = time.Now()
			s.log.Info("session status",
				"mode", s.dispatch.Mode(),
				"busy", s.gate.Busy(),
				"queued", s.jobs.Len(),
				"collecting", collecting,
			)
		}
	}
}

// enqueue puts one job on the queue, accounting for evictions.
func (s *Session) enqueue(ctx context.Context, j job) {
	if s.jobs.Put(j) {
		if s.counters != nil {
			s.counters.IncrDrop()
		}
		s.metrics.RecordQueueDrop(ctx)
		s.log.Info("queue full, dropped oldest job")
	}
	s.log.Debug("utterance queued", "sid", j.sid, "dur", audio.Duration(len(j.samples)).Round(time.Millisecond))
}

// worker drains the job queue, one turn at a time.
func (s *Session) worker(ctx context.Context) {
	for {
		j, ok := s.jobs.Get(s.getTimeout)
		if !ok {
			if s.jobs.Closed() || ctx.Err() != nil {
				return
			}
			continue
		}
		s.runTurn(ctx, j)
	}
}

// runTurn is one transcription turn. The gate stays busy for its whole
// duration; every exit path releases it.
func (s *Session) runTurn(ctx context.Context, j job) {
	s.gate.MarkBusy()
	defer s.gate.MarkIdle()

	mode := s.dispatch.Mode()
	start := time.Now()
	outcome := "ok"
	defer func() {
		d := time.Since(start)
		if s.counters != nil {
			s.counters.Observe("turn", d)
			s.counters.IncrTurn(outcome)
		}
		s.metrics.TurnDuration.Record(ctx, d.Seconds())
		s.metrics.RecordTurn(ctx, string(mode), outcome)
	}()

	dur := audio.Duration(len(j.samples))
	q := audio.Measure(j.samples)
	if dur < unsureMinDuration || q.RMSDB < unsureMinRMSDB {
		outcome = "unsure"
		s.log.Debug("utterance too weak", "sid", j.sid, "dur", dur.Round(time.Millisecond), "rms_db", q.RMSDB)
		s.dispatch.DispatchUnsure(ctx, j.sid)
		return
	}

	samples := audio.TrimEnergy(j.samples, sttTrimTopDB, sttTrimPadMS)
	samples = audio.NormalizeToDBFS(samples, sttTargetDBFS, sttMaxGainDB)

	sttStart := time.Now()
	text, err := s.stt.Transcribe(ctx, samples)
	sttDur := time.Since(sttStart)
	if s.counters != nil {
		s.counters.Observe("stt", sttDur)
	}
	s.metrics.STTDuration.Record(ctx, sttDur.Seconds())
	if err != nil {
		outcome = "error"
		s.log.Error("transcription failed", "sid", j.sid, "err", err)
		s.dispatch.DispatchUnsure(ctx, j.sid)
		return
	}

	text = CleanTranscript(text)
	if text == "" {
		outcome = "empty"
		s.log.Debug("empty transcription", "sid", j.sid)
		s.dispatch.DispatchUnsure(ctx, j.sid)
		return
	}

	s.log.Info("utterance recognized", "sid", j.sid, "mode", mode, "text", text)
	s.dispatch.Dispatch(ctx, text, j.sid)
}
