// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// The server collects one whole utterance before transcribing, so the
// interface is batch-shaped: one buffer of samples in, one text out. The
// reference backends are whisper.cpp, either linked natively through its CGO
// bindings or reached over HTTP on a whisper-server instance.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe converts one utterance of mono float32 samples in [-1, 1]
	// at 16 kHz into text. The returned text is raw model output; callers
	// apply their own cleaning. An empty string with a nil error means the
	// model heard nothing intelligible.
	Transcribe(ctx context.Context, samples []float32) (string, error)

	// Ready reports whether the backend can serve a request right now.
	// Used by health checks; it must not block on inference.
	Ready() bool
}
