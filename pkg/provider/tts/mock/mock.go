// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer in unit tests to verify what texts the reply pipeline sends
// to synthesis and to feed controlled waveforms back. All fields are safe to
// set before calling any method.
package mock

import (
	"context"
	"sync"

	"github.com/jwhan-dev/ccoli/pkg/provider/tts"
)

// Synthesizer is a mock implementation of tts.Synthesizer.
// By default every call returns Samples; set SamplesFor to vary the waveform
// per input text.
type Synthesizer struct {
	mu sync.Mutex

	// Samples is returned for texts without a SamplesFor entry. A nil value
	// yields a short non-silent default waveform so audio post-processing in
	// the caller has something to chew on.
	Samples []float32

	// SamplesFor maps exact input texts to waveforms.
	SamplesFor map[string][]float32

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// Texts records every synthesized text in order.
	Texts []string
}

// Synthesize records the call and returns the configured waveform.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Texts = append(s.Texts, text)
	if s.Err != nil {
		return nil, s.Err
	}
	if w, ok := s.SamplesFor[text]; ok {
		return append([]float32(nil), w...), nil
	}
	if s.Samples != nil {
		return append([]float32(nil), s.Samples...), nil
	}
	// 100 ms of a quiet constant tone.
	out := make([]float32, 1600)
	for i := range out {
		out[i] = 0.1
	}
	return out, nil
}

// CallCount reports how many times Synthesize was invoked.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Texts)
}

// Reset clears all recorded texts. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Texts = nil
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
