// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber in unit tests to feed controlled transcription results
// without a model. All fields are safe to set before calling any method.
package mock

import (
	"context"
	"sync"

	"github.com/jwhan-dev/ccoli/pkg/provider/stt"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Samples is a copy of the buffer passed to Transcribe.
	Samples []float32
}

// Transcriber is a mock implementation of stt.Transcriber.
// Zero values cause Transcribe to return "" and a nil error.
type Transcriber struct {
	mu sync.Mutex

	// Texts are returned in order by successive Transcribe calls. When the
	// list is exhausted, the last text repeats.
	Texts []string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// NotReady makes Ready report false.
	NotReady bool

	// Calls records every invocation of Transcribe in order.
	Calls []Call

	next int
}

// Transcribe records the call and returns the next configured text.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := make([]float32, len(samples))
	copy(buf, samples)
	t.Calls = append(t.Calls, Call{Samples: buf})

	if t.Err != nil {
		return "", t.Err
	}
	if len(t.Texts) == 0 {
		return "", nil
	}
	text := t.Texts[min(t.next, len(t.Texts)-1)]
	t.next++
	return text, nil
}

// Ready implements stt.Transcriber.
func (t *Transcriber) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.NotReady
}

// CallCount reports how many times Transcribe was invoked.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Reset clears all recorded calls and rewinds the text sequence. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
	t.next = 0
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
