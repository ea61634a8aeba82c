// Package tts defines the Synthesizer interface for Text-to-Speech backends.
//
// Synthesis is batch-shaped to match the reply pipeline: the agent produces a
// complete text, the pipeline splits it into chunks, and each chunk is
// synthesized as one call. The reference backend is Microsoft Edge's neural
// voices; tests use the mock.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize converts text into mono float32 samples in [-1, 1] at
	// 16 kHz. The samples are raw synthesis output; callers apply their own
	// post-processing (trimming, normalization, fades).
	Synthesize(ctx context.Context, text string) ([]float32, error)
}
