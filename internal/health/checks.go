package health

import (
	"context"
	"errors"
)

// LLMHealth is the probe surface of the LLM backend. The Ollama client
// implements it; the OpenAI backend is considered reachable when configured.
type LLMHealth interface {
	Healthy(ctx context.Context) error
}

// Readiness is the probe surface of the STT backend.
type Readiness interface {
	Ready() bool
}

// LLMChecker reports whether the LLM backend answers.
func LLMChecker(h LLMHealth) Checker {
	return Checker{
		Name: "llm",
		Check: func(ctx context.Context) error {
			if h == nil {
				return errors.New("no LLM backend configured")
			}
			return h.Healthy(ctx)
		},
	}
}

// STTChecker reports whether the transcriber can serve a request.
func STTChecker(r Readiness) Checker {
	return Checker{
		Name: "stt",
		Check: func(ctx context.Context) error {
			if r == nil {
				return errors.New("no transcriber configured")
			}
			if !r.Ready() {
				return errors.New("transcriber is not ready")
			}
			return nil
		},
	}
}
