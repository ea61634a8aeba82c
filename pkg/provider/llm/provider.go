// Package llm defines the Chat interface for Large Language Model backends.
//
// A chat backend wraps a remote or local model API (a local Ollama instance in
// the reference deployment, the OpenAI API as a hosted alternative) and exposes
// a uniform blocking call for the mode adapters and the brain to generate text
// without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import (
	"context"

	"github.com/jwhan-dev/ccoli/pkg/types"
)

// Options tunes a single chat call. The zero value requests the backend's
// defaults.
type Options struct {
	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// means use the backend default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the backend default.
	MaxTokens int

	// Think toggles the model's thinking channel for backends that have one.
	// Nil means use the backend default; thinking output is never returned
	// to the caller either way.
	Think *bool
}

// Chat is the abstraction over any LLM backend.
type Chat interface {
	// Chat sends the ordered conversation history to the model and returns
	// the assistant's reply text. The last message is typically from the
	// "user" role and drives the response.
	//
	// Implementations retry internally where the backend allows it; a
	// returned error means the call is not worth repeating with the same
	// inputs.
	Chat(ctx context.Context, messages []types.Message, opts Options) (string, error)
}

// ThinkOff is a convenience pointer for disabling the thinking channel on a
// single call.
var ThinkOff = ptr(false)

func ptr(b bool) *bool { return &b }
