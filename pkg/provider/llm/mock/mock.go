// Package mock provides a test double for the llm.Chat interface.
//
// Use Chat in unit tests to verify the prompts the adapters construct and to
// feed controlled replies without a live model backend. All fields are safe to
// set before calling any method; mutating them during a concurrent call is the
// caller's responsibility.
//
// Example:
//
//	c := &mock.Chat{Replies: []string{"안녕하세요!"}}
//	reply, err := c.Chat(ctx, messages, llm.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/jwhan-dev/ccoli/pkg/provider/llm"
	"github.com/jwhan-dev/ccoli/pkg/types"
)

// Call records a single invocation of Chat.
type Call struct {
	// Messages is the conversation history passed to Chat.
	Messages []types.Message

	// Opts is the Options value passed to Chat.
	Opts llm.Options
}

// Chat is a mock implementation of llm.Chat.
// Zero values cause Chat to return "" and a nil error.
type Chat struct {
	mu sync.Mutex

	// Replies are returned in order by successive Chat calls. When the list
	// is exhausted, the last reply repeats.
	Replies []string

	// Err, if non-nil, is returned by every Chat call instead of a reply.
	Err error

	// Calls records every invocation of Chat in order.
	Calls []Call

	next int
}

// Chat records the call and returns the next configured reply.
func (c *Chat) Chat(ctx context.Context, messages []types.Message, opts llm.Options) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := make([]types.Message, len(messages))
	copy(msgs, messages)
	c.Calls = append(c.Calls, Call{Messages: msgs, Opts: opts})

	if c.Err != nil {
		return "", c.Err
	}
	if len(c.Replies) == 0 {
		return "", nil
	}
	reply := c.Replies[min(c.next, len(c.Replies)-1)]
	c.next++
	return reply, nil
}

// LastCall returns the most recent recorded call. It panics when no call has
// been made; tests should check CallCount first.
func (c *Chat) LastCall() Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[len(c.Calls)-1]
}

// CallCount reports how many times Chat was invoked.
func (c *Chat) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls and rewinds the reply sequence. Thread-safe.
func (c *Chat) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = nil
	c.next = 0
}

// Ensure Chat implements llm.Chat at compile time.
var _ llm.Chat = (*Chat)(nil)
