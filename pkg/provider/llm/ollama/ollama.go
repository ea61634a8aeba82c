// Package ollama provides an LLM chat backend talking to a local Ollama
// server.
//
// The client prefers the streaming /api/chat endpoint and degrades through a
// fixed ladder when a call comes back unusable:
//
//  1. A reply truncated mid-sentence (done_reason "length") is retried once
//     with a doubled token budget and thinking disabled.
//  2. A reply that spent its whole budget on the thinking channel and produced
//     no content is retried once with thinking disabled.
//  3. When /api/chat itself fails (older servers lack it), or when the reply
//     is still empty after the retries above, the conversation is flattened
//     into a single prompt and sent to /api/generate.
//
// The ladder exists because small local models fail in these exact ways far
// more often than they error cleanly.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/jwhan-dev/ccoli/pkg/provider/llm"
	"github.com/jwhan-dev/ccoli/pkg/types"
)

const (
	// retryFloor and retryCeil bound the token budget of a truncation retry.
	retryFloor = 384
	retryCeil  = 1024

	// startupPoll is how often [Client.EnsureRunning] re-checks health while
	// waiting for a spawned server.
	startupPoll = 500 * time.Millisecond
)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpc = c
	}
}

// WithThink sets the default for the model's thinking channel. Per-call
// [llm.Options.Think] takes precedence.
func WithThink(think bool) Option {
	return func(cl *Client) {
		cl.think = think
	}
}

// WithStartCommand configures [Client.EnsureRunning] to spawn cmd when the
// server is unreachable and wait up to timeout for it to come up.
func WithStartCommand(cmd string, timeout time.Duration) Option {
	return func(cl *Client) {
		cl.startCommand = cmd
		cl.startupTimeout = timeout
	}
}

// Client implements [llm.Chat] against an Ollama server. Safe for concurrent
// use.
type Client struct {
	baseURL string
	model   string
	think   bool
	httpc   *http.Client

	startCommand   string
	startupTimeout time.Duration
}

// New constructs a Client for the server at baseURL using the given model tag.
func New(baseURL, model string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama: baseURL must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpc:   &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// chatRequest is the /api/chat request body.
type chatRequest struct {
	Model    string          `json:"model"`
	Messages []types.Message `json:"messages"`
	Stream   bool            `json:"stream"`
	Think    bool            `json:"think"`
	Options  modelOptions    `json:"options"`
}

// modelOptions is the per-call sampling configuration.
type modelOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// chatLine is one NDJSON line of a streaming /api/chat response.
type chatLine struct {
	Message struct {
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	Error      string `json:"error"`
}

// generateRequest is the /api/generate request body.
type generateRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	Stream  bool         `json:"stream"`
	Options modelOptions `json:"options"`
}

// generateResponse is the non-streaming /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// chatResult is the accumulated outcome of one streaming chat call.
type chatResult struct {
	content    string
	thinking   string
	doneReason string
}

// Chat implements [llm.Chat]. See the package comment for the retry ladder.
func (c *Client) Chat(ctx context.Context, messages []types.Message, opts llm.Options) (string, error) {
	think := c.think
	if opts.Think != nil {
		think = *opts.Think
	}

	res, err := c.chatOnce(ctx, messages, opts, think)
	if err != nil {
		// /api/chat is unavailable; flatten and fall back.
		return c.generate(ctx, messages, opts)
	}

	if res.content != "" && res.doneReason == "length" {
		retry := opts
		retry.MaxTokens = min(max(opts.MaxTokens*2, retryFloor), retryCeil)
		if again, err := c.chatOnce(ctx, messages, retry, false); err == nil && again.content != "" {
			return strings.TrimSpace(again.content), nil
		}
		// The retry failed; the truncated reply is still usable.
		return strings.TrimSpace(res.content), nil
	}

	if res.content == "" && res.thinking != "" && think {
		if again, err := c.chatOnce(ctx, messages, opts, false); err == nil {
			res = again
		}
	}

	if reply := strings.TrimSpace(res.content); reply != "" {
		return reply, nil
	}
	// Chat finished cleanly but produced nothing usable even after the
	// retries above. /api/generate is the last rung.
	return c.generate(ctx, messages, opts)
}

// chatOnce performs one streaming /api/chat call and accumulates the reply.
func (c *Client) chatOnce(ctx context.Context, messages []types.Message, opts llm.Options, think bool) (chatResult, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
		Think:    think,
		Options: modelOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	})
	if err != nil {
		return chatResult{}, fmt.Errorf("ollama: encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return chatResult{}, fmt.Errorf("ollama: build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return chatResult{}, fmt.Errorf("ollama: chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return chatResult{}, fmt.Errorf("ollama: chat status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res chatResult
	var content, thinking strings.Builder
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var l chatLine
		if err := json.Unmarshal(line, &l); err != nil {
			return chatResult{}, fmt.Errorf("ollama: decode chat line: %w", err)
		}
		if l.Error != "" {
			return chatResult{}, fmt.Errorf("ollama: server error: %s", l.Error)
		}
		content.WriteString(l.Message.Content)
		thinking.WriteString(l.Message.Thinking)
		if l.Done {
			res.doneReason = l.DoneReason
			break
		}
	}
	if err := sc.Err(); err != nil {
		return chatResult{}, fmt.Errorf("ollama: read chat stream: %w", err)
	}

	res.content = content.String()
	res.thinking = thinking.String()
	return res, nil
}

// generate is the /api/generate fallback for servers without /api/chat. The
// conversation is flattened into a single role-prefixed prompt.
func (c *Client) generate(ctx context.Context, messages []types.Message, opts llm.Options) (string, error) {
	var prompt strings.Builder
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			prompt.WriteString("SYSTEM: ")
		case types.RoleAssistant:
			prompt.WriteString("ASSISTANT: ")
		default:
			prompt.WriteString("USER: ")
		}
		prompt.WriteString(m.Content)
		prompt.WriteString("\n")
	}
	prompt.WriteString("ASSISTANT: ")

	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt.String(),
		Stream: false,
		Options: modelOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama: generate status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("ollama: decode generate response: %w", err)
	}
	if gr.Error != "" {
		return "", fmt.Errorf("ollama: server error: %s", gr.Error)
	}
	return strings.TrimSpace(gr.Response), nil
}

// Healthy reports whether the server answers its model listing endpoint.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: build health request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: health request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: health status %d", resp.StatusCode)
	}
	return nil
}

// EnsureRunning checks server health and, when unreachable and a start
// command is configured, spawns the server and polls until it answers or the
// startup timeout passes. The spawned process is detached; it outlives the
// caller.
func (c *Client) EnsureRunning(ctx context.Context) error {
	if err := c.Healthy(ctx); err == nil {
		return nil
	}
	if c.startCommand == "" {
		return fmt.Errorf("ollama: server at %s is unreachable and no start command is configured", c.baseURL)
	}

	fields := strings.Fields(c.startCommand)
	cmd := exec.Command(fields[0], fields[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ollama: start %q: %w", c.startCommand, err)
	}
	slog.Info("spawned LLM server", "command", c.startCommand, "pid", cmd.Process.Pid)
	// Reap the child if it ever exits; we do not wait on it here.
	go func() { _ = cmd.Wait() }()

	deadline := time.Now().Add(c.startupTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startupPoll):
		}
		if err := c.Healthy(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("ollama: server did not come up within %s", c.startupTimeout)
}

// Ensure Client implements llm.Chat at compile time.
var _ llm.Chat = (*Client)(nil)
