// Package inference turns a raw streaming LLM completion into a lazy
// sequence of validated detection objects, with retry and identifier repair.
package inference

import (
	"context"
	"time"
)

// CompletionRequest is the provider-agnostic request shape.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// LLMClient abstracts the streaming large-language-model capability.
// StreamCompletion returns a channel of text deltas plus an error channel:
// the error channel receives nil on successful completion (or a non-nil
// error) and is then closed. Implementations must honor ctx cancellation.
type LLMClient interface {
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan string, <-chan error)
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Options tunes the detection client.
type Options struct {
	// MaxRetries is how many times a mid-stream failure is retried with the
	// identical request before the stream terminates with an error marker.
	MaxRetries int
	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt (1s, 2s, 4s ... by default).
	InitialBackoff time.Duration
	// MaxTokens for the detection completion.
	MaxTokens int
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	return o
}

// Client issues detection requests against an LLMClient and exposes the
// response as a DetectionStream.
type Client struct {
	llm  LLMClient
	opts Options
}

// NewClient creates a detection client over the given provider.
func NewClient(llm LLMClient, opts Options) *Client {
	return &Client{llm: llm, opts: opts.withDefaults()}
}

// StreamDetections starts one detection request for the given meeting
// context and returns immediately. Records become available through
// DetectionStream.Next as soon as each newline-delimited JSON record is
// observed, well before the underlying stream ends.
func (c *Client) StreamDetections(ctx context.Context, contextText string) *DetectionStream {
	s := newDetectionStream()
	go s.run(ctx, c.llm, CompletionRequest{
		System:    detectionSystemPrompt,
		Prompt:    detectionUserPrompt(contextText),
		MaxTokens: c.opts.MaxTokens,
	}, c.opts)
	return s
}
