// Package llm provides the completion client used for intent classification
// and draft generation. The concrete implementation speaks the
// OpenAI-compatible chat completions protocol; everything above it depends
// only on the Client interface.
package llm

import (
	"context"
	"time"
)

const (
	// DefaultMaxTokens is the completion token bound used when a request
	// does not specify one.
	DefaultMaxTokens = 1024

	// DefaultTimeout is the per-call timeout applied when a request does
	// not specify one. The LLM call is one of the two unbounded-latency
	// points in the system, so every call carries a deadline.
	DefaultTimeout = 60 * time.Second
)

// Request describes a single completion call.
type Request struct {
	// System is the system prompt, may be empty.
	System string

	// Prompt is the user-role prompt.
	Prompt string

	// MaxTokens bounds the completion length. Zero means
	// DefaultMaxTokens.
	MaxTokens int

	// Timeout bounds the call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Client is the completion interface the pipeline depends on. Any non-timely
// or malformed response surfaces as an error; callers treat all failures
// uniformly as retryable generation failures.
type Client interface {
	// Complete runs a single completion and returns the raw response
	// text.
	Complete(ctx context.Context, req Request) (string, error)
}
