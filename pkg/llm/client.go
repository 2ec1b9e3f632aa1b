package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/agentpilot/pkg/conversation"
)

// Request is a chat completion request in provider independent form.
type Request struct {
	Model       string                    `json:"model"`
	System      string                    `json:"system"`
	Messages    []conversation.LLMMessage `json:"messages"`
	Temperature float64                   `json:"temperature,omitempty"`
	MaxTokens   int                       `json:"max_tokens,omitempty"`
}

// Log serializes the request for the log column of the produced messages.
func (r *Request) Log() string {
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}

// Stream yields text deltas. Recv returns io.EOF when the completion is done.
type Stream interface {
	Recv() (string, error)
	Close() error
}

type Client interface {
	Stream(ctx context.Context, req *Request) (Stream, error)
	Complete(ctx context.Context, req *Request) (string, error)
}

// UpstreamAPIError wraps a failure of the completion endpoint. It is never retried.
type UpstreamAPIError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UpstreamAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamAPIError) Unwrap() error {
	return e.Err
}
