package llm

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ScriptedClient replays canned responses. Each Stream call consumes the next
// script; each Complete call consumes the next completion.
type ScriptedClient struct {
	mu          sync.Mutex
	scripts     [][]string
	completions []string

	StreamErr   error
	// RecvErr fails every stream after its scripted deltas.
	RecvErr     error
	CompleteErr error
	Requests    []*Request
}

var _ Client = (*ScriptedClient)(nil)

func NewScriptedClient(scripts ...[]string) *ScriptedClient {
	return &ScriptedClient{scripts: scripts}
}

func (c *ScriptedClient) AddScript(deltas ...string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts = append(c.scripts, deltas)
	return c
}

func (c *ScriptedClient) AddCompletion(s string) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions = append(c.completions, s)
	return c
}

func (c *ScriptedClient) LastRequest() *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Requests) == 0 {
		return nil
	}
	return c.Requests[len(c.Requests)-1]
}

func (c *ScriptedClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, req)
	if c.StreamErr != nil {
		return nil, &UpstreamAPIError{Op: "chat completion stream", Err: c.StreamErr}
	}

	var deltas []string
	if len(c.scripts) > 0 {
		deltas = c.scripts[0]
		c.scripts = c.scripts[1:]
	}
	return &scriptedStream{ctx: ctx, deltas: deltas, err: c.RecvErr}, nil
}

func (c *ScriptedClient) Complete(_ context.Context, req *Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Requests = append(c.Requests, req)
	if c.CompleteErr != nil {
		return "", &UpstreamAPIError{Op: "chat completion", Err: c.CompleteErr}
	}
	if len(c.completions) == 0 {
		return "", errors.New("no scripted completion left")
	}
	ret := c.completions[0]
	c.completions = c.completions[1:]
	return ret, nil
}

type scriptedStream struct {
	ctx    context.Context
	deltas []string
	err    error
	closed bool
}

func (s *scriptedStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.closed {
		return "", io.EOF
	}
	if len(s.deltas) == 0 {
		if s.err != nil {
			return "", &UpstreamAPIError{Op: "chat completion stream", Err: s.err}
		}
		return "", io.EOF
	}
	ret := s.deltas[0]
	s.deltas = s.deltas[1:]
	return ret, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}
