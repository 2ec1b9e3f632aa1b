package chat

import (
	"context"
	"time"

	"github.com/go-go-golems/agentpilot/pkg/agent"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/go-go-golems/agentpilot/pkg/prompt"
	"github.com/go-go-golems/agentpilot/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Send appends a user message.
func (c *Context) Send(ctx context.Context, content string) (*conversation.Message, error) {
	return c.history.Append(ctx, conversation.RoleUser, content)
}

// AddOutput appends the output of an executed code block.
func (c *Context) AddOutput(ctx context.Context, output string) (*conversation.Message, error) {
	return c.history.Append(ctx, conversation.RoleOutput, output)
}

// Respond lets the members reply, each after its inputs. emit receives the forwarded chunks.
// A stop request ends the whole cycle.
func (c *Context) Respond(ctx context.Context, emit func(memberID int64, chunk llm.Chunk)) ([]*agent.Response, error) {
	if !c.responding.TryAcquire(1) {
		return nil, ErrResponding
	}
	defer c.responding.Release(1)
	c.stop.Store(false)

	var ret []*agent.Response
	fired := map[int64]bool{store.UserInput: true}
	for _, m := range responseOrder(c.members, c.inputs) {
		if !triggered(m.ID, c.inputs, fired) {
			log.Debug().Int64("context_id", c.ContextID()).Int64("member_id", m.ID).Msg("no input responded, skipping member")
			continue
		}
		resp, err := m.Agent.Respond(ctx, emit)
		if err != nil {
			var upstream *llm.UpstreamAPIError
			if errors.As(err, &upstream) {
				return ret, err
			}
			return ret, errors.Wrapf(err, "member %d could not respond", m.ID)
		}
		ret = append(ret, resp)
		if resp.Stopped {
			log.Debug().Int64("context_id", c.ContextID()).Int64("member_id", m.ID).Msg("response cycle stopped")
			break
		}
		if resp.Text != "" {
			m.setLastOutput(resp.Text)
			fired[m.ID] = true
		}
	}
	return ret, nil
}

// Enqueue schedules an intermediate instruction for memberID, picked up by the poller.
func (c *Context) Enqueue(memberID int64, instruction string) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	c.queue = append(c.queue, queuedInstruction{memberID: memberID, instruction: instruction})
}

func (c *Context) dequeue() (queuedInstruction, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) == 0 {
		return queuedInstruction{}, false
	}
	ret := c.queue[0]
	c.queue = c.queue[1:]
	return ret, true
}

func (c *Context) queueLen() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}

// RunPoller answers queued instructions while the context is not responding, until ctx is done.
func (c *Context) RunPoller(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.poll(ctx); err != nil {
				log.Error().Err(err).Int64("context_id", c.ContextID()).Msg("could not answer queued instruction")
			}
		}
	}
}

// poll answers at most one queued instruction. It does nothing while a response is running.
func (c *Context) poll(ctx context.Context) (bool, error) {
	if c.queueLen() == 0 {
		return false, nil
	}
	if !c.responding.TryAcquire(1) {
		return false, nil
	}
	defer c.responding.Release(1)
	c.stop.Store(false)

	item, ok := c.dequeue()
	if !ok {
		return false, nil
	}
	m, err := c.Member(item.memberID)
	if err != nil {
		return true, err
	}

	text, err := m.Agent.GetResponse(ctx, agent.ResponseOptions{
		ExtraPrompt:   prompt.FormatInstruction(item.instruction),
		CheckForTasks: false,
	})
	if err != nil {
		return true, err
	}
	if text != "" {
		m.setLastOutput(text)
	}
	return true, nil
}
