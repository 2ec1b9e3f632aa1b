package chat

import (
	"context"

	"github.com/go-go-golems/agentpilot/pkg/conversation"
)

func (c *Context) ForkAt(ctx context.Context, msgID int64) (*conversation.ContextNode, error) {
	return c.history.ForkAt(ctx, msgID)
}

func (c *Context) ActivateBranch(ctx context.Context, msgID int64) error {
	return c.history.ActivateBranch(ctx, msgID)
}

func (c *Context) DeactivateAllBranches(ctx context.Context, msgID int64) error {
	return c.history.DeactivateAllBranches(ctx, msgID)
}

// Resend replaces the user message msgID by content in a new branch.
func (c *Context) Resend(ctx context.Context, msgID int64, content string) (*conversation.Message, error) {
	return c.history.Resend(ctx, msgID, content)
}

// Branches maps fork points to the first message of each alternative.
func (c *Context) Branches(ctx context.Context) (map[int64][]int64, error) {
	return c.history.Alternatives(ctx)
}

// Clear deletes all messages and branches and forgets the members' last outputs.
func (c *Context) Clear(ctx context.Context) error {
	if err := c.history.Clear(ctx); err != nil {
		return err
	}
	for _, m := range c.members {
		m.setLastOutput("")
	}
	c.queueMu.Lock()
	c.queue = nil
	c.queueMu.Unlock()
	return nil
}
