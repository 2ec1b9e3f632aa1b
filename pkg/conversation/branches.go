package conversation

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ForkAt creates a new active branch continuing right after msgID. msgID 0
// forks at the very start of the root context. The new branch becomes the
// effective leaf; its transcript is the current one truncated at msgID.
func (h *History) ForkAt(ctx context.Context, msgID int64) (*ContextNode, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, err := h.Tree(ctx)
	if err != nil {
		return nil, err
	}

	ownerID := h.rootID
	if msgID != 0 {
		var ok bool
		ownerID, ok = t.OwnerOf(msgID)
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "message %d", msgID)
		}
	}

	return h.fork(ctx, t, ownerID, msgID)
}

func (h *History) fork(ctx context.Context, t *Tree, ownerID int64, msgID int64) (*ContextNode, error) {
	if err := h.activateChain(ctx, t, ownerID); err != nil {
		return nil, err
	}
	if err := h.deactivateChildren(ctx, t, ownerID, func(c *ContextNode) bool {
		return c.BranchMsgID <= msgID
	}); err != nil {
		return nil, err
	}

	node, err := h.store.CreateContext(ctx, &ContextNode{
		ParentID:    ownerID,
		BranchMsgID: msgID,
		Active:      true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create branch context")
	}

	log.Debug().
		Int64("root_id", h.rootID).
		Int64("parent_id", ownerID).
		Int64("branch_msg_id", msgID).
		Int64("context_id", node.ID).
		Msg("forked context")

	if err := h.refreshLeaf(ctx); err != nil {
		return nil, err
	}
	return node, nil
}

// ActivateBranch makes the branch containing msgID effective, deactivating
// the competing branches at every fork point on the way from the root.
func (h *History) ActivateBranch(ctx context.Context, msgID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, err := h.Tree(ctx)
	if err != nil {
		return err
	}
	ownerID, ok := t.OwnerOf(msgID)
	if !ok {
		return errors.Wrapf(ErrNotFound, "message %d", msgID)
	}

	if err := h.activateChain(ctx, t, ownerID); err != nil {
		return err
	}
	// branches forking before msgID inside its own context would hide it
	if err := h.deactivateChildren(ctx, t, ownerID, func(c *ContextNode) bool {
		return c.BranchMsgID < msgID
	}); err != nil {
		return err
	}

	return h.refreshLeaf(ctx)
}

// DeactivateAllBranches deactivates every branch forked at msgID so the
// owning context's own continuation becomes effective again.
func (h *History) DeactivateAllBranches(ctx context.Context, msgID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, err := h.Tree(ctx)
	if err != nil {
		return err
	}

	ownerID := h.rootID
	if msgID != 0 {
		var ok bool
		ownerID, ok = t.OwnerOf(msgID)
		if !ok {
			return errors.Wrapf(ErrNotFound, "message %d", msgID)
		}
	}

	if err := h.deactivateChildren(ctx, t, ownerID, func(c *ContextNode) bool {
		return c.BranchMsgID == msgID
	}); err != nil {
		return err
	}

	return h.refreshLeaf(ctx)
}

// Resend replaces msgID with new content in a new branch: it forks right
// before msgID and appends content there as a user message. The original
// message stays reachable as an alternative.
func (h *History) Resend(ctx context.Context, msgID int64, content string, options ...MessageOption) (*Message, error) {
	content, err := NormalizeContent(RoleUser, content)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	t, err := h.Tree(ctx)
	if err != nil {
		return nil, err
	}
	msgs, _ := t.Transcript()
	if msgs.Index(msgID) < 0 {
		return nil, errors.Wrapf(ErrNotFound, "message %d is not in the effective transcript", msgID)
	}
	ownerID, _ := t.OwnerOf(msgID)

	if _, err := h.fork(ctx, t, ownerID, t.predecessorInContext(ownerID, msgID)); err != nil {
		return nil, err
	}
	return h.appendLocked(ctx, RoleUser, content, options...)
}

// Alternatives returns, per fork point, the first message ids of its alternatives.
func (h *History) Alternatives(ctx context.Context) (map[int64][]int64, error) {
	t, err := h.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return t.Alternatives(), nil
}

// activateChain marks contextID and its ancestors active and deactivates
// every branch that would be taken before reaching them.
func (h *History) activateChain(ctx context.Context, t *Tree, contextID int64) error {
	for _, c := range t.ancestry(contextID) {
		if c.IsRoot() {
			break
		}
		self := c
		if err := h.deactivateChildren(ctx, t, c.ParentID, func(o *ContextNode) bool {
			return o.ID != self.ID && o.BranchMsgID <= self.BranchMsgID
		}); err != nil {
			return err
		}
		if !c.Active {
			if err := h.store.SetContextActive(ctx, c.ID, true); err != nil {
				return errors.Wrapf(err, "could not activate context %d", c.ID)
			}
			c.Active = true
		}
	}
	return nil
}

func (h *History) deactivateChildren(ctx context.Context, t *Tree, parentID int64, match func(*ContextNode) bool) error {
	for _, c := range t.children[parentID] {
		if !c.Active || !match(c) {
			continue
		}
		if err := h.store.SetContextActive(ctx, c.ID, false); err != nil {
			return errors.Wrapf(err, "could not deactivate context %d", c.ID)
		}
		c.Active = false
	}
	return nil
}

func (h *History) refreshLeaf(ctx context.Context) error {
	_, leaf, err := h.Transcript(ctx)
	if err != nil {
		return err
	}
	return h.store.SetLeaf(ctx, h.rootID, leaf)
}
