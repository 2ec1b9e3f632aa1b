package conversation

import (
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ContextNode is one row of the context tree. A root context has ParentID 0.
// A child context continues its parent's transcript right after BranchMsgID
// (0 means it hangs off the very start of the parent).
type ContextNode struct {
	ID          int64     `json:"id"`
	ParentID    int64     `json:"parent_id"`
	BranchMsgID int64     `json:"branch_msg_id"`
	Active      bool      `json:"active"`
	LeafID      int64     `json:"leaf_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c *ContextNode) IsRoot() bool {
	return c.ParentID == 0
}

// Tree is an in-memory snapshot of a root context, all of its descendant
// branch contexts and their messages.
//
// The effective transcript is computed by descending from the root: after
// each message M of the current context, if an active child context forks at
// M the walk continues inside that child and the rest of the current context
// is not part of the transcript.
type Tree struct {
	RootID   int64
	Contexts map[int64]*ContextNode
	Messages map[int64]Transcript

	children map[int64][]*ContextNode
	owner    map[int64]int64
}

func NewTree(rootID int64, contexts []*ContextNode, messages []*Message) (*Tree, error) {
	t := &Tree{
		RootID:   rootID,
		Contexts: make(map[int64]*ContextNode, len(contexts)),
		Messages: make(map[int64]Transcript, len(contexts)),
		children: make(map[int64][]*ContextNode),
		owner:    make(map[int64]int64, len(messages)),
	}

	for _, c := range contexts {
		t.Contexts[c.ID] = c
	}
	root, ok := t.Contexts[rootID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "root context %d", rootID)
	}
	if !root.IsRoot() {
		return nil, errors.Wrapf(ErrNotRoot, "context %d", rootID)
	}

	for _, c := range contexts {
		if c.IsRoot() {
			continue
		}
		if _, ok := t.Contexts[c.ParentID]; !ok {
			return nil, errors.Errorf("context %d has unknown parent %d", c.ID, c.ParentID)
		}
		t.children[c.ParentID] = append(t.children[c.ParentID], c)
	}
	for _, cs := range t.children {
		sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
	}

	for _, m := range messages {
		if _, ok := t.Contexts[m.ContextID]; !ok {
			continue
		}
		t.Messages[m.ContextID] = append(t.Messages[m.ContextID], m)
		t.owner[m.ID] = m.ContextID
	}
	for _, ms := range t.Messages {
		sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
	}

	return t, nil
}

// Children returns the child contexts of contextID forking at msgID.
func (t *Tree) Children(contextID int64, msgID int64) []*ContextNode {
	var ret []*ContextNode
	for _, c := range t.children[contextID] {
		if c.BranchMsgID == msgID {
			ret = append(ret, c)
		}
	}
	return ret
}

// activeChild picks the active branch at a fork point. If several are marked
// active the most recent one wins.
func (t *Tree) activeChild(contextID int64, msgID int64) *ContextNode {
	var ret *ContextNode
	for _, c := range t.Children(contextID, msgID) {
		if c.Active {
			ret = c
		}
	}
	return ret
}

// OwnerOf returns the context id a message belongs to.
func (t *Tree) OwnerOf(msgID int64) (int64, bool) {
	ret, ok := t.owner[msgID]
	return ret, ok
}

// Transcript returns the effective transcript and the id of the effective leaf context.
func (t *Tree) Transcript() (Transcript, int64) {
	var ret Transcript
	contextID := t.RootID

	for {
		if c := t.activeChild(contextID, 0); c != nil {
			contextID = c.ID
			continue
		}

		switched := false
		for _, m := range t.Messages[contextID] {
			ret = append(ret, m)
			if c := t.activeChild(contextID, m.ID); c != nil {
				contextID = c.ID
				switched = true
				break
			}
		}
		if !switched {
			return ret, contextID
		}
	}
}

// TranscriptForLeaf walks from leafID up through the parents, truncating each
// ancestor at the branch point of the context below it.
func (t *Tree) TranscriptForLeaf(leafID int64) (Transcript, error) {
	var chunks []Transcript
	cutoff := int64(-1)
	contextID := leafID

	for {
		c, ok := t.Contexts[contextID]
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "context %d", contextID)
		}

		var chunk Transcript
		for _, m := range t.Messages[contextID] {
			if cutoff >= 0 && m.ID > cutoff {
				break
			}
			chunk = append(chunk, m)
		}
		chunks = append(chunks, chunk)

		if c.IsRoot() {
			break
		}
		cutoff = c.BranchMsgID
		contextID = c.ParentID
	}

	var ret Transcript
	for i := len(chunks) - 1; i >= 0; i-- {
		ret = append(ret, chunks[i]...)
	}
	return ret, nil
}

// Alternatives maps each fork point to the first message ids of the
// alternatives that continue from it: the parent's own continuation (if any)
// followed by each non-empty branch, oldest first.
func (t *Tree) Alternatives() map[int64][]int64 {
	ret := map[int64][]int64{}

	for parentID, cs := range t.children {
		for _, c := range cs {
			first := t.Messages[c.ID]
			if len(first) == 0 {
				continue
			}
			if _, ok := ret[c.BranchMsgID]; !ok {
				if next, ok := t.nextInContext(parentID, c.BranchMsgID); ok {
					ret[c.BranchMsgID] = append(ret[c.BranchMsgID], next.ID)
				}
			}
			ret[c.BranchMsgID] = append(ret[c.BranchMsgID], first[0].ID)
		}
	}

	return ret
}

func (t *Tree) nextInContext(contextID int64, msgID int64) (*Message, bool) {
	for _, m := range t.Messages[contextID] {
		if m.ID > msgID {
			return m, true
		}
	}
	return nil, false
}

// predecessorInContext returns the id of the message right before msgID in
// its own context, or 0 when msgID is the first one.
func (t *Tree) predecessorInContext(contextID int64, msgID int64) int64 {
	var prev int64
	for _, m := range t.Messages[contextID] {
		if m.ID == msgID {
			return prev
		}
		prev = m.ID
	}
	return prev
}

// ancestry returns contextID and all its ancestors, leaf first.
func (t *Tree) ancestry(contextID int64) []*ContextNode {
	var ret []*ContextNode
	for {
		c, ok := t.Contexts[contextID]
		if !ok {
			return ret
		}
		ret = append(ret, c)
		if c.IsRoot() {
			return ret
		}
		contextID = c.ParentID
	}
}
