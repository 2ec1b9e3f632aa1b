package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// InMemoryStore is a Store backed by maps. It is used in tests and as the
// building block of the in-memory application store.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	nextMsg  int64
	contexts map[int64]*ContextNode
	messages map[int64]*Message
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contexts: map[int64]*ContextNode{},
		messages: map[int64]*Message{},
	}
}

func (s *InMemoryStore) CreateContext(_ context.Context, node *ContextNode) (*ContextNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node.ParentID != 0 {
		if _, ok := s.contexts[node.ParentID]; !ok {
			return nil, errors.Wrapf(ErrNotFound, "parent context %d", node.ParentID)
		}
	}

	s.nextID++
	c := *node
	c.ID = s.nextID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.contexts[c.ID] = &c

	ret := c
	return &ret, nil
}

func (s *InMemoryStore) GetContext(_ context.Context, id int64) (*ContextNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contexts[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "context %d", id)
	}
	ret := *c
	return &ret, nil
}

func (s *InMemoryStore) ListContexts(_ context.Context, rootID int64) ([]*ContextNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.contexts[rootID]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "context %d", rootID)
	}

	ids := s.descendants(rootID)
	ret := make([]*ContextNode, 0, len(ids))
	for _, id := range ids {
		c := *s.contexts[id]
		ret = append(ret, &c)
	}
	return ret, nil
}

// descendants returns rootID and every context below it, sorted by id.
func (s *InMemoryStore) descendants(rootID int64) []int64 {
	ids := []int64{rootID}
	seen := map[int64]bool{rootID: true}
	for changed := true; changed; {
		changed = false
		for _, c := range s.contexts {
			if !seen[c.ID] && seen[c.ParentID] && c.ParentID != 0 {
				seen[c.ID] = true
				ids = append(ids, c.ID)
				changed = true
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *InMemoryStore) ListRootContexts(_ context.Context) ([]*ContextNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ret []*ContextNode
	for _, c := range s.contexts {
		if c.IsRoot() {
			cp := *c
			ret = append(ret, &cp)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

func (s *InMemoryStore) SetContextActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contexts[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "context %d", id)
	}
	c.Active = active
	return nil
}

func (s *InMemoryStore) SetLeaf(_ context.Context, rootID int64, leafID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contexts[rootID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "context %d", rootID)
	}
	c.LeafID = leafID
	return nil
}

func (s *InMemoryStore) DeleteContextTree(_ context.Context, rootID int64, keepRoot bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contexts[rootID]; !ok {
		return errors.Wrapf(ErrNotFound, "context %d", rootID)
	}

	doomed := map[int64]bool{}
	for _, id := range s.descendants(rootID) {
		doomed[id] = true
	}
	for id, m := range s.messages {
		if doomed[m.ContextID] {
			delete(s.messages, id)
		}
	}
	for id := range doomed {
		if id == rootID && keepRoot {
			s.contexts[id].LeafID = 0
			continue
		}
		delete(s.contexts, id)
	}
	return nil
}

func (s *InMemoryStore) InsertMessage(_ context.Context, m *Message) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contexts[m.ContextID]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "context %d", m.ContextID)
	}

	s.nextMsg++
	stored := *m
	stored.ID = s.nextMsg
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now()
	}
	s.messages[stored.ID] = &stored

	ret := stored
	return &ret, nil
}

func (s *InMemoryStore) GetMessage(_ context.Context, id int64) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "message %d", id)
	}
	ret := *m
	return &ret, nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, contextIDs []int64) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := map[int64]bool{}
	for _, id := range contextIDs {
		wanted[id] = true
	}

	var ret []*Message
	for _, m := range s.messages {
		if wanted[m.ContextID] {
			cp := *m
			ret = append(ret, &cp)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}
