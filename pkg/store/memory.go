package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/pkg/errors"
)

type inputEdge struct {
	memberID, inputMemberID int64
}

type MemoryStore struct {
	*conversation.InMemoryStore

	mu       sync.RWMutex
	nextID   int64
	agents   map[int64]*Agent
	members  map[int64]*Member
	removed  map[int64]bool
	inputs   map[inputEdge]InputType
	settings map[string]string
	blocks   map[string]string
	logs     []*LogEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		InMemoryStore: conversation.NewInMemoryStore(),
		agents:        map[int64]*Agent{},
		members:       map[int64]*Member{},
		removed:       map[int64]bool{},
		inputs:        map[inputEdge]InputType{},
		settings:      map[string]string{},
		blocks:        map[string]string{},
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreateAgent(_ context.Context, a *Agent) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *a
	stored.ID = s.id()
	stored.Config = a.Config.Clone()
	s.agents[stored.ID] = &stored

	ret := stored
	ret.Config = stored.Config.Clone()
	return &ret, nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id int64) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, errors.Wrapf(conversation.ErrNotFound, "agent %d", id)
	}
	ret := *a
	ret.Config = a.Config.Clone()
	return &ret, nil
}

func (s *MemoryStore) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	agents, err := s.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, errors.Wrapf(conversation.ErrNotFound, "agent %q", name)
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		cp.Config = a.Config.Clone()
		ret = append(ret, &cp)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

func (s *MemoryStore) UpdateAgentConfig(_ context.Context, id int64, overlay config.Overlay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return errors.Wrapf(conversation.ErrNotFound, "agent %d", id)
	}
	a.Config = overlay.Clone()
	return nil
}

func (s *MemoryStore) AddMember(ctx context.Context, m *Member) (*Member, error) {
	if _, err := s.GetContext(ctx, m.ContextID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.AgentID != 0 {
		if _, ok := s.agents[m.AgentID]; !ok {
			return nil, errors.Wrapf(conversation.ErrNotFound, "agent %d", m.AgentID)
		}
	}

	stored := *m
	stored.ID = s.id()
	stored.Config = m.Config.Clone()
	s.members[stored.ID] = &stored

	ret := stored
	ret.Config = stored.Config.Clone()
	return &ret, nil
}

func (s *MemoryStore) ListMembers(_ context.Context, contextID int64) ([]*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ret []*Member
	for _, m := range s.members {
		if m.ContextID == contextID && !s.removed[m.ID] {
			cp := *m
			cp.Config = m.Config.Clone()
			ret = append(ret, &cp)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Position != ret[j].Position {
			return ret[i].Position < ret[j].Position
		}
		return ret[i].ID < ret[j].ID
	})
	return ret, nil
}

func (s *MemoryStore) SetMemberConfigValue(_ context.Context, memberID int64, key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[memberID]
	if !ok {
		return errors.Wrapf(conversation.ErrNotFound, "member %d", memberID)
	}
	if m.Config == nil {
		m.Config = config.Overlay{}
	}
	m.Config[key] = value
	return nil
}

func (s *MemoryStore) CopyMembers(ctx context.Context, fromContextID int64, toContextID int64) error {
	members, err := s.ListMembers(ctx, fromContextID)
	if err != nil {
		return err
	}
	inputs, err := s.ListMemberInputs(ctx, fromContextID)
	if err != nil {
		return err
	}

	ids := map[int64]int64{UserInput: UserInput}
	for _, m := range members {
		from := m.ID
		m.ContextID = toContextID
		copied, err := s.AddMember(ctx, m)
		if err != nil {
			return err
		}
		ids[from] = copied.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range inputs {
		inputID, ok := ids[in.InputMemberID]
		if !ok {
			continue
		}
		s.inputs[inputEdge{ids[in.MemberID], inputID}] = in.Type
	}
	return nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, memberID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[memberID]; !ok || s.removed[memberID] {
		return errors.Wrapf(conversation.ErrNotFound, "member %d", memberID)
	}
	s.removed[memberID] = true
	for e := range s.inputs {
		if e.memberID == memberID || e.inputMemberID == memberID {
			delete(s.inputs, e)
		}
	}
	return nil
}

func (s *MemoryStore) SetMemberInput(_ context.Context, in *MemberInput) error {
	if in.MemberID == in.InputMemberID {
		return errors.Wrapf(ErrSelfInput, "member %d", in.MemberID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[in.MemberID]; !ok || s.removed[in.MemberID] {
		return errors.Wrapf(conversation.ErrNotFound, "member %d", in.MemberID)
	}
	s.inputs[inputEdge{in.MemberID, in.InputMemberID}] = in.Type
	return nil
}

func (s *MemoryStore) RemoveMemberInput(_ context.Context, memberID int64, inputMemberID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := inputEdge{memberID, inputMemberID}
	if _, ok := s.inputs[e]; !ok {
		return errors.Wrapf(conversation.ErrNotFound, "member input %d", inputMemberID)
	}
	delete(s.inputs, e)
	return nil
}

func (s *MemoryStore) ListMemberInputs(_ context.Context, contextID int64) ([]*MemberInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ret []*MemberInput
	for e, typ := range s.inputs {
		m, ok := s.members[e.memberID]
		if !ok || s.removed[e.memberID] || m.ContextID != contextID {
			continue
		}
		ret = append(ret, &MemberInput{MemberID: e.memberID, InputMemberID: e.inputMemberID, Type: typ})
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].MemberID != ret[j].MemberID {
			return ret[i].MemberID < ret[j].MemberID
		}
		return ret[i].InputMemberID < ret[j].InputMemberID
	})
	return ret, nil
}

func (s *MemoryStore) GetSetting(_ context.Context, field string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[field]
	return v, ok, nil
}

func (s *MemoryStore) SetSetting(_ context.Context, field string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[field] = value
	return nil
}

func (s *MemoryStore) ListBlocks(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make(map[string]string, len(s.blocks))
	for k, v := range s.blocks {
		ret[k] = v
	}
	return ret, nil
}

func (s *MemoryStore) SetBlock(_ context.Context, name string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[name] = text
	return nil
}

func (s *MemoryStore) DeleteBlock(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[name]; !ok {
		return errors.Wrapf(conversation.ErrNotFound, "block %s", name)
	}
	delete(s.blocks, name)
	return nil
}

func (s *MemoryStore) InsertLog(_ context.Context, kind string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, &LogEntry{
		ID:        s.id(),
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	})
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, kind string) ([]*LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ret []*LogEntry
	for _, l := range s.logs {
		if kind == "" || l.Kind == kind {
			cp := *l
			ret = append(ret, &cp)
		}
	}
	return ret, nil
}

func (s *MemoryStore) DeleteContextTree(ctx context.Context, rootID int64, keepRoot bool) error {
	if err := s.InMemoryStore.DeleteContextTree(ctx, rootID, keepRoot); err != nil {
		return err
	}
	if keepRoot {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.members {
		if m.ContextID == rootID {
			delete(s.members, id)
			delete(s.removed, id)
			for e := range s.inputs {
				if e.memberID == id {
					delete(s.inputs, e)
				}
			}
		}
	}
	return nil
}
