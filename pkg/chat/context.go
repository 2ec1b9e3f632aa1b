package chat

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-go-golems/agentpilot/pkg/agent"
	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/go-go-golems/agentpilot/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

var (
	ErrResponding    = errors.New("context is already responding")
	ErrUnknownMember = errors.New("unknown member")
)

// Member is an agent taking part in a conversation.
type Member struct {
	ID       int64
	AgentID  int64
	Position int
	Agent    *agent.Agent

	mu         sync.Mutex
	lastOutput string
}

// LastOutput is the text of the member's last reply in this session.
func (m *Member) LastOutput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOutput
}

func (m *Member) setLastOutput(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOutput = s
}

type queuedInstruction struct {
	memberID    int64
	instruction string
}

// Context is a conversation with its members. Only one response cycle runs at a time.
type Context struct {
	store   store.Store
	client  llm.Client
	history *conversation.History
	members []*Member
	inputs  []*store.MemberInput

	agentOptions []agent.Option

	responding *semaphore.Weighted
	stop       atomic.Bool

	queueMu sync.Mutex
	queue   []queuedInstruction
}

var _ agent.Host = (*Context)(nil)

type Option func(*Context)

// WithAgentOptions passes options to every member's agent.
func WithAgentOptions(options ...agent.Option) Option {
	return func(c *Context) {
		c.agentOptions = append(c.agentOptions, options...)
	}
}

// Load opens the root context rootID with its members.
func Load(ctx context.Context, s store.Store, client llm.Client, rootID int64, options ...Option) (*Context, error) {
	node, err := s.GetContext(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if !node.IsRoot() {
		return nil, errors.Wrapf(conversation.ErrNotRoot, "context %d", rootID)
	}

	ret := &Context{
		store:      s,
		client:     client,
		history:    conversation.NewHistory(s, rootID),
		responding: semaphore.NewWeighted(1),
	}
	for _, o := range options {
		o(ret)
	}

	if err := ret.loadMembers(ctx); err != nil {
		return nil, err
	}
	return ret, nil
}

// NewContext creates a root context. Members are copied from copyFrom when it is not 0.
func NewContext(ctx context.Context, s store.Store, client llm.Client, copyFrom int64, options ...Option) (*Context, error) {
	root, err := s.CreateContext(ctx, &conversation.ContextNode{Active: true})
	if err != nil {
		return nil, errors.Wrap(err, "could not create context")
	}
	if copyFrom != 0 {
		if err := s.CopyMembers(ctx, copyFrom, root.ID); err != nil {
			return nil, errors.Wrapf(err, "could not copy members of context %d", copyFrom)
		}
	}
	log.Info().Int64("context_id", root.ID).Int64("copy_from", copyFrom).Msg("created context")
	return Load(ctx, s, client, root.ID, options...)
}

func (c *Context) loadMembers(ctx context.Context) error {
	global, err := store.GlobalConfig(ctx, c.store)
	if err != nil {
		return errors.Wrap(err, "could not load global config")
	}
	members, err := c.store.ListMembers(ctx, c.ContextID())
	if err != nil {
		return errors.Wrap(err, "could not list members")
	}

	c.members = make([]*Member, 0, len(members))
	for _, m := range members {
		member, err := c.newMember(ctx, global, m)
		if err != nil {
			return err
		}
		c.members = append(c.members, member)
	}
	if err := c.loadInputs(ctx); err != nil {
		return err
	}

	log.Debug().Int64("context_id", c.ContextID()).Int("members", len(c.members)).Msg("loaded members")
	return nil
}

func (c *Context) newMember(ctx context.Context, global config.Overlay, m *store.Member) (*Member, error) {
	agentOverlay := config.Overlay{}
	if m.AgentID != 0 {
		a, err := c.store.GetAgent(ctx, m.AgentID)
		if err != nil {
			return nil, errors.Wrapf(err, "could not load agent of member %d", m.ID)
		}
		agentOverlay = a.Config
	}

	cfg, err := config.Resolve(global, agentOverlay, m.Config)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve config of member %d", m.ID)
	}
	a, err := agent.New(m.ID, cfg, c, c.client, c.agentOptions...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create agent of member %d", m.ID)
	}
	return &Member{
		ID:       m.ID,
		AgentID:  m.AgentID,
		Position: m.Position,
		Agent:    a,
	}, nil
}

// AddMember attaches an agent to the conversation after the existing members.
func (c *Context) AddMember(ctx context.Context, agentID int64, overlay config.Overlay) (*Member, error) {
	if overlay == nil {
		overlay = config.Overlay{}
	}
	global, err := store.GlobalConfig(ctx, c.store)
	if err != nil {
		return nil, errors.Wrap(err, "could not load global config")
	}
	position := 0
	if n := len(c.members); n > 0 {
		position = c.members[n-1].Position + 1
	}
	stored, err := c.store.AddMember(ctx, &store.Member{
		ContextID: c.ContextID(),
		AgentID:   agentID,
		Config:    overlay,
		Position:  position,
	})
	if err != nil {
		return nil, err
	}
	m, err := c.newMember(ctx, global, stored)
	if err != nil {
		return nil, err
	}
	c.members = append(c.members, m)
	return m, nil
}

func (c *Context) Members() []*Member {
	return c.members
}

func (c *Context) Member(id int64) (*Member, error) {
	for _, m := range c.members {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknownMember, "member %d", id)
}

func (c *Context) ContextID() int64 {
	return c.history.RootID()
}

func (c *Context) Conversation() *conversation.History {
	return c.history
}

func (c *Context) History(ctx context.Context, memberID int64) ([]conversation.LLMMessage, error) {
	return c.history.Get(ctx, conversation.FormatLLM, memberID)
}

func (c *Context) Transcript(ctx context.Context) (conversation.Transcript, error) {
	msgs, _, err := c.history.Transcript(ctx)
	return msgs, err
}

func (c *Context) LastRole(ctx context.Context) (conversation.Role, bool, error) {
	return c.history.LastRole(ctx)
}

func (c *Context) SaveMessage(ctx context.Context, role conversation.Role, content string, memberID int64, requestLog string) (*conversation.Message, error) {
	return c.history.Append(ctx, role, content, conversation.WithMemberID(memberID), conversation.WithLog(requestLog))
}

func (c *Context) InsertLog(ctx context.Context, kind string, message string) error {
	return c.store.InsertLog(ctx, kind, message)
}

func (c *Context) MemberOutputs(memberID int64) map[string]string {
	ret := map[string]string{}
	for _, m := range c.members {
		out := m.LastOutput()
		if m.ID == memberID || out == "" {
			continue
		}
		ret[m.Agent.Config().OutputPlaceholderFor(m.ID)] = out
	}
	return ret
}

func (c *Context) Blocks(ctx context.Context) (map[string]string, error) {
	return c.store.ListBlocks(ctx)
}

func (c *Context) SetMemberConfigValue(ctx context.Context, memberID int64, key string, value interface{}) error {
	return c.store.SetMemberConfigValue(ctx, memberID, key, value)
}

func (c *Context) UpdateInstanceConfig(ctx context.Context, memberID int64, field string, value interface{}) error {
	m, err := c.Member(memberID)
	if err != nil {
		return err
	}
	return m.Agent.UpdateInstanceConfig(ctx, field, value)
}

// RequestStop asks the running response to stop before its next chunk.
func (c *Context) RequestStop() {
	c.stop.Store(true)
}

func (c *Context) ConsumeStop() bool {
	return c.stop.Swap(false)
}
