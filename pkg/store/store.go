package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/pkg/errors"
)

const (
	LogKindPrompt    = "PROMPT"
	LogKindTaskError = "TASK ERROR"

	GlobalConfigField = "global_config"
)

type Agent struct {
	ID     int64          `json:"id" yaml:"-"`
	Name   string         `json:"name" yaml:"name"`
	Desc   string         `json:"desc" yaml:"desc,omitempty"`
	Config config.Overlay `json:"config" yaml:"config,omitempty"`
}

// Member is an agent attached to a root context.
type Member struct {
	ID        int64          `json:"id"`
	ContextID int64          `json:"context_id"`
	AgentID   int64          `json:"agent_id"`
	Config    config.Overlay `json:"agent_config"`
	Position  int            `json:"position"`
}

// InputType tells how a member uses one of its inputs.
type InputType int

const (
	// InputMessage makes the member respond only after the input responded.
	InputMessage InputType = 0
	// InputContext only orders the member after the input.
	InputContext InputType = 1
)

func (t InputType) String() string {
	switch t {
	case InputMessage:
		return "message"
	case InputContext:
		return "context"
	default:
		return fmt.Sprintf("InputType(%d)", int(t))
	}
}

func ParseInputType(s string) (InputType, error) {
	switch s {
	case "message", "0":
		return InputMessage, nil
	case "context", "1":
		return InputContext, nil
	}
	return 0, errors.Errorf("unknown input type %q", s)
}

// UserInput is the InputMemberID of the user.
const UserInput int64 = 0

// MemberInput is an edge of the member input graph of a context.
type MemberInput struct {
	MemberID      int64     `json:"member_id"`
	InputMemberID int64     `json:"input_member_id"`
	Type          InputType `json:"type"`
}

type LogEntry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type AgentStore interface {
	CreateAgent(ctx context.Context, a *Agent) (*Agent, error)
	GetAgent(ctx context.Context, id int64) (*Agent, error)
	GetAgentByName(ctx context.Context, name string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	UpdateAgentConfig(ctx context.Context, id int64, overlay config.Overlay) error
}

// ErrSelfInput is returned when a member is made its own input.
var ErrSelfInput = errors.New("a member cannot be its own input")

type MemberStore interface {
	AddMember(ctx context.Context, m *Member) (*Member, error)
	// ListMembers returns the members of a root context ordered by position.
	ListMembers(ctx context.Context, contextID int64) ([]*Member, error)
	// SetMemberConfigValue sets a single key of a member's config overlay in place.
	SetMemberConfigValue(ctx context.Context, memberID int64, key string, value interface{}) error
	// CopyMembers copies the members of a context and their input graph.
	CopyMembers(ctx context.Context, fromContextID int64, toContextID int64) error
	// RemoveMember marks a member as deleted and drops the input edges touching it.
	RemoveMember(ctx context.Context, memberID int64) error

	// SetMemberInput adds an input edge, or changes the type of an existing one.
	SetMemberInput(ctx context.Context, in *MemberInput) error
	RemoveMemberInput(ctx context.Context, memberID int64, inputMemberID int64) error
	ListMemberInputs(ctx context.Context, contextID int64) ([]*MemberInput, error)
}

type SettingsStore interface {
	GetSetting(ctx context.Context, field string) (string, bool, error)
	SetSetting(ctx context.Context, field string, value string) error
}

type BlockStore interface {
	ListBlocks(ctx context.Context) (map[string]string, error)
	SetBlock(ctx context.Context, name string, text string) error
	DeleteBlock(ctx context.Context, name string) error
}

type LogStore interface {
	InsertLog(ctx context.Context, kind string, message string) error
	ListLogs(ctx context.Context, kind string) ([]*LogEntry, error)
}

// Store is everything the application persists.
type Store interface {
	conversation.Store
	AgentStore
	MemberStore
	SettingsStore
	BlockStore
	LogStore

	Close() error
}

func GlobalConfig(ctx context.Context, s SettingsStore) (config.Overlay, error) {
	v, ok, err := s.GetSetting(ctx, GlobalConfigField)
	if err != nil {
		return nil, err
	}
	if !ok {
		return config.Overlay{}, nil
	}
	return config.ParseOverlay(v)
}

func SetGlobalConfig(ctx context.Context, s SettingsStore, overlay config.Overlay) error {
	v, err := overlay.JSON()
	if err != nil {
		return err
	}
	return s.SetSetting(ctx, GlobalConfigField, v)
}
