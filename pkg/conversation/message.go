package conversation

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleCode      Role = "code"
	RoleOutput    Role = "output"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleCode, RoleOutput:
		return true
	default:
		return false
	}
}

// Message is a single persisted entry of a context. Messages are immutable once stored.
type Message struct {
	ID        int64     `json:"id"`
	ContextID int64     `json:"context_id"`
	MemberID  int64     `json:"member_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Log       string    `json:"log,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageOption func(*Message)

func WithMemberID(memberID int64) MessageOption {
	return func(m *Message) {
		m.MemberID = memberID
	}
}

func WithLog(log string) MessageOption {
	return func(m *Message) {
		m.Log = log
	}
}

func WithTimestamp(t time.Time) MessageOption {
	return func(m *Message) {
		m.Timestamp = t
	}
}

// NewMessage builds an unsaved message. The store assigns the ID.
func NewMessage(contextID int64, role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ContextID: contextID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (m *Message) String() string {
	return fmt.Sprintf("[%s#%d]: %s", m.Role, m.ID, strings.TrimRight(m.Content, "\n"))
}

// LLMMessage is a message collapsed into the two-role schema used by chat completion APIs.
type LLMMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Transcript []*Message

func (t Transcript) IDs() []int64 {
	ret := make([]int64, 0, len(t))
	for _, m := range t {
		ret = append(ret, m.ID)
	}
	return ret
}

func (t Transcript) Last() (*Message, bool) {
	if len(t) == 0 {
		return nil, false
	}
	return t[len(t)-1], true
}

// Index returns the position of the message with the given id, or -1.
func (t Transcript) Index(id int64) int {
	for i, m := range t {
		if m.ID == id {
			return i
		}
	}
	return -1
}
