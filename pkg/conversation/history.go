package conversation

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Format int

const (
	// FormatRaw keeps the stored roles.
	FormatRaw Format = iota
	// FormatLLM collapses the transcript into the user/assistant schema.
	FormatLLM
)

// History is the branchable message history of one root context.
// Appends always go to the effective leaf.
type History struct {
	store  Store
	rootID int64
	mu     sync.Mutex
}

func NewHistory(store Store, rootID int64) *History {
	return &History{
		store:  store,
		rootID: rootID,
	}
}

func (h *History) RootID() int64 {
	return h.rootID
}

// Tree loads a snapshot of the whole context tree.
func (h *History) Tree(ctx context.Context) (*Tree, error) {
	contexts, err := h.store.ListContexts(ctx, h.rootID)
	if err != nil {
		return nil, errors.Wrap(err, "could not list contexts")
	}
	ids := make([]int64, 0, len(contexts))
	for _, c := range contexts {
		ids = append(ids, c.ID)
	}
	messages, err := h.store.ListMessages(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "could not list messages")
	}
	return NewTree(h.rootID, contexts, messages)
}

// Transcript returns the effective transcript and the effective leaf context id.
func (h *History) Transcript(ctx context.Context) (Transcript, int64, error) {
	t, err := h.Tree(ctx)
	if err != nil {
		return nil, 0, err
	}
	msgs, leaf := t.Transcript()
	return msgs, leaf, nil
}

// Append normalizes content and stores it at the end of the effective transcript.
func (h *History) Append(ctx context.Context, role Role, content string, options ...MessageOption) (*Message, error) {
	if !role.Valid() {
		return nil, errors.Errorf("invalid role %q", role)
	}
	content, err := NormalizeContent(role, content)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.appendLocked(ctx, role, content, options...)
}

func (h *History) appendLocked(ctx context.Context, role Role, content string, options ...MessageOption) (*Message, error) {
	_, leaf, err := h.Transcript(ctx)
	if err != nil {
		return nil, err
	}

	m, err := h.store.InsertMessage(ctx, NewMessage(leaf, role, content, options...))
	if err != nil {
		return nil, errors.Wrap(err, "could not insert message")
	}

	log.Trace().
		Int64("context_id", leaf).
		Int64("message_id", m.ID).
		Str("role", string(role)).
		Msg("appended message")

	return m, nil
}

// Get returns the effective transcript as seen by memberID.
// With FormatLLM, messages authored by other members are presented as user turns
// and consecutive turns of the same role are merged.
func (h *History) Get(ctx context.Context, format Format, memberID int64) ([]LLMMessage, error) {
	msgs, _, err := h.Transcript(ctx)
	if err != nil {
		return nil, err
	}
	if format == FormatRaw {
		ret := make([]LLMMessage, 0, len(msgs))
		for _, m := range msgs {
			ret = append(ret, LLMMessage{Role: m.Role, Content: m.Content})
		}
		return ret, nil
	}
	return ToLLM(msgs, memberID), nil
}

func ToLLM(msgs Transcript, memberID int64) []LLMMessage {
	var ret []LLMMessage
	for _, m := range msgs {
		var role Role
		switch m.Role {
		case RoleUser, RoleOutput:
			role = RoleUser
		case RoleAssistant, RoleCode:
			if memberID == 0 || m.MemberID == memberID {
				role = RoleAssistant
			} else {
				role = RoleUser
			}
		default:
			continue
		}

		if n := len(ret); n > 0 && ret[n-1].Role == role {
			ret[n-1].Content += "\n\n" + m.Content
			continue
		}
		ret = append(ret, LLMMessage{Role: role, Content: m.Content})
	}
	return ret
}

// LastRole returns the role of the last effective message. ok is false for an empty history.
func (h *History) LastRole(ctx context.Context) (Role, bool, error) {
	msgs, _, err := h.Transcript(ctx)
	if err != nil {
		return "", false, err
	}
	last, ok := msgs.Last()
	if !ok {
		return "", false, nil
	}
	return last.Role, true, nil
}

// Clear deletes every branch and message of the conversation, keeping the root context.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.DeleteContextTree(ctx, h.rootID, true)
}
