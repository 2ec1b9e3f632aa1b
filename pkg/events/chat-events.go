package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type EventType string

const (
	EventTypeStart     EventType = "start"
	EventTypePartial   EventType = "partial"
	EventTypeConfirm   EventType = "confirm"
	EventTypeFinal     EventType = "final"
	EventTypeInterrupt EventType = "interrupt"
	EventTypeError     EventType = "error"
	EventTypeTaskError EventType = "task-error"
	EventTypeState     EventType = "state"
)

// Event is published while an agent produces a response.
type Event struct {
	Type EventType     `json:"type"`
	Meta EventMetadata `json:"meta"`

	// Key is the chunk key of a partial event (assistant or code).
	Key   string `json:"key,omitempty"`
	Delta string `json:"delta,omitempty"`
	// Completion is the assistant text accumulated so far.
	Completion string `json:"completion,omitempty"`

	Language string `json:"language,omitempty"`
	Code     string `json:"code,omitempty"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewStartEvent(meta EventMetadata) *Event {
	return &Event{Type: EventTypeStart, Meta: meta}
}

func NewPartialEvent(meta EventMetadata, key string, delta string, completion string) *Event {
	return &Event{Type: EventTypePartial, Meta: meta, Key: key, Delta: delta, Completion: completion}
}

func NewConfirmEvent(meta EventMetadata, language string, code string) *Event {
	return &Event{Type: EventTypeConfirm, Meta: meta, Language: language, Code: code}
}

func NewFinalEvent(meta EventMetadata, text string) *Event {
	return &Event{Type: EventTypeFinal, Meta: meta, Completion: text}
}

func NewInterruptEvent(meta EventMetadata, completion string) *Event {
	return &Event{Type: EventTypeInterrupt, Meta: meta, Completion: completion}
}

func NewErrorEvent(meta EventMetadata, err error) *Event {
	return &Event{Type: EventTypeError, Meta: meta, Error: err.Error()}
}

func NewTaskErrorEvent(meta EventMetadata, err error) *Event {
	return &Event{Type: EventTypeTaskError, Meta: meta, Error: err.Error()}
}

func NewStateEvent(meta EventMetadata, state string) *Event {
	return &Event{Type: EventTypeState, Meta: meta, State: state}
}

func NewEventFromJSON(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "could not parse event")
	}
	if e.Type == "" {
		return nil, errors.New("event has no type")
	}
	return &e, nil
}

// EventMetadata identifies the response an event belongs to.
type EventMetadata struct {
	ResponseID uuid.UUID `json:"response_id"`
	ContextID  int64     `json:"context_id"`
	MemberID   int64     `json:"member_id"`
	AgentName  string    `json:"agent_name,omitempty"`
	Model      string    `json:"model,omitempty"`
}
