package conversation

import "context"

// Store persists contexts and messages. Implementations must be safe for concurrent use.
type Store interface {
	// CreateContext inserts a context row and returns it with its ID assigned.
	CreateContext(ctx context.Context, node *ContextNode) (*ContextNode, error)
	GetContext(ctx context.Context, id int64) (*ContextNode, error)
	// ListContexts returns rootID and all its descendants.
	ListContexts(ctx context.Context, rootID int64) ([]*ContextNode, error)
	ListRootContexts(ctx context.Context) ([]*ContextNode, error)
	SetContextActive(ctx context.Context, id int64, active bool) error
	SetLeaf(ctx context.Context, rootID int64, leafID int64) error
	// DeleteContextTree removes all descendants of rootID and their messages,
	// and the root itself unless keepRoot is set.
	DeleteContextTree(ctx context.Context, rootID int64, keepRoot bool) error

	InsertMessage(ctx context.Context, m *Message) (*Message, error)
	GetMessage(ctx context.Context, id int64) (*Message, error)
	// ListMessages returns the messages of the given contexts ordered by id.
	ListMessages(ctx context.Context, contextIDs []int64) ([]*Message, error)
}
