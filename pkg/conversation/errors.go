package conversation

import "github.com/pkg/errors"

var (
	// ErrEmptyContent is returned when a message is blank after normalization. No row is created.
	ErrEmptyContent = errors.New("message content is empty")
	ErrNotFound     = errors.New("not found")
	ErrNotRoot      = errors.New("context is not a root context")
)
