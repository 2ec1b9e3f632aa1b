package agent

import "github.com/pkg/errors"

type State int

const (
	StateIdle State = iota
	StateTaskCheck
	StateTaskRunning
	StateDirectResponse
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTaskCheck:
		return "TASK_CHECK"
	case StateTaskRunning:
		return "TASK_RUNNING"
	case StateDirectResponse:
		return "DIRECT_RESPONSE"
	case StateStreaming:
		return "STREAMING"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrUnsupportedOperation is returned when an instruction would have to be
	// appended to a message that was already sent.
	ErrUnsupportedOperation = errors.New("appending an instruction to the last message is not supported")
	ErrResponseInFlight     = errors.New("agent is already responding")
)
