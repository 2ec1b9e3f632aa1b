package task

import (
	"context"

	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/go-go-golems/agentpilot/pkg/plugins"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Task is an action an agent works on across responses.
type Task interface {
	Objective() string
	Status() Status
	// Run advances the task. A non-empty response is turned into an
	// instruction for the agent's next reply.
	Run(ctx context.Context) (finished bool, response string, err error)
}

// Env is what a task gets to work with.
type Env struct {
	// Transcript is the effective transcript at the time the task was created.
	Transcript conversation.Transcript
	Client     llm.Client
	Model      string
	// Notify queues an intermediate instruction for the owning member.
	Notify func(instruction string)
}

type Factory func(ctx context.Context, env Env) (Task, error)

type Registry = plugins.Registry[Factory]

func NewRegistry() *Registry {
	return plugins.NewRegistry[Factory]("task")
}

// RegisterBuiltins registers the tasks shipped with agentpilot.
func RegisterBuiltins(r *Registry) error {
	return r.Register(LLMTaskName, NewLLMTask)
}
