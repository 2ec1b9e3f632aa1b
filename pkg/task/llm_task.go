package task

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const LLMTaskName = "llm"

const workerPrompt = `You are a worker carrying out a task for an assistant.
Complete the objective below as well as you can and reply only with the result.
Be concise, the assistant will relay your result to the user.`

// LLMTask hands the latest user request to a single non-streaming completion.
type LLMTask struct {
	objective string
	client    llm.Client
	model     string
	notify    func(instruction string)

	mu     sync.Mutex
	status Status
}

var _ Task = (*LLMTask)(nil)

func NewLLMTask(_ context.Context, env Env) (Task, error) {
	if env.Client == nil {
		return nil, errors.New("llm task needs a client")
	}

	ret := &LLMTask{
		client: env.Client,
		model:  env.Model,
		notify: env.Notify,
		status: StatusPending,
	}
	for i := len(env.Transcript) - 1; i >= 0; i-- {
		if env.Transcript[i].Role == conversation.RoleUser {
			ret.objective = strings.TrimSpace(env.Transcript[i].Content)
			break
		}
	}
	if ret.objective == "" {
		ret.status = StatusCancelled
	}

	return ret, nil
}

func (t *LLMTask) Objective() string {
	return t.objective
}

func (t *LLMTask) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *LLMTask) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

func (t *LLMTask) Run(ctx context.Context) (bool, string, error) {
	if t.Status() == StatusCancelled {
		return true, "", nil
	}
	t.setStatus(StatusRunning)
	log.Debug().Str("objective", t.objective).Msg("running llm task")
	if t.notify != nil {
		t.notify("[INF] working on `" + t.objective + "`")
	}

	result, err := t.client.Complete(ctx, &llm.Request{
		Model:  t.model,
		System: workerPrompt,
		Messages: []conversation.LLMMessage{
			{Role: conversation.RoleUser, Content: t.objective},
		},
	})
	if err != nil {
		t.setStatus(StatusFailed)
		return false, "", err
	}

	t.setStatus(StatusCompleted)
	result = strings.TrimSpace(result)
	if result == "" {
		return true, "", nil
	}
	return true, "[ANS] " + result, nil
}
