package task

import (
	"context"
	"testing"

	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcTask struct {
	run func() (bool, string, error)
}

func (f *funcTask) Objective() string { return "count the stars" }
func (f *funcTask) Status() Status    { return StatusRunning }
func (f *funcTask) Run(context.Context) (bool, string, error) {
	return f.run()
}

func TestExecuteConvertsFailures(t *testing.T) {
	ctx := context.Background()

	finished, response, err := Execute(ctx, &funcTask{run: func() (bool, string, error) {
		return true, "[INF] done", nil
	}})
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, "[INF] done", response)

	boom := errors.New("boom")
	_, _, err = Execute(ctx, &funcTask{run: func() (bool, string, error) {
		return false, "", boom
	}})
	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "count the stars", execErr.Objective)
	assert.True(t, errors.Is(err, boom))

	finished, response, err = Execute(ctx, &funcTask{run: func() (bool, string, error) {
		panic("kaputt")
	}})
	require.True(t, errors.As(err, &execErr))
	assert.Contains(t, err.Error(), "kaputt")
	assert.False(t, finished)
	assert.Empty(t, response)
}

func transcript(msgs ...*conversation.Message) conversation.Transcript {
	return conversation.Transcript(msgs)
}

func TestLLMTask(t *testing.T) {
	ctx := context.Background()
	client := llm.NewScriptedClient().AddCompletion("  It is 42.  ")

	task, err := NewLLMTask(ctx, Env{
		Transcript: transcript(
			conversation.NewMessage(1, conversation.RoleUser, "first question"),
			conversation.NewMessage(1, conversation.RoleAssistant, "an answer"),
			conversation.NewMessage(1, conversation.RoleUser, "what is the answer?"),
		),
		Client: client,
		Model:  "gpt-4",
	})
	require.NoError(t, err)
	assert.Equal(t, "what is the answer?", task.Objective())
	assert.Equal(t, StatusPending, task.Status())

	finished, response, err := Execute(ctx, task)
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, "[ANS] It is 42.", response)
	assert.Equal(t, StatusCompleted, task.Status())

	req := client.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "gpt-4", req.Model)
	assert.Equal(t, "what is the answer?", req.Messages[0].Content)
}

func TestLLMTaskNotifiesBeforeWorking(t *testing.T) {
	client := llm.NewScriptedClient().AddCompletion("done")
	var notes []string

	task, err := NewLLMTask(context.Background(), Env{
		Transcript: transcript(conversation.NewMessage(1, conversation.RoleUser, "book a table")),
		Client:     client,
		Notify: func(instruction string) {
			// nothing was requested yet
			assert.Empty(t, client.Requests)
			notes = append(notes, instruction)
		},
	})
	require.NoError(t, err)

	_, _, err = Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []string{"[INF] working on `book a table`"}, notes)
}

func TestLLMTaskCancelledWithoutObjective(t *testing.T) {
	task, err := NewLLMTask(context.Background(), Env{
		Transcript: transcript(conversation.NewMessage(1, conversation.RoleAssistant, "hi")),
		Client:     llm.NewScriptedClient(),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, task.Status())
}

func TestLLMTaskFailure(t *testing.T) {
	client := llm.NewScriptedClient()
	client.CompleteErr = errors.New("rate limited")

	task, err := NewLLMTask(context.Background(), Env{
		Transcript: transcript(conversation.NewMessage(1, conversation.RoleUser, "do it")),
		Client:     client,
	})
	require.NoError(t, err)

	_, _, err = Execute(context.Background(), task)
	var upstream *llm.UpstreamAPIError
	assert.True(t, errors.As(err, &upstream))
	assert.Equal(t, StatusFailed, task.Status())
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	f, err := r.Get(LLMTaskName)
	require.NoError(t, err)
	_, err = f(context.Background(), Env{})
	require.Error(t, err)
}
