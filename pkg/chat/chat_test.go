package chat

import (
	"context"
	"testing"
	"time"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/go-go-golems/agentpilot/pkg/store"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *store.MemoryStore
	client *llm.ScriptedClient
	chat   *Context
	alice  *Member
	bob    *Member
}

func newFixture(t *testing.T, scripts ...[]string) *fixture {
	ctx := context.Background()
	s := store.NewMemoryStore()
	client := llm.NewScriptedClient(scripts...)

	require.NoError(t, store.SetGlobalConfig(ctx, s, config.Overlay{"context.model": "gpt-4"}))
	alice, err := s.CreateAgent(ctx, &store.Agent{Name: "alice", Config: config.Overlay{
		"general.name":                     "Alice",
		"group.output_context_placeholder": "alice_out",
	}})
	require.NoError(t, err)
	bob, err := s.CreateAgent(ctx, &store.Agent{Name: "bob", Config: config.Overlay{
		"general.name":    "Bob",
		"context.sys_msg": "You are {char_name}. Alice said: {alice_out}",
	}})
	require.NoError(t, err)

	c, err := NewContext(ctx, s, client, 0)
	require.NoError(t, err)
	ma, err := c.AddMember(ctx, alice.ID, nil)
	require.NoError(t, err)
	mb, err := c.AddMember(ctx, bob.ID, config.Overlay{"context.model": "gpt-4o"})
	require.NoError(t, err)

	return &fixture{store: s, client: client, chat: c, alice: ma, bob: mb}
}

func (f *fixture) transcript(t *testing.T) conversation.Transcript {
	msgs, err := f.chat.Transcript(context.Background())
	require.NoError(t, err)
	return msgs
}

func TestMembersRespondInOrder(t *testing.T) {
	f := newFixture(t, []string{"Hi from Alice"}, []string{"Hi from Bob"})
	ctx := context.Background()

	_, err := f.chat.Send(ctx, "hello")
	require.NoError(t, err)

	var emitted []int64
	responses, err := f.chat.Respond(ctx, func(memberID int64, _ llm.Chunk) {
		emitted = append(emitted, memberID)
	})
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, []int64{f.alice.ID, f.bob.ID}, emitted)
	assert.Equal(t, "Hi from Alice", f.alice.LastOutput())
	assert.Equal(t, "Hi from Bob", f.bob.LastOutput())

	msgs := f.transcript(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, f.alice.ID, msgs[1].MemberID)
	assert.Equal(t, f.bob.ID, msgs[2].MemberID)

	require.Len(t, f.client.Requests, 2)
	assert.Equal(t, "gpt-4", f.client.Requests[0].Model)
	bobReq := f.client.Requests[1]
	assert.Equal(t, "gpt-4o", bobReq.Model)
	assert.Equal(t, "You are Bob. Alice said: Hi from Alice", bobReq.System)
	// Alice's reply is a user turn for Bob
	require.Len(t, bobReq.Messages, 1)
	assert.Equal(t, conversation.RoleUser, bobReq.Messages[0].Role)
	assert.Equal(t, "hello\n\nHi from Alice", bobReq.Messages[0].Content)
}

func TestStopEndsTheCycle(t *testing.T) {
	f := newFixture(t, []string{"one", " two", " three"}, []string{"never"})
	ctx := context.Background()
	_, err := f.chat.Send(ctx, "count")
	require.NoError(t, err)

	responses, err := f.chat.Respond(ctx, func(int64, llm.Chunk) {
		f.chat.RequestStop()
	})
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Stopped)
	assert.Len(t, f.transcript(t), 1)
	assert.Len(t, f.client.Requests, 1)
	assert.False(t, f.chat.ConsumeStop())
}

func TestRespondRefusesConcurrentCycles(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.chat.responding.TryAcquire(1))
	defer f.chat.responding.Release(1)

	_, err := f.chat.Respond(context.Background(), nil)
	assert.ErrorIs(t, err, ErrResponding)
}

func TestPollerAnswersQueuedInstructions(t *testing.T) {
	f := newFixture(t, []string{"The build is done."})
	ctx := context.Background()

	handled, err := f.chat.poll(ctx)
	require.NoError(t, err)
	assert.False(t, handled)

	f.chat.Enqueue(f.alice.ID, "[INF] the build finished")

	require.True(t, f.chat.responding.TryAcquire(1))
	handled, err = f.chat.poll(ctx)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Equal(t, 1, f.chat.queueLen())
	f.chat.responding.Release(1)

	handled, err = f.chat.poll(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, 0, f.chat.queueLen())
	assert.Equal(t, "The build is done.", f.alice.LastOutput())

	system := f.client.LastRequest().System
	assert.Contains(t, system, "[INSTRUCTIONS-FOR-NEXT-RESPONSE]\nIn the style of Alice, spoken like a genuine dialogue  very briefly inform the user")
}

func TestRunPoller(t *testing.T) {
	f := newFixture(t, []string{"Done."})
	ctx, cancel := context.WithCancel(context.Background())

	f.chat.Enqueue(f.bob.ID, "[SAY] done")
	errc := make(chan error, 1)
	go func() {
		errc <- f.chat.RunPoller(ctx, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		return f.bob.LastOutput() == "Done."
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestBranchingThroughContext(t *testing.T) {
	f := newFixture(t, []string{"A1"}, []string{"B1"}, []string{"A2"}, []string{"B2"})
	ctx := context.Background()

	first, err := f.chat.Send(ctx, "hello")
	require.NoError(t, err)
	_, err = f.chat.Respond(ctx, nil)
	require.NoError(t, err)

	edited, err := f.chat.Resend(ctx, first.ID, "hello again")
	require.NoError(t, err)
	_, err = f.chat.Respond(ctx, nil)
	require.NoError(t, err)

	msgs := f.transcript(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello again", msgs[0].Content)
	assert.Equal(t, "A2", msgs[1].Content)

	branches, err := f.chat.Branches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{first.ID, edited.ID}, branches[0])

	require.NoError(t, f.chat.DeactivateAllBranches(ctx, 0))
	msgs = f.transcript(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "B1", msgs[2].Content)

	require.NoError(t, f.chat.ActivateBranch(ctx, edited.ID))
	assert.Equal(t, "hello again", f.transcript(t)[0].Content)

	require.NoError(t, f.chat.Clear(ctx))
	assert.Empty(t, f.transcript(t))
	assert.Empty(t, f.alice.LastOutput())
}

func TestNewContextCopiesMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.chat.UpdateInstanceConfig(ctx, f.alice.ID, "mood", "cheerful"))

	c, err := NewContext(ctx, f.store, f.client, f.chat.ContextID())
	require.NoError(t, err)
	require.Len(t, c.Members(), 2)
	assert.NotEqual(t, f.alice.ID, c.Members()[0].ID)
	assert.Equal(t, "Alice", c.Members()[0].Agent.Config().Name)
	assert.Equal(t, "cheerful", c.Members()[0].Agent.Config().Instance["mood"])
	assert.Equal(t, "gpt-4o", c.Members()[1].Agent.Config().Model)

	_, err = c.Member(12345)
	assert.ErrorIs(t, err, ErrUnknownMember)
}

func TestLoadRejectsBranchContexts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.chat.Send(ctx, "hello")
	require.NoError(t, err)
	branch, err := f.chat.ForkAt(ctx, m.ID)
	require.NoError(t, err)

	_, err = Load(ctx, f.store, f.client, branch.ID)
	assert.ErrorIs(t, err, conversation.ErrNotRoot)
}

func TestPollAfterStopStillAnswers(t *testing.T) {
	f := newFixture(t, []string{"On it."})
	ctx := context.Background()

	f.chat.RequestStop()
	f.chat.Enqueue(f.alice.ID, "[INF] the build started")

	handled, err := f.chat.poll(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "On it.", f.alice.LastOutput())
}

func TestTaskNotificationIsAnsweredByPoller(t *testing.T) {
	f := newFixture(t, []string{"It is 42!"}, []string{"Nice."}, []string{"Working on it."})
	f.client.AddCompletion("42")
	ctx := context.Background()

	require.NoError(t, f.store.SetMemberConfigValue(ctx, f.alice.ID, "actions.enable_actions", true))
	c, err := Load(ctx, f.store, f.client, f.chat.ContextID())
	require.NoError(t, err)
	alice, err := c.Member(f.alice.ID)
	require.NoError(t, err)

	_, err = c.Send(ctx, "what is six times seven?")
	require.NoError(t, err)
	_, err = c.Respond(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "It is 42!", alice.LastOutput())
	assert.Equal(t, 1, c.queueLen())

	handled, err := c.poll(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "Working on it.", alice.LastOutput())
	system := f.client.LastRequest().System
	assert.Contains(t, system, "very briefly inform the user")
	assert.Contains(t, system, "working on `what is six times seven?`")
}

func TestMissingOutputPlaceholderStaysLiteral(t *testing.T) {
	f := newFixture(t, []string{"Hi."})
	ctx := context.Background()

	f.chat.Enqueue(f.bob.ID, "[SAY] hi")
	handled, err := f.chat.poll(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, f.client.LastRequest().System, "Alice said: {alice_out}")
}

func TestUpstreamErrorsLeaveRespondUnwrapped(t *testing.T) {
	f := newFixture(t, []string{"Hel"})
	f.client.RecvErr = errors.New("connection reset")
	ctx := context.Background()

	_, err := f.chat.Send(ctx, "hello")
	require.NoError(t, err)
	_, err = f.chat.Respond(ctx, nil)
	require.Error(t, err)
	upstream, ok := err.(*llm.UpstreamAPIError)
	require.True(t, ok, "got %T", err)
	assert.Equal(t, "chat completion stream", upstream.Op)
}

func TestInputsOrderMembers(t *testing.T) {
	f := newFixture(t, []string{"Bob first"}, []string{"Alice second"})
	ctx := context.Background()

	require.NoError(t, f.chat.SetInput(ctx, f.alice.ID, f.bob.ID, store.InputContext))
	_, err := f.chat.Send(ctx, "hello")
	require.NoError(t, err)

	var emitted []int64
	_, err = f.chat.Respond(ctx, func(memberID int64, _ llm.Chunk) {
		if len(emitted) == 0 || emitted[len(emitted)-1] != memberID {
			emitted = append(emitted, memberID)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.bob.ID, f.alice.ID}, emitted)
	assert.Equal(t, "Bob first", f.bob.LastOutput())
	assert.Equal(t, "Alice second", f.alice.LastOutput())
}

func TestMessageInputsFilterMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.chat.SetInput(ctx, f.alice.ID, f.alice.ID, store.InputMessage)
	assert.ErrorIs(t, err, store.ErrSelfInput)
	err = f.chat.SetInput(ctx, f.alice.ID, 12345, store.InputMessage)
	assert.ErrorIs(t, err, ErrUnknownMember)

	// each waits for the other, so nobody answers the user
	require.NoError(t, f.chat.SetInput(ctx, f.alice.ID, f.bob.ID, store.InputMessage))
	require.NoError(t, f.chat.SetInput(ctx, f.bob.ID, f.alice.ID, store.InputMessage))
	_, err = f.chat.Send(ctx, "hello")
	require.NoError(t, err)
	responses, err := f.chat.Respond(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, responses)
	assert.Empty(t, f.client.Requests)

	require.NoError(t, f.chat.SetInput(ctx, f.alice.ID, store.UserInput, store.InputMessage))
	require.NoError(t, f.chat.RemoveInput(ctx, f.alice.ID, f.bob.ID))
	f.client.AddScript("Alice here").AddScript("Bob here")
	responses, err = f.chat.Respond(ctx, nil)
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, "Bob here", f.bob.LastOutput())
	assert.Len(t, f.chat.Inputs(), 2)
}

func TestResponseOrderWithCycle(t *testing.T) {
	a, b, c := &Member{ID: 1}, &Member{ID: 2}, &Member{ID: 3}
	members := []*Member{a, b, c}

	order := responseOrder(members, []*store.MemberInput{
		{MemberID: 1, InputMemberID: 3},
		{MemberID: 3, InputMemberID: store.UserInput},
	})
	assert.Equal(t, []*Member{b, c, a}, order)

	order = responseOrder(members, []*store.MemberInput{
		{MemberID: 1, InputMemberID: 2},
		{MemberID: 2, InputMemberID: 1},
	})
	assert.Equal(t, []*Member{c, a, b}, order)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t, []string{"Only Bob"})
	ctx := context.Background()

	require.NoError(t, f.chat.SetInput(ctx, f.bob.ID, f.alice.ID, store.InputMessage))
	require.NoError(t, f.chat.RemoveMember(ctx, f.alice.ID))
	require.Len(t, f.chat.Members(), 1)
	assert.Empty(t, f.chat.Inputs())

	_, err := f.chat.Send(ctx, "hello")
	require.NoError(t, err)
	responses, err := f.chat.Respond(ctx, nil)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "Only Bob", f.bob.LastOutput())

	reloaded, err := Load(ctx, f.store, f.client, f.chat.ContextID())
	require.NoError(t, err)
	require.Len(t, reloaded.Members(), 1)
	assert.ErrorIs(t, f.chat.RemoveMember(ctx, f.alice.ID), ErrUnknownMember)
}
