package conversation

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) (*History, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	root, err := store.CreateContext(context.Background(), &ContextNode{})
	require.NoError(t, err)
	return NewHistory(store, root.ID), store
}

func appendAll(t *testing.T, h *History, pairs ...string) []*Message {
	t.Helper()
	var ret []*Message
	for i := 0; i < len(pairs); i += 2 {
		m, err := h.Append(context.Background(), Role(pairs[i]), pairs[i+1])
		require.NoError(t, err)
		ret = append(ret, m)
	}
	return ret
}

func contents(msgs Transcript) []string {
	ret := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ret = append(ret, m.Content)
	}
	return ret
}

func countMessages(t *testing.T, h *History, store *InMemoryStore) int {
	t.Helper()
	tree, err := h.Tree(context.Background())
	require.NoError(t, err)
	n := 0
	for _, ms := range tree.Messages {
		n += len(ms)
	}
	return n
}

func TestAppendNormalizesAndRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHistory(t)

	_, err := h.Append(ctx, RoleUser, "   \n\t")
	require.True(t, errors.Is(err, ErrEmptyContent))
	_, err = h.Append(ctx, RoleAssistant, ` "" `)
	require.True(t, errors.Is(err, ErrEmptyContent))
	assert.Equal(t, 0, countMessages(t, h, store))

	m, err := h.Append(ctx, RoleAssistant, `  "Hello there"  `)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", m.Content)

	m, err = h.Append(ctx, RoleOutput, "  ")
	require.NoError(t, err)
	assert.Equal(t, EmptyOutputPlaceholder, m.Content)

	assert.Equal(t, 2, countMessages(t, h, store))
}

func TestForkTruncatesWithoutDuplicating(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHistory(t)
	msgs := appendAll(t, h, "user", "u1", "assistant", "a1", "user", "u2", "assistant", "a2")

	branch, err := h.ForkAt(ctx, msgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, h.RootID(), branch.ParentID)
	assert.Equal(t, msgs[1].ID, branch.BranchMsgID)

	tr, leaf, err := h.Transcript(ctx)
	require.NoError(t, err)
	assert.Equal(t, branch.ID, leaf)
	assert.Equal(t, []string{"u1", "a1"}, contents(tr))
	assert.Equal(t, 4, countMessages(t, h, store))

	appendAll(t, h, "user", "u2b", "assistant", "a2b")
	tr, _, err = h.Transcript(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "u2b", "a2b"}, contents(tr))

	root, err := store.GetContext(ctx, h.RootID())
	require.NoError(t, err)
	assert.Equal(t, branch.ID, root.LeafID)
}

func TestBranchSwitchOnlyChangesSuffix(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	msgs := appendAll(t, h, "user", "u1", "assistant", "a1", "user", "u2", "assistant", "a2")

	_, err := h.ForkAt(ctx, msgs[1].ID)
	require.NoError(t, err)
	alt := appendAll(t, h, "user", "u2b", "assistant", "a2b")

	require.NoError(t, h.DeactivateAllBranches(ctx, msgs[1].ID))
	original, _, err := h.Transcript(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "u2", "a2"}, contents(original))

	require.NoError(t, h.ActivateBranch(ctx, alt[0].ID))
	switched, _, err := h.Transcript(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "u2b", "a2b"}, contents(switched))
	assert.Equal(t, original.IDs()[:2], switched.IDs()[:2])

	// switching back to the parent's continuation
	require.NoError(t, h.ActivateBranch(ctx, msgs[2].ID))
	back, _, err := h.Transcript(ctx)
	require.NoError(t, err)
	assert.Equal(t, original.IDs(), back.IDs())

	// deterministic
	again, _, err := h.Transcript(ctx)
	require.NoError(t, err)
	assert.Equal(t, back.IDs(), again.IDs())
}

func TestResendCreatesAlternative(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	msgs := appendAll(t, h, "user", "u1", "assistant", "a1", "user", "u2", "assistant", "a2")

	edited, err := h.Resend(ctx, msgs[2].ID, "u2 edited")
	require.NoError(t, err)

	tr, _, err := h.Transcript(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "u2 edited"}, contents(tr))

	alts, err := h.Alternatives(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{msgs[2].ID, edited.ID}, alts[msgs[1].ID])

	// editing the very first message forks at the start of the root
	first, err := h.Resend(ctx, msgs[0].ID, "u1 edited")
	require.NoError(t, err)
	tr, _, err = h.Transcript(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1 edited"}, contents(tr))

	require.NoError(t, h.ActivateBranch(ctx, edited.ID))
	tr, _, err = h.Transcript(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "a1", "u2 edited"}, contents(tr))
	assert.NotEqual(t, first.ID, tr[0].ID)
}

func TestTranscriptMatchesParentWalk(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)
	msgs := appendAll(t, h, "user", "u1", "assistant", "a1", "user", "u2")
	_, err := h.ForkAt(ctx, msgs[0].ID)
	require.NoError(t, err)
	inner := appendAll(t, h, "assistant", "a1b", "user", "u2b")
	_, err = h.ForkAt(ctx, inner[0].ID)
	require.NoError(t, err)
	appendAll(t, h, "user", "u2c")

	tree, err := h.Tree(ctx)
	require.NoError(t, err)
	tr, leaf := tree.Transcript()
	walked, err := tree.TranscriptForLeaf(leaf)
	require.NoError(t, err)
	assert.Equal(t, tr.IDs(), walked.IDs())
	assert.Equal(t, []string{"u1", "a1b", "u2c"}, contents(tr))
}

func TestForkUnknownMessage(t *testing.T) {
	h, _ := newTestHistory(t)
	_, err := h.ForkAt(context.Background(), 42)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestGetLLMFormat(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t)

	_, err := h.Append(ctx, RoleUser, "hi")
	require.NoError(t, err)
	_, err = h.Append(ctx, RoleAssistant, "from one", WithMemberID(1))
	require.NoError(t, err)
	_, err = h.Append(ctx, RoleAssistant, "from two", WithMemberID(2))
	require.NoError(t, err)
	_, err = h.Append(ctx, RoleCode, "```python\nprint(1)\n```", WithMemberID(2))
	require.NoError(t, err)
	_, err = h.Append(ctx, RoleOutput, "1")
	require.NoError(t, err)

	got, err := h.Get(ctx, FormatLLM, 2)
	require.NoError(t, err)
	assert.Equal(t, []LLMMessage{
		{Role: RoleUser, Content: "hi\n\nfrom one"},
		{Role: RoleAssistant, Content: "from two\n\n```python\nprint(1)\n```"},
		{Role: RoleUser, Content: "1"},
	}, got)

	raw, err := h.Get(ctx, FormatRaw, 2)
	require.NoError(t, err)
	assert.Len(t, raw, 5)
	assert.Equal(t, RoleCode, raw[3].Role)

	role, ok, err := h.LastRole(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, RoleOutput, role)
}

func TestClearKeepsRoot(t *testing.T) {
	ctx := context.Background()
	h, store := newTestHistory(t)
	msgs := appendAll(t, h, "user", "u1", "assistant", "a1")
	_, err := h.ForkAt(ctx, msgs[0].ID)
	require.NoError(t, err)

	require.NoError(t, h.Clear(ctx))
	tr, leaf, err := h.Transcript(ctx)
	require.NoError(t, err)
	assert.Empty(t, tr)
	assert.Equal(t, h.RootID(), leaf)

	contexts, err := store.ListContexts(ctx, h.RootID())
	require.NoError(t, err)
	assert.Len(t, contexts, 1)
}
