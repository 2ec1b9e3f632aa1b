package cmds

import (
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/store"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, 3, parseValue("3"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "gpt-4o", parseValue("gpt-4o"))
	assert.Equal(t, "", parseValue(""))
	assert.Equal(t, "[a, b]", parseValue("[a, b]"))
}

func TestParseSettings(t *testing.T) {
	o, err := parseSettings([]string{"context.model=gpt-4o", "context.temperature = 0.2", "context.sys_msg=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", o["context.model"])
	assert.Equal(t, 0.2, o["context.temperature"])
	assert.Equal(t, "a=b", o["context.sys_msg"])

	_, err = parseSettings([]string{"context.model"})
	assert.Error(t, err)

	_, err = parseSettings([]string{"context.temperature=hot"})
	assert.Error(t, err)
}

func TestParseAgentsFile(t *testing.T) {
	agents, err := parseAgentsFile([]byte(`
agents:
  - name: coder
    desc: writes code
    config:
      general.name: Coder
      general.use_plugin: interpreter
  - name: plain
`))
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "coder", agents[0].Name)
	assert.Equal(t, "interpreter", agents[0].Config["general.use_plugin"])
	assert.NotNil(t, agents[1].Config)

	_, err = parseAgentsFile([]byte("agents:\n  - desc: nameless\n"))
	assert.Error(t, err)

	_, err = parseAgentsFile([]byte("agents: ["))
	assert.Error(t, err)
}

func TestParseMessageID(t *testing.T) {
	id, err := parseMessageID("#12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = parseMessageID("twelve")
	assert.Error(t, err)
}

func TestRenderHistory(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msgs := conversation.Transcript{
		{ID: 1, Role: conversation.RoleUser, Content: "hi", Timestamp: ts},
		{ID: 2, Role: conversation.RoleAssistant, Content: "hello", MemberID: 7, Timestamp: ts},
		{ID: 3, Role: conversation.RoleOutput, Content: "42", Timestamp: ts},
	}

	out, err := renderHistory(defaultHistoryTemplate, &historyData{
		ContextID:    1,
		Messages:     msgs,
		Names:        map[int64]string{7: "Alice"},
		Alternatives: map[string]interface{}{"2": []string{"#5"}},
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "hello"), out)
	assert.True(t, strings.Contains(out, "Alice"), out)
	assert.True(t, strings.Contains(out, "42"), out)
	assert.True(t, strings.Contains(out, "alternatives: #5"), out)
}

func rowValue(t *testing.T, row types.Row, key string) interface{} {
	v, ok := row.Get(key)
	require.True(t, ok, key)
	return v
}

func TestRenderHistoryWithoutAlternatives(t *testing.T) {
	out, err := renderHistory(defaultHistoryTemplate, &historyData{
		ContextID:    1,
		Messages:     conversation.Transcript{{ID: 1, Role: conversation.RoleUser, Content: "hi"}},
		Alternatives: map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "alternatives")
}

func TestContextRowPreviewKeepsRunesWhole(t *testing.T) {
	node := &conversation.ContextNode{ID: 3, CreatedAt: time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)}
	long := strings.Repeat("é", 59) + "日本語"
	row := contextRow(node, conversation.Transcript{{ID: 1, Role: conversation.RoleUser, Content: long}}, []string{"Alice", "Bob"})

	assert.Equal(t, int64(3), rowValue(t, row, "id"))
	assert.Equal(t, "2024-01-02 03:04", rowValue(t, row, "created_at"))
	assert.Equal(t, "Alice, Bob", rowValue(t, row, "members"))
	assert.Equal(t, strings.Repeat("é", 59)+"日...", rowValue(t, row, "first_message"))
}

func TestBranchRows(t *testing.T) {
	rows := branchRows(map[int64][]int64{4: {5, 9}, 0: {1}}, []int64{1, 4, 9})
	require.Len(t, rows, 3)
	assert.Equal(t, int64(0), rowValue(t, rows[0], "after"))
	assert.Equal(t, int64(5), rowValue(t, rows[1], "message_id"))
	assert.Equal(t, false, rowValue(t, rows[1], "active"))
	assert.Equal(t, int64(9), rowValue(t, rows[2], "message_id"))
	assert.Equal(t, true, rowValue(t, rows[2], "active"))
}

func TestConfigRows(t *testing.T) {
	cfg, err := config.Resolve(config.Overlay{"general.name": "Alice", "instance.mood": "happy"})
	require.NoError(t, err)

	rows, err := configRows(7, cfg)
	require.NoError(t, err)
	values := map[string]interface{}{}
	for _, row := range rows {
		assert.Equal(t, int64(7), rowValue(t, row, "member_id"))
		values[rowValue(t, row, "key").(string)] = rowValue(t, row, "value")
	}
	assert.Equal(t, "Alice", values["general.name"])
	assert.Equal(t, "happy", values["instance.mood"])
	assert.Equal(t, config.DefaultModel, values["context.model"])
}

func TestBlockRows(t *testing.T) {
	blocks := map[string]string{"sig": "Cheers", "long": strings.Repeat("x", 70)}
	rows := blockRows(blocks, false)
	require.Len(t, rows, 2)
	assert.Equal(t, "long", rowValue(t, rows[0], "name"))
	assert.Equal(t, strings.Repeat("x", 60)+"...", rowValue(t, rows[0], "text"))
	assert.Equal(t, "{sig}", rowValue(t, rows[1], "placeholder"))

	rows = blockRows(blocks, true)
	assert.Equal(t, strings.Repeat("x", 70), rowValue(t, rows[0], "text"))
}

func TestLogRows(t *testing.T) {
	logs := []*store.LogEntry{
		{ID: 1, Kind: store.LogKindPrompt, Message: "first"},
		{ID: 2, Kind: store.LogKindTaskError, Message: "second"},
		{ID: 3, Kind: store.LogKindPrompt, Message: "third"},
	}
	rows := logRows(logs, 2, false)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rowValue(t, rows[0], "id"))
	assert.Equal(t, store.LogKindTaskError, rowValue(t, rows[0], "kind"))
	assert.Len(t, logRows(logs, 0, false), 3)
}

func TestInputRows(t *testing.T) {
	rows := inputRows([]*store.MemberInput{
		{MemberID: 2, InputMemberID: store.UserInput, Type: store.InputMessage},
		{MemberID: 3, InputMemberID: 2, Type: store.InputContext},
	}, map[int64]string{2: "Alice", 3: "Bob"})
	require.Len(t, rows, 2)
	assert.Equal(t, "user", rowValue(t, rows[0], "input"))
	assert.Equal(t, "message", rowValue(t, rows[0], "type"))
	assert.Equal(t, "Alice", rowValue(t, rows[1], "input"))
	assert.Equal(t, "context", rowValue(t, rows[1], "type"))
}

func TestParseInputID(t *testing.T) {
	id, err := parseInputID("user")
	require.NoError(t, err)
	assert.Equal(t, store.UserInput, id)

	id, err = parseInputID("4")
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)

	_, err = parseInputID("bob")
	assert.Error(t, err)
}

func TestRerunnableBlocks(t *testing.T) {
	blocks, err := rerunnableBlocks(&conversation.Message{ID: 1, Role: conversation.RoleCode, Content: "```bash\necho hi\n```"})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "bash", blocks[0].Language)
	assert.Equal(t, "echo hi", blocks[0].Code)

	_, err = rerunnableBlocks(&conversation.Message{ID: 2, Role: conversation.RoleUser, Content: "```bash\necho hi\n```"})
	assert.Error(t, err)
	_, err = rerunnableBlocks(&conversation.Message{ID: 3, Role: conversation.RoleAssistant, Content: "no code"})
	assert.Error(t, err)
}

func TestMessageLog(t *testing.T) {
	l, err := messageLog(&conversation.Message{ID: 1, Log: "SYSTEM: be nice"})
	require.NoError(t, err)
	assert.Equal(t, "SYSTEM: be nice", l)

	_, err = messageLog(&conversation.Message{ID: 2})
	assert.Error(t, err)
}
