package llm

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, deltas ...string) []Chunk {
	t.Helper()
	stream, err := NewScriptedClient(deltas).Stream(context.Background(), &Request{})
	require.NoError(t, err)

	r := NewChunkReader(stream)
	defer func() {
		_ = r.Close()
	}()

	var ret []Chunk
	for {
		c, err := r.Next()
		if errors.Is(err, io.EOF) {
			return ret
		}
		require.NoError(t, err)
		ret = append(ret, c)
	}
}

func textOf(chunks []Chunk, key Key) string {
	var sb strings.Builder
	for _, c := range chunks {
		if c.Key == key {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

func TestPlainTextEndsWithPause(t *testing.T) {
	chunks := readAll(t, "Hello", " world")
	require.Len(t, chunks, 3)
	assert.Equal(t, Chunk{Key: KeyAssistant, Text: "Hello"}, chunks[0])
	assert.Equal(t, Chunk{Key: KeyAssistant, Text: " world"}, chunks[1])
	assert.Equal(t, KeyPause, chunks[2].Key)
}

func TestCodeBlockConfirms(t *testing.T) {
	splits := map[string][]string{
		"whole":     {"Let me check.\n```python\nprint(1)\nprint(2)\n```\nignored"},
		"by line":   {"Let me check.\n", "```python\n", "print(1)\n", "print(2)\n", "```\n", "ignored"},
		"by char":   strings.Split("Let me check.\n```python\nprint(1)\nprint(2)\n```\nignored", ""),
		"odd split": {"Let me ch", "eck.\n`", "``py", "thon\nprint(1)\npri", "nt(2)\n`", "``", "\nignored"},
	}

	for name, deltas := range splits {
		t.Run(name, func(t *testing.T) {
			chunks := readAll(t, deltas...)
			require.NotEmpty(t, chunks)

			last := chunks[len(chunks)-1]
			require.Equal(t, KeyConfirm, last.Key)
			assert.Equal(t, &CodeBlock{Language: "python", Code: "print(1)\nprint(2)"}, last.Code)
			assert.Equal(t, "Let me check.\n", textOf(chunks, KeyAssistant))
			assert.Equal(t, "print(1)\nprint(2)\n", textOf(chunks, KeyCode))
			for _, c := range chunks {
				assert.NotEqual(t, KeyPause, c.Key)
				assert.NotContains(t, c.Text, "```")
			}
		})
	}
}

func TestInlineBackticksAreText(t *testing.T) {
	chunks := readAll(t, "use ```x``` inline\n", "``not a fence")
	assert.Equal(t, "use ```x``` inline\n``not a fence", textOf(chunks, KeyAssistant))
	assert.Equal(t, KeyPause, chunks[len(chunks)-1].Key)
}

func TestUnterminatedCodeBlockIsConfirmedAtEnd(t *testing.T) {
	chunks := readAll(t, "```bash\n", "ls -la")
	last := chunks[len(chunks)-1]
	require.Equal(t, KeyConfirm, last.Key)
	assert.Equal(t, &CodeBlock{Language: "bash", Code: "ls -la"}, last.Code)
}

func TestNestedInfoFenceStaysInCode(t *testing.T) {
	chunks := readAll(t, "```markdown\n", "```go\n", "x := 1\n", "```\n")
	last := chunks[len(chunks)-1]
	require.Equal(t, KeyConfirm, last.Key)
	assert.Equal(t, "```go\nx := 1\n", textOf(chunks, KeyCode))
}

func TestStreamErrorsPropagate(t *testing.T) {
	c := NewScriptedClient()
	c.StreamErr = errors.New("503")
	_, err := c.Stream(context.Background(), &Request{})
	var upstream *UpstreamAPIError
	require.True(t, errors.As(err, &upstream))
	assert.Contains(t, err.Error(), "503")
}

func TestCancelledContextStopsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewScriptedClient([]string{"a", "b"}).Stream(ctx, &Request{})
	require.NoError(t, err)

	r := NewChunkReader(stream)
	c, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", c.Text)

	cancel()
	_, err = r.Next()
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCodeBlocks(t *testing.T) {
	md := "intro\n\n```go\nfmt.Println(1)\n```\n\ntext\n\n```\nplain\n```\n"
	blocks := CodeBlocks(md)
	require.Len(t, blocks, 2)
	assert.Equal(t, "go", blocks[0].Language)
	assert.Equal(t, "fmt.Println(1)", blocks[0].Code)
	assert.Equal(t, "", blocks[1].Language)

	_, ok := TrailingCodeBlock("```go\nx\n```\n\nafter")
	assert.False(t, ok)

	assert.Equal(t, "```python\nprint(1)\n```", (&CodeBlock{Language: "python", Code: "print(1)"}).Markdown())
}

func TestTrimToBudget(t *testing.T) {
	tc, err := NewTokenCounter("not-a-real-model")
	require.NoError(t, err)

	msgs := []conversation.LLMMessage{
		{Role: conversation.RoleUser, Content: strings.Repeat("word ", 200)},
		{Role: conversation.RoleAssistant, Content: "short answer"},
		{Role: conversation.RoleUser, Content: "last question"},
	}

	assert.Equal(t, msgs, tc.TrimToBudget("sys", msgs, 0))

	trimmed := tc.TrimToBudget("sys", msgs, 40)
	require.Len(t, trimmed, 2)
	assert.Equal(t, "last question", trimmed[1].Content)

	trimmed = tc.TrimToBudget("sys", msgs, 1)
	require.Len(t, trimmed, 1)
	assert.Equal(t, "last question", trimmed[0].Content)
}

func TestRequestLog(t *testing.T) {
	r := &Request{Model: "m", System: "s", Messages: []conversation.LLMMessage{{Role: conversation.RoleUser, Content: "hi"}}}
	assert.JSONEq(t, `{"model":"m","system":"s","messages":[{"role":"user","content":"hi"}]}`, r.Log())
}
