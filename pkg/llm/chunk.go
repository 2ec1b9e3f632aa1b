package llm

import "fmt"

type Key string

const (
	// KeyAssistant is prose outside of code fences.
	KeyAssistant Key = "assistant"
	// KeyCode is text inside a code fence.
	KeyCode Key = "code"
	// KeyConfirm carries a complete code block awaiting execution approval.
	KeyConfirm Key = "CONFIRM"
	// KeyPause marks the end of a response without code.
	KeyPause Key = "PAUSE"
)

type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// Markdown renders the block as stored in a code message.
func (c *CodeBlock) Markdown() string {
	return fmt.Sprintf("```%s\n%s\n```", c.Language, c.Code)
}

type Chunk struct {
	Key  Key
	Text string
	// Code is set for KeyConfirm chunks.
	Code *CodeBlock
}
