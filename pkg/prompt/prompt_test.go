package prompt

import (
	"testing"
	"time"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFormat(t *testing.T) {
	values := map[string]string{"name": "Ada", "empty": ""}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"known", "Hi {name}!", "Hi Ada!"},
		{"unknown passes through", "Hi {name}, meet {friend}.", "Hi Ada, meet {friend}."},
		{"empty value", "[{empty}]", "[]"},
		{"escaped braces", "{{name}} is {name}", "{name} is Ada"},
		{"unbalanced open", "a { b {name}", "a { b Ada"},
		{"stray close", "a } b", "a } b"},
		{"json stays intact", `{"a": 1}`, `{"a": 1}`},
		{"format options are not interpreted", "{name:>10}", "{name:>10}"},
		{"no placeholders", "plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SafeFormat(tt.template, values))
		})
	}
}

func TestFormatInstruction(t *testing.T) {
	assert.Equal(t, "", FormatInstruction(""))

	got := FormatInstruction("[RES]")
	assert.Equal(t,
		"[INSTRUCTIONS-FOR-NEXT-RESPONSE]\n"+
			"In the style of {char_name}{verb}, spoken like a genuine dialogue  very briefly respond to the user in no more than Three sentences \n"+
			"[/INSTRUCTIONS-FOR-NEXT-RESPONSE]",
		got)

	assert.Equal(t, "Without offering any further assistance, stop", ExpandDirectives("[WOFA]stop"))
	assert.Contains(t, ExpandDirectives(`[SAY] "I failed the task"`), `, say:  "I failed the task"`)
}

func TestCharName(t *testing.T) {
	assert.Equal(t, "Jarvis", CharName("Jarvis (Iron Man)"))
	assert.Equal(t, "Sam  Spade", CharName("Sam (the) Spade"))
	assert.Equal(t, "Plain", CharName("Plain"))
}

func TestFieldsFor(t *testing.T) {
	cfg, err := config.Resolve(config.Overlay{
		"general.name":         "jarvis",
		"persona.display_name": "Jarvis (AI)",
		"persona.known_from":   "Iron Man",
		"persona.verb":         "speaking calmly",
		"context.location":     "Malibu",
	})
	require.NoError(t, err)

	now := time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC)
	f := FieldsFor(cfg, now)
	assert.Equal(t, "jarvis", f.AgentName)
	assert.Equal(t, "Jarvis", f.CharName)
	assert.Equal(t, "Jarvis from Iron Man", f.FullName)
	assert.Equal(t, " speaking calmly", f.Verb)
	assert.Equal(t, "Tue, Mar 05, 2024", f.Date)
	assert.Equal(t, "02:07 PM", f.Time)
	assert.Equal(t, "UTC", f.Timezone)
	assert.Equal(t, "Malibu", f.Location)
	assert.Equal(t, "response", f.ResponseType)
}

func TestSystemMessage(t *testing.T) {
	cfg, err := config.Resolve(config.Overlay{
		"general.name":               "Bob",
		"context.sys_msg":            "You are {char_name}. Today is {date}. Notes: {notes}. Alice said: {Alice_2}. {mystery}",
		"context.msgs_in_system":     true,
		"context.msgs_in_system_len": 2,
	})
	require.NoError(t, err)

	r := &Renderer{Now: func() time.Time { return time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC) }}
	got := r.SystemMessage(SystemMessageInput{
		Config:        cfg,
		MemberOutputs: map[string]string{"Alice_2": "hello {char_name}"},
		Blocks:        map[string]string{"notes": "be nice"},
		Instruction:   FormatInstruction("[SAY] hi"),
		Messages: []conversation.LLMMessage{
			{Role: conversation.RoleUser, Content: "first"},
			{Role: conversation.RoleAssistant, Content: `"second"`},
			{Role: conversation.RoleUser, Content: "third "},
		},
	})

	assert.Equal(t,
		"You are Bob. Today is Mon, Jan 01, 2024. Notes: be nice. Alice said: hello Bob. {mystery}"+
			"\n\n[INSTRUCTIONS-FOR-NEXT-RESPONSE]\nIn the style of Bob, spoken like a genuine dialogue , say:  hi\n[/INSTRUCTIONS-FOR-NEXT-RESPONSE]\n\n"+
			"\n\nCONVERSATION:\n\nassistant: \"second\"\nuser: \"third\"\nassistant: ",
		got)
}

func TestSystemMessageWithoutExtras(t *testing.T) {
	cfg, err := config.Resolve(config.Overlay{"context.sys_msg": "Plain {response_instruction}"})
	require.NoError(t, err)

	got := NewRenderer().SystemMessage(SystemMessageInput{Config: cfg})
	assert.Equal(t, "Plain ", got)
}

func TestPreviewCutsOnRunes(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "héllo...", Preview("héllo wörld", 5))
	assert.Equal(t, "日本...", Preview("日本語のテキスト", 2))
}
