package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/rs/zerolog/log"
)

const (
	DateFormat = "Mon, Jan 02, 2006"
	TimeFormat = "03:04 PM"
)

var parenthetical = regexp.MustCompile(`\([^)]*\)`)

// CharName strips parenthetical annotations from a persona name.
func CharName(name string) string {
	return strings.TrimSpace(parenthetical.ReplaceAllString(name, ""))
}

// Fields are the values of the second substitution pass.
type Fields struct {
	AgentName           string
	CharName            string
	FullName            string
	Verb                string
	Actions             string
	ResponseInstruction string
	Date                string
	Time                string
	Timezone            string
	Location            string
	ResponseType        string
}

func (f Fields) Map() map[string]string {
	return map[string]string{
		"agent_name":           f.AgentName,
		"char_name":            f.CharName,
		"full_name":            f.FullName,
		"verb":                 f.Verb,
		"actions":              f.Actions,
		"response_instruction": f.ResponseInstruction,
		"date":                 f.Date,
		"time":                 f.Time,
		"timezone":             f.Timezone,
		"location":             f.Location,
		"response_type":        f.ResponseType,
	}
}

// FieldsFor derives the substitution fields of an agent at time now.
func FieldsFor(cfg *config.AgentConfig, now time.Time) Fields {
	charName := CharName(cfg.PersonaName())
	fullName := charName
	if cfg.KnownFrom != "" {
		fullName = fmt.Sprintf("%s from %s", charName, cfg.KnownFrom)
	}
	verb := cfg.Verb
	if verb != "" {
		verb = " " + verb
	}
	tz, _ := now.Zone()

	return Fields{
		AgentName:    cfg.Name,
		CharName:     charName,
		FullName:     fullName,
		Verb:         verb,
		Date:         now.Format(DateFormat),
		Time:         now.Format(TimeFormat),
		Timezone:     tz,
		Location:     cfg.Location,
		ResponseType: cfg.ResponseType,
	}
}

// SystemMessageInput is everything the renderer needs for one response.
type SystemMessageInput struct {
	Config *config.AgentConfig
	// MemberOutputs maps output placeholders of the other members to their last output.
	MemberOutputs map[string]string
	Blocks        map[string]string
	Actions       string
	// Instruction is an already formatted instruction for the next response.
	Instruction string
	// Messages are rendered into a CONVERSATION block when Config.MsgsInSystem is set.
	Messages []conversation.LLMMessage
}

type Renderer struct {
	Now func() time.Time
}

func NewRenderer() *Renderer {
	return &Renderer{Now: time.Now}
}

// Render runs both substitution passes over a template.
func Render(template string, outputs map[string]string, blocks map[string]string, fields Fields) string {
	first := make(map[string]string, len(outputs)+len(blocks))
	for k, v := range outputs {
		first[k] = v
	}
	for k, v := range blocks {
		first[k] = v
	}
	return SafeFormat(SafeFormat(template, first), fields.Map())
}

func (r *Renderer) SystemMessage(in SystemMessageInput) string {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	fields := FieldsFor(in.Config, now)
	fields.Actions = in.Actions
	instruction := SafeFormat(in.Instruction, fields.Map())
	fields.ResponseInstruction = instruction

	ret := Render(in.Config.SysMsg, in.MemberOutputs, in.Blocks, fields)
	if instruction != "" {
		ret += "\n\n" + instruction + "\n\n"
	}
	if in.Config.MsgsInSystem {
		ret += ConversationBlock(in.Messages, in.Config.MsgsInSystemLen)
	}

	log.Debug().
		Str("agent", in.Config.Name).
		Int("length", len(ret)).
		Str("preview", Preview(ret, 80)).
		Msg("rendered system message")

	return ret
}

// ConversationBlock lists the last n messages (all when n <= 0) for agents
// that read the conversation from the system message.
func ConversationBlock(msgs []conversation.LLMMessage, n int) string {
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		content := strings.TrimSpace(strings.Trim(strings.TrimSpace(m.Content), `"`))
		lines = append(lines, fmt.Sprintf("%s: \"%s\"", m.Role, content))
	}
	return "\n\nCONVERSATION:\n\n" + strings.Join(lines, "\n") + "\nassistant: "
}

// Preview shortens s to its first n runes.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
