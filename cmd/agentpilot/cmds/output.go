package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/go-go-golems/agentpilot/pkg/chat"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-input"
)

var roleColors = map[conversation.Role]*color.Color{
	conversation.RoleUser:      color.New(color.FgGreen, color.Bold),
	conversation.RoleAssistant: color.New(color.FgCyan, color.Bold),
	conversation.RoleCode:      color.New(color.FgYellow, color.Bold),
	conversation.RoleOutput:    color.New(color.FgMagenta),
	conversation.RoleSystem:    color.New(color.FgHiBlack),
}

// memberNames maps member ids to agent names, for labels.
func memberNames(c *chat.Context) map[int64]string {
	ret := map[int64]string{}
	for _, m := range c.Members() {
		ret[m.ID] = m.Agent.Config().Name
	}
	return ret
}

func label(role conversation.Role, memberID int64, names map[int64]string) string {
	text := string(role)
	if name, ok := names[memberID]; ok && memberID != 0 {
		text = name
	}
	c, ok := roleColors[role]
	if !ok {
		return "[" + text + "]"
	}
	return c.Sprintf("[%s]", text)
}

func printMessage(w io.Writer, m *conversation.Message, names map[int64]string) {
	_, _ = fmt.Fprintf(w, "%s #%d %s\n", label(m.Role, m.MemberID, names), m.ID, m.Content)
}

// confirm asks a yes/no question on the terminal.
func confirm(query string, defaultYes bool) (bool, error) {
	tty_, err := openTTY()
	if err != nil {
		return false, err
	}
	defer func() {
		if err := tty_.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close tty")
		}
	}()

	ui := &input.UI{
		Writer: tty_,
		Reader: tty_,
	}

	def := "n"
	if defaultYes {
		def = "y"
	}
	answer, err := ui.Ask(query+" [y/n]", &input.Options{
		Default:  def,
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(answer) {
			case "y", "n":
				return nil
			default:
				return fmt.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, err
	}
	return strings.ToLower(answer) == "y", nil
}
