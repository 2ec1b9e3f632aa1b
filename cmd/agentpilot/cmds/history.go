package cmds

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const defaultHistoryTemplate = `# Conversation {{ .ContextID }}
{{ range .Messages }}
**{{ if .MemberID }}{{ index $.Names .MemberID | default "assistant" }}{{ else }}{{ .Role }}{{ end }}** _#{{ .ID }} {{ .Role }} {{ .Timestamp.Format "2006-01-02 15:04" }}_
{{ if eq (toString .Role) "output" }}
` + "```" + `
{{ .Content }}
` + "```" + `
{{ else }}
{{ .Content }}
{{ end }}
{{- if hasKey $.Alternatives (toString .ID) }}
> alternatives: {{ index $.Alternatives (toString .ID) | join ", " }}
{{ end }}
---
{{ end }}`

type historyData struct {
	ContextID int64
	Messages  conversation.Transcript
	Names     map[int64]string
	// Alternatives maps the id of a message to the first message ids of the branches replacing it.
	Alternatives map[string]interface{}
}

func NewHistoryCommand() *cobra.Command {
	var (
		templateFile string
		plain        bool
		style        string
		logID        int64
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the effective transcript of a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if logID != 0 {
				m, err := a.store.GetMessage(ctx, logID)
				if err != nil {
					return err
				}
				requestLog, err := messageLog(m)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(os.Stdout, requestLog)
				return err
			}

			c, err := a.loadChat(ctx)
			if err != nil {
				return err
			}
			msgs, err := c.Transcript(ctx)
			if err != nil {
				return err
			}
			branches, err := c.Branches(ctx)
			if err != nil {
				return err
			}

			tpl := defaultHistoryTemplate
			if templateFile != "" {
				b, err := os.ReadFile(templateFile)
				if err != nil {
					return errors.Wrap(err, "could not read template")
				}
				tpl = string(b)
			}

			md, err := renderHistory(tpl, &historyData{
				ContextID:    c.ContextID(),
				Messages:     msgs,
				Names:        memberNames(c),
				Alternatives: alternativesByReplacedMessage(msgs, branches),
			})
			if err != nil {
				return err
			}

			if plain || templateFile != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
				_, err = fmt.Fprint(os.Stdout, md)
				return err
			}
			styled, err := glamour.Render(md, style)
			if err != nil {
				return errors.Wrap(err, "could not render markdown")
			}
			_, err = fmt.Fprint(os.Stdout, styled)
			return err
		},
	}

	cmd.Flags().StringVar(&templateFile, "template", "", "Go template (with sprig functions) to render the transcript with")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print markdown without styling")
	cmd.Flags().StringVar(&style, "style", "dark", "Glamour style")
	cmd.Flags().Int64Var(&logID, "log", 0, "Print the request an agent sent for this message instead of the transcript")
	return cmd
}

// messageLog is the request log stored with an agent message.
func messageLog(m *conversation.Message) (string, error) {
	if m.Log == "" {
		return "", errors.Errorf("message #%d has no request log", m.ID)
	}
	return m.Log, nil
}

func renderHistory(tpl string, data *historyData) (string, error) {
	t, err := template.New("history").Funcs(sprig.TxtFuncMap()).Parse(tpl)
	if err != nil {
		return "", errors.Wrap(err, "could not parse template")
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "could not render template")
	}
	return buf.String(), nil
}

// alternativesByReplacedMessage keys the alternatives of each fork point by the
// effective message following it, which is the message the alternatives replace.
func alternativesByReplacedMessage(msgs conversation.Transcript, branches map[int64][]int64) map[string]interface{} {
	ret := map[string]interface{}{}
	for i, m := range msgs {
		forkAt := int64(0)
		if i > 0 {
			forkAt = msgs[i-1].ID
		}
		alts, ok := branches[forkAt]
		if !ok {
			continue
		}
		others := []string{}
		for _, id := range alts {
			if id != m.ID {
				others = append(others, fmt.Sprintf("#%d", id))
			}
		}
		if len(others) > 0 {
			ret[fmt.Sprintf("%d", m.ID)] = others
		}
	}
	return ret
}
