package cmds

import (
	"fmt"
	"os"

	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// rerunnableBlocks returns the code blocks of a code or assistant message.
func rerunnableBlocks(m *conversation.Message) ([]*llm.CodeBlock, error) {
	if m.Role != conversation.RoleCode && m.Role != conversation.RoleAssistant {
		return nil, errors.Errorf("message #%d is a %s message, not code", m.ID, m.Role)
	}
	blocks := llm.CodeBlocks(m.Content)
	if len(blocks) == 0 {
		return nil, errors.Errorf("message #%d has no code block", m.ID)
	}
	return blocks, nil
}

func NewRerunCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rerun <message-id>",
		Short: "Run the code blocks of a message again and append their output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.loadChat(ctx)
			if err != nil {
				return err
			}
			m, err := a.store.GetMessage(ctx, id)
			if err != nil {
				return err
			}
			blocks, err := rerunnableBlocks(m)
			if err != nil {
				return err
			}

			for _, block := range blocks {
				if !yes {
					printMessage(os.Stdout, conversation.NewMessage(m.ContextID, conversation.RoleCode, block.Markdown()), nil)
					ok, err := confirm(fmt.Sprintf("Run this %s code?", block.Language), true)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}
				output, err := runCode(ctx, block)
				if err != nil {
					output = err.Error()
				}
				msg, err := conv.AddOutput(ctx, output)
				if err != nil {
					return err
				}
				printMessage(os.Stdout, msg, nil)
			}
			log.Debug().Int64("message_id", id).Int("blocks", len(blocks)).Msg("reran code")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Run without asking for confirmation")
	return cmd
}
