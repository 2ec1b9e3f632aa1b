package cmds

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/agentpilot/pkg/chat"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/prompt"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"
)

func NewContextsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "Manage conversations",
	}
	cmd.AddCommand(newContextsNewCommand(), glazeCommand(NewContextsListCommand()), newContextsClearCommand())
	return cmd
}

func newContextsNewCommand() *cobra.Command {
	var copyFrom int64
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("copy-from") {
				// keep the members of the current conversation
				roots, err := a.store.ListRootContexts(ctx)
				if err != nil {
					return err
				}
				if len(roots) > 0 {
					copyFrom = roots[len(roots)-1].ID
				}
			}

			c, err := chat.NewContext(ctx, a.store, a.client, copyFrom, a.chatOptions()...)
			if err != nil {
				return err
			}
			fmt.Printf("created conversation %d with %d members\n", c.ContextID(), len(c.Members()))
			return nil
		},
	}
	cmd.Flags().Int64Var(&copyFrom, "copy-from", 0, "Copy the members of this conversation (0: none; default: the most recent conversation)")
	return cmd
}

type ContextsListCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.GlazeCommand = (*ContextsListCommand)(nil)

func NewContextsListCommand() (*ContextsListCommand, error) {
	description, err := newListDescription("list", "List conversations")
	if err != nil {
		return nil, err
	}
	return &ContextsListCommand{CommandDescription: description}, nil
}

func (c *ContextsListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	roots, err := a.store.ListRootContexts(ctx)
	if err != nil {
		return err
	}
	for _, r := range roots {
		conv, err := chat.Load(ctx, a.store, a.client, r.ID, a.chatOptions()...)
		if err != nil {
			return err
		}
		msgs, err := conv.Transcript(ctx)
		if err != nil {
			return err
		}
		names := []string{}
		for _, m := range conv.Members() {
			names = append(names, m.Agent.Config().Name)
		}
		if err := gp.AddRow(ctx, contextRow(r, msgs, names)); err != nil {
			return err
		}
	}
	return nil
}

func contextRow(r *conversation.ContextNode, msgs conversation.Transcript, names []string) types.Row {
	first := ""
	if len(msgs) > 0 {
		first = prompt.Preview(strings.ReplaceAll(msgs[0].Content, "\n", " "), 60)
	}
	return types.NewRow(
		types.MRP("id", r.ID),
		types.MRP("created_at", r.CreatedAt.Format("2006-01-02 15:04")),
		types.MRP("messages", len(msgs)),
		types.MRP("members", strings.Join(names, ", ")),
		types.MRP("first_message", first),
	)
}

func newContextsClearCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all messages and branches of a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.loadChat(ctx)
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(fmt.Sprintf("Clear conversation %d?", c.ContextID()), false)
				if err != nil || !ok {
					return err
				}
			}
			return c.Clear(ctx)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
