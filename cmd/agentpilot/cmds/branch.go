package cmds

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-go-golems/agentpilot/pkg/chat"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewBranchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Navigate the branches of a conversation",
	}

	cmd.AddCommand(
		newMessageCommand("fork <message-id>", "Start a new branch after a message", func(ctx context.Context, c *chat.Context, id int64) error {
			node, err := c.ForkAt(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("created branch %d\n", node.ID)
			return nil
		}),
		newMessageCommand("activate <message-id>", "Switch to the branch containing a message", func(ctx context.Context, c *chat.Context, id int64) error {
			return c.ActivateBranch(ctx, id)
		}),
		newMessageCommand("deactivate <message-id>", "Go back to the original continuation after a message (0: the start)", func(ctx context.Context, c *chat.Context, id int64) error {
			return c.DeactivateAllBranches(ctx, id)
		}),
		glazeCommand(NewBranchListCommand()),
		newResendCommand(),
	)
	return cmd
}

func parseMessageID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid message id %q", s)
	}
	return id, nil
}

func newMessageCommand(use string, short string, f func(ctx context.Context, c *chat.Context, id int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
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
			return f(ctx, c, id)
		},
	}
}

type BranchListCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.GlazeCommand = (*BranchListCommand)(nil)

func NewBranchListCommand() (*BranchListCommand, error) {
	description, err := newListDescription("list", "List the alternatives at every fork point",
		glazed_cmds.WithLong("One row per alternative. active is true for the alternatives on the effective transcript."))
	if err != nil {
		return nil, err
	}
	return &BranchListCommand{CommandDescription: description}, nil
}

func (c *BranchListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := a.loadChat(ctx)
	if err != nil {
		return err
	}
	branches, err := conv.Branches(ctx)
	if err != nil {
		return err
	}
	msgs, err := conv.Transcript(ctx)
	if err != nil {
		return err
	}
	for _, row := range branchRows(branches, msgs.IDs()) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func branchRows(branches map[int64][]int64, effectiveIDs []int64) []types.Row {
	effective := map[int64]bool{}
	for _, id := range effectiveIDs {
		effective[id] = true
	}

	forks := make([]int64, 0, len(branches))
	for k := range branches {
		forks = append(forks, k)
	}
	sort.Slice(forks, func(i, j int) bool { return forks[i] < forks[j] })

	var ret []types.Row
	for _, fork := range forks {
		for _, id := range branches[fork] {
			ret = append(ret, types.NewRow(
				types.MRP("after", fork),
				types.MRP("message_id", id),
				types.MRP("active", effective[id]),
			))
		}
	}
	return ret
}

func newResendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resend <message-id> <content>",
		Short: "Edit a user message in a new branch",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
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
			m, err := c.Resend(ctx, id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Printf("sent #%d, run `agentpilot chat` to get the replies\n", m.ID)
			return nil
		},
	}
}
