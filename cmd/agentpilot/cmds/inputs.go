package cmds

import (
	"context"
	"strconv"

	"github.com/go-go-golems/agentpilot/pkg/store"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewInputsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inputs",
		Short: "Order and filter member responses with the member input graph",
		Long:  "See `agentpilot help agentpilot-member-inputs`.",
	}
	cmd.AddCommand(newInputsAddCommand(), newInputsRemoveCommand(), glazeCommand(NewInputsListCommand()))
	return cmd
}

// parseInputID accepts a member id, or "user".
func parseInputID(s string) (int64, error) {
	if s == "user" {
		return store.UserInput, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid member id %q", s)
	}
	return id, nil
}

func parseEdge(args []string) (int64, int64, error) {
	memberID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "invalid member id %q", args[0])
	}
	inputID, err := parseInputID(args[1])
	if err != nil {
		return 0, 0, err
	}
	return memberID, inputID, nil
}

func newInputsAddCommand() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "add <member-id> <input-member-id|user>",
		Short: "Make a member respond after another member, or the user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			memberID, inputID, err := parseEdge(args)
			if err != nil {
				return err
			}
			inputType, err := store.ParseInputType(typ)
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
			return conv.SetInput(ctx, memberID, inputID, inputType)
		},
	}
	cmd.Flags().StringVar(&typ, "type", store.InputMessage.String(), "message: wait for the input, context: only order after it")
	return cmd
}

func newInputsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <member-id> <input-member-id|user>",
		Short: "Remove an input of a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			memberID, inputID, err := parseEdge(args)
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
			return conv.RemoveInput(ctx, memberID, inputID)
		},
	}
}

type InputsListCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.GlazeCommand = (*InputsListCommand)(nil)

func NewInputsListCommand() (*InputsListCommand, error) {
	description, err := newListDescription("list", "List the input graph of the conversation")
	if err != nil {
		return nil, err
	}
	return &InputsListCommand{CommandDescription: description}, nil
}

func (c *InputsListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := a.loadChat(ctx)
	if err != nil {
		return err
	}
	for _, row := range inputRows(conv.Inputs(), memberNames(conv)) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func inputRows(inputs []*store.MemberInput, names map[int64]string) []types.Row {
	ret := make([]types.Row, 0, len(inputs))
	for _, in := range inputs {
		input := "user"
		if in.InputMemberID != store.UserInput {
			input = names[in.InputMemberID]
		}
		ret = append(ret, types.NewRow(
			types.MRP("member_id", in.MemberID),
			types.MRP("member", names[in.MemberID]),
			types.MRP("input_member_id", in.InputMemberID),
			types.MRP("input", input),
			types.MRP("type", in.Type.String()),
		))
	}
	return ret
}
