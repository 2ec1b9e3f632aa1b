package cmds

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/go-go-golems/agentpilot/pkg/prompt"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewBlocksCommand manages the named text blocks system messages can include as {name}.
func NewBlocksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Manage text blocks usable as {name} in system messages",
	}
	cmd.AddCommand(newBlocksSetCommand(), newBlocksDeleteCommand(), glazeCommand(NewBlocksListCommand()))
	return cmd
}

func newBlocksSetCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "set <name> [text...]",
		Short: "Create or replace a block",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return errors.Wrap(err, "could not read block file")
				}
				text = string(b)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.store.SetBlock(cmd.Context(), args[0], text)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the block text from a file")
	return cmd
}

func newBlocksDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.store.DeleteBlock(cmd.Context(), args[0])
		},
	}
}

type BlocksListSettings struct {
	Full bool `glazed.parameter:"full"`
}

type BlocksListCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.GlazeCommand = (*BlocksListCommand)(nil)

func NewBlocksListCommand() (*BlocksListCommand, error) {
	description, err := newListDescription("list", "List blocks",
		glazed_cmds.WithFlags(
			parameters.NewParameterDefinition(
				"full",
				parameters.ParameterTypeBool,
				parameters.WithHelp("Print the whole text instead of a preview"),
				parameters.WithDefault(false),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &BlocksListCommand{CommandDescription: description}, nil
}

func (c *BlocksListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &BlocksListSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "could not initialize settings")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	blocks, err := a.store.ListBlocks(ctx)
	if err != nil {
		return err
	}
	for _, row := range blockRows(blocks, s.Full) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func blockRows(blocks map[string]string, full bool) []types.Row {
	names := make([]string, 0, len(blocks))
	for name := range blocks {
		names = append(names, name)
	}
	sort.Strings(names)

	ret := make([]types.Row, 0, len(names))
	for _, name := range names {
		text := blocks[name]
		if !full {
			text = prompt.Preview(strings.ReplaceAll(text, "\n", " "), 60)
		}
		ret = append(ret, types.NewRow(
			types.MRP("name", name),
			types.MRP("placeholder", "{"+name+"}"),
			types.MRP("text", text),
		))
	}
	return ret
}
