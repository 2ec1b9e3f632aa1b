package cmds

import (
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/spf13/cobra"
)

// glazeCommand bridges a glazed command into cobra.
func glazeCommand(c glazed_cmds.GlazeCommand, err error) *cobra.Command {
	cobra.CheckErr(err)
	ret, err := cli.BuildCobraCommandFromGlazeCommand(c)
	cobra.CheckErr(err)
	return ret
}

func newListDescription(name string, short string, options ...glazed_cmds.CommandDescriptionOption) (*glazed_cmds.CommandDescription, error) {
	glazedParameterLayer, err := settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, err
	}
	options = append([]glazed_cmds.CommandDescriptionOption{
		glazed_cmds.WithShort(short),
		glazed_cmds.WithLayersList(glazedParameterLayer),
	}, options...)
	return glazed_cmds.NewCommandDescription(name, options...), nil
}
