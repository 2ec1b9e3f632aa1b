package cmds

import (
	"context"

	"github.com/go-go-golems/agentpilot/pkg/prompt"
	"github.com/go-go-golems/agentpilot/pkg/store"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
)

type LogsSettings struct {
	Kind string `glazed.parameter:"kind"`
	Full bool   `glazed.parameter:"full"`
	Last int    `glazed.parameter:"last"`
}

// LogsCommand lists the stored prompt and task error logs.
type LogsCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.GlazeCommand = (*LogsCommand)(nil)

func NewLogsCommand() (*LogsCommand, error) {
	description, err := newListDescription("logs", "List stored prompts and task errors",
		glazed_cmds.WithFlags(
			parameters.NewParameterDefinition(
				"kind",
				parameters.ParameterTypeString,
				parameters.WithHelp("Only show one kind of log ("+store.LogKindPrompt+", "+store.LogKindTaskError+")"),
				parameters.WithDefault(""),
			),
			parameters.NewParameterDefinition(
				"full",
				parameters.ParameterTypeBool,
				parameters.WithHelp("Print whole messages instead of previews"),
				parameters.WithDefault(false),
			),
			parameters.NewParameterDefinition(
				"last",
				parameters.ParameterTypeInteger,
				parameters.WithHelp("Only show the most recent entries (0: all)"),
				parameters.WithDefault(20),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &LogsCommand{CommandDescription: description}, nil
}

func (c *LogsCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	s := &LogsSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "could not initialize settings")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	logs, err := a.store.ListLogs(ctx, s.Kind)
	if err != nil {
		return err
	}
	for _, row := range logRows(logs, s.Last, s.Full) {
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func logRows(logs []*store.LogEntry, limit int, full bool) []types.Row {
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	ret := make([]types.Row, 0, len(logs))
	for _, l := range logs {
		msg := l.Message
		if !full {
			msg = prompt.Preview(msg, 80)
		}
		ret = append(ret, types.NewRow(
			types.MRP("id", l.ID),
			types.MRP("kind", l.Kind),
			types.MRP("timestamp", l.Timestamp.Format("2006-01-02 15:04:05")),
			types.MRP("message", msg),
		))
	}
	return ret
}
