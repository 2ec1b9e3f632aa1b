package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/store"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// parseValue types a command line value the way YAML would (numbers, booleans, strings).
func parseValue(s string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return s
	}
	return v
}

func parseSettings(settings []string) (config.Overlay, error) {
	ret := config.Overlay{}
	for _, s := range settings {
		k, v, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, errors.Errorf("invalid setting %q, expected key=value", s)
		}
		ret[strings.TrimSpace(k)] = parseValue(v)
	}
	if _, err := config.Resolve(ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change agent configuration",
	}
	cmd.AddCommand(newSchemaCommand(), newSetGlobalCommand(), newSetInstanceCommand(), glazeCommand(NewConfigShowCommand()))
	return cmd
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the agent configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := config.SchemaJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, string(b))
			return err
		},
	}
}

func newSetGlobalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-global <key> <value>",
		Short: "Set a key of the global configuration, which every agent inherits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			update, err := parseSettings([]string{args[0] + "=" + args[1]})
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			global, err := store.GlobalConfig(ctx, a.store)
			if err != nil {
				return err
			}
			return store.SetGlobalConfig(ctx, a.store, config.Merge(global, update))
		},
	}
}

func newSetInstanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-instance <member-id> <field> <value>",
		Short: "Set a runtime value of a conversation member",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			memberID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid member id %q", args[0])
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.loadChat(ctx)
			if err != nil {
				return err
			}
			return c.UpdateInstanceConfig(ctx, memberID, args[1], parseValue(args[2]))
		},
	}
}

type ConfigShowCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.GlazeCommand = (*ConfigShowCommand)(nil)

func NewConfigShowCommand() (*ConfigShowCommand, error) {
	description, err := newListDescription("show", "Print the resolved configuration of every member of the conversation",
		glazed_cmds.WithLong("One row per member and key. Keys left at their zero value are omitted."))
	if err != nil {
		return nil, err
	}
	return &ConfigShowCommand{CommandDescription: description}, nil
}

func (c *ConfigShowCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := a.loadChat(ctx)
	if err != nil {
		return err
	}
	for _, m := range conv.Members() {
		rows, err := configRows(m.ID, m.Agent.Config())
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := gp.AddRow(ctx, row); err != nil {
				return err
			}
		}
	}
	return nil
}

func configRows(memberID int64, cfg *config.AgentConfig) ([]types.Row, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	values := map[string]interface{}{}
	if err := json.Unmarshal(b, &values); err != nil {
		return nil, err
	}
	for k, v := range cfg.Instance {
		values[config.InstancePrefix+k] = v
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ret := make([]types.Row, 0, len(keys))
	for _, k := range keys {
		ret = append(ret, types.NewRow(
			types.MRP("member_id", memberID),
			types.MRP("key", k),
			types.MRP("value", values[k]),
		))
	}
	return ret, nil
}
