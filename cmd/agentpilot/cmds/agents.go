package cmds

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/conversation"
	"github.com/go-go-golems/agentpilot/pkg/store"
	glazed_cmds "github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// agentsFile is the YAML format of `agents import`.
type agentsFile struct {
	Agents []*store.Agent `yaml:"agents"`
}

func parseAgentsFile(b []byte) ([]*store.Agent, error) {
	var f agentsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "could not parse agents file")
	}
	for i, a := range f.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return nil, errors.Errorf("agent %d has no name", i)
		}
		if a.Config == nil {
			a.Config = config.Overlay{}
		}
		if _, err := config.Resolve(a.Config); err != nil {
			return nil, errors.Wrapf(err, "invalid config of agent %s", a.Name)
		}
	}
	return f.Agents, nil
}

func NewAgentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage agent definitions and conversation members",
	}
	cmd.AddCommand(
		newAgentsImportCommand(),
		newAgentsExportCommand(),
		glazeCommand(NewAgentsListCommand()),
		newAddMemberCommand(),
		newRemoveMemberCommand(),
	)
	return cmd
}

func newAgentsImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create or update agents from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			agents, err := parseAgentsFile(b)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			for _, def := range agents {
				existing, err := a.store.GetAgentByName(ctx, def.Name)
				switch {
				case errors.Is(err, conversation.ErrNotFound):
					created, err := a.store.CreateAgent(ctx, def)
					if err != nil {
						return err
					}
					fmt.Printf("created agent %s (%d)\n", created.Name, created.ID)
				case err != nil:
					return err
				default:
					if err := a.store.UpdateAgentConfig(ctx, existing.ID, def.Config); err != nil {
						return err
					}
					fmt.Printf("updated agent %s (%d)\n", existing.Name, existing.ID)
				}
			}
			log.Info().Int("agents", len(agents)).Str("file", args[0]).Msg("imported agents")
			return nil
		},
	}
}

type AgentsListCommand struct {
	*glazed_cmds.CommandDescription
}

var _ glazed_cmds.GlazeCommand = (*AgentsListCommand)(nil)

func NewAgentsListCommand() (*AgentsListCommand, error) {
	description, err := newListDescription("list", "List agents")
	if err != nil {
		return nil, err
	}
	return &AgentsListCommand{CommandDescription: description}, nil
}

func (c *AgentsListCommand) RunIntoGlazeProcessor(ctx context.Context, parsedLayers *layers.ParsedLayers, gp middlewares.Processor) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	agents, err := a.store.ListAgents(ctx)
	if err != nil {
		return err
	}
	for _, ag := range agents {
		row := types.NewRow(
			types.MRP("id", ag.ID),
			types.MRP("name", ag.Name),
			types.MRP("desc", ag.Desc),
			types.MRP("config_keys", len(ag.Config)),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func newAgentsExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the agents as a YAML file `agents import` accepts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			agents, err := a.store.ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			defer func() {
				_ = enc.Close()
			}()
			return enc.Encode(&agentsFile{Agents: agents})
		},
	}
}

func newRemoveMemberCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-member <member-id>",
		Short: "Remove a member from the current conversation",
		Args:  cobra.ExactArgs(1),
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
			if err := c.RemoveMember(ctx, memberID); err != nil {
				return err
			}
			fmt.Printf("removed member %d from conversation %d\n", memberID, c.ContextID())
			return nil
		},
	}
}

func newAddMemberCommand() *cobra.Command {
	var settings []string
	cmd := &cobra.Command{
		Use:   "add-member <agent-name>",
		Short: "Add an agent to the current conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			overlay, err := parseSettings(settings)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ag, err := a.store.GetAgentByName(ctx, args[0])
			if err != nil {
				return err
			}
			c, err := a.loadChat(ctx)
			if err != nil {
				return err
			}
			m, err := c.AddMember(ctx, ag.ID, overlay)
			if err != nil {
				return err
			}
			fmt.Printf("added %s as member %d of conversation %d\n", ag.Name, m.ID, c.ContextID())
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&settings, "set", nil, "Member config override key=value (repeatable)")
	return cmd
}
