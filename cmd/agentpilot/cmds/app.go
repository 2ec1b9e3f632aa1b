package cmds

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-go-golems/agentpilot/pkg/agent"
	"github.com/go-go-golems/agentpilot/pkg/chat"
	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/go-go-golems/agentpilot/pkg/store"
	"github.com/go-go-golems/agentpilot/pkg/task"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// app bundles what every command needs.
type app struct {
	settings *config.Settings
	store    store.Store
	client   llm.Client
	tasks    *task.Registry
	plugins  *agent.PluginRegistry
}

func openApp() (*app, error) {
	settings := config.SettingsFromViper(viper.GetViper())
	if settings.OpenAIAPIKey == "" {
		settings.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := os.MkdirAll(filepath.Dir(settings.DBPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create database directory")
	}
	s, err := store.OpenSQLiteFile(settings.DBPath)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("db", settings.DBPath).Msg("opened database")

	tasks := task.NewRegistry()
	if err := task.RegisterBuiltins(tasks); err != nil {
		_ = s.Close()
		return nil, err
	}
	plugins := agent.NewPluginRegistry()
	if err := agent.RegisterBuiltins(plugins); err != nil {
		_ = s.Close()
		return nil, err
	}

	return &app{
		settings: settings,
		store:    s,
		client:   llm.NewOpenAIClient(settings.OpenAIAPIKey, settings.OpenAIBaseURL),
		tasks:    tasks,
		plugins:  plugins,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("could not close database")
	}
}

func (a *app) chatOptions() []chat.Option {
	return []chat.Option{
		chat.WithAgentOptions(agent.WithTaskRegistry(a.tasks), agent.WithPluginRegistry(a.plugins)),
	}
}

// contextID is the --context flag, or the most recent conversation. A first conversation
// is created when there is none.
func (a *app) contextID(ctx context.Context) (int64, error) {
	if a.settings.ContextID != 0 {
		return a.settings.ContextID, nil
	}
	roots, err := a.store.ListRootContexts(ctx)
	if err != nil {
		return 0, err
	}
	if len(roots) > 0 {
		return roots[len(roots)-1].ID, nil
	}
	c, err := chat.NewContext(ctx, a.store, a.client, 0, a.chatOptions()...)
	if err != nil {
		return 0, err
	}
	return c.ContextID(), nil
}

func (a *app) loadChat(ctx context.Context) (*chat.Context, error) {
	id, err := a.contextID(ctx)
	if err != nil {
		return nil, err
	}
	return chat.Load(ctx, a.store, a.client, id, a.chatOptions()...)
}
