package agent

import (
	"context"

	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/llm"
	"github.com/go-go-golems/agentpilot/pkg/plugins"
)

const (
	DefaultPluginName     = "default"
	InterpreterPluginName = "interpreter"
)

// Plugin customizes the completion request of an agent before it is sent.
type Plugin interface {
	PrepareRequest(ctx context.Context, cfg *config.AgentConfig, req *llm.Request) error
}

type PluginFactory func(cfg *config.AgentConfig) (Plugin, error)

type PluginRegistry = plugins.Registry[PluginFactory]

func NewPluginRegistry() *PluginRegistry {
	return plugins.NewRegistry[PluginFactory]("agent")
}

func RegisterBuiltins(r *PluginRegistry) error {
	if err := r.Register(DefaultPluginName, func(*config.AgentConfig) (Plugin, error) {
		return defaultPlugin{}, nil
	}); err != nil {
		return err
	}
	return r.Register(InterpreterPluginName, func(*config.AgentConfig) (Plugin, error) {
		return &interpreterPlugin{}, nil
	})
}

type defaultPlugin struct{}

func (defaultPlugin) PrepareRequest(context.Context, *config.AgentConfig, *llm.Request) error {
	return nil
}

const interpreterInstructions = `You can run code on the user's machine.
To run code, write it in a single fenced code block tagged with its language, for example ` + "```python" + `.
Only write one code block per message and stop right after it.
The user confirms every block before it runs and the output is sent back to you as the next message.
If the output is empty you will be told that the code executed without any output.`

// interpreterPlugin turns the agent into a code interpreter. Code blocks end the response
// and wait for confirmation.
type interpreterPlugin struct{}

func (p *interpreterPlugin) PrepareRequest(_ context.Context, _ *config.AgentConfig, req *llm.Request) error {
	if req.System == "" {
		req.System = interpreterInstructions
		return nil
	}
	req.System = interpreterInstructions + "\n\n" + req.System
	return nil
}
