package config

import (
	"fmt"
	"strings"

	"github.com/huandu/go-clone"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const (
	DefaultName         = "Assistant"
	DefaultModel        = "gpt-3.5-turbo"
	DefaultResponseType = "response"
	DefaultTaskPlugin   = "llm"
)

// AgentConfig is the resolved configuration of one chat member.
type AgentConfig struct {
	Name      string `mapstructure:"general.name" json:"general.name,omitempty" yaml:"general.name,omitempty"`
	UsePlugin string `mapstructure:"general.use_plugin" json:"general.use_plugin,omitempty" yaml:"general.use_plugin,omitempty"`

	Model            string  `mapstructure:"context.model" json:"context.model,omitempty" yaml:"context.model,omitempty"`
	SysMsg           string  `mapstructure:"context.sys_msg" json:"context.sys_msg,omitempty" yaml:"context.sys_msg,omitempty"`
	ResponseType     string  `mapstructure:"context.response_type" json:"context.response_type,omitempty" yaml:"context.response_type,omitempty"`
	Location         string  `mapstructure:"context.location" json:"context.location,omitempty" yaml:"context.location,omitempty"`
	MsgsInSystem     bool    `mapstructure:"context.msgs_in_system" json:"context.msgs_in_system,omitempty" yaml:"context.msgs_in_system,omitempty"`
	MsgsInSystemLen  int     `mapstructure:"context.msgs_in_system_len" json:"context.msgs_in_system_len,omitempty" yaml:"context.msgs_in_system_len,omitempty"`
	MaxHistoryTokens int     `mapstructure:"context.max_history_tokens" json:"context.max_history_tokens,omitempty" yaml:"context.max_history_tokens,omitempty"`
	Temperature      float64 `mapstructure:"context.temperature" json:"context.temperature,omitempty" yaml:"context.temperature,omitempty"`
	MaxTokens        int     `mapstructure:"context.max_tokens" json:"context.max_tokens,omitempty" yaml:"context.max_tokens,omitempty"`

	OutputPlaceholder string `mapstructure:"group.output_context_placeholder" json:"group.output_context_placeholder,omitempty" yaml:"group.output_context_placeholder,omitempty"`

	EnableActions          bool   `mapstructure:"actions.enable_actions" json:"actions.enable_actions,omitempty" yaml:"actions.enable_actions,omitempty"`
	ReplaceBusyActionOnNew bool   `mapstructure:"actions.replace_busy_action_on_new" json:"actions.replace_busy_action_on_new,omitempty" yaml:"actions.replace_busy_action_on_new,omitempty"`
	TaskPlugin             string `mapstructure:"actions.task_plugin" json:"actions.task_plugin,omitempty" yaml:"actions.task_plugin,omitempty"`

	DisplayName string `mapstructure:"persona.display_name" json:"persona.display_name,omitempty" yaml:"persona.display_name,omitempty"`
	KnownFrom   string `mapstructure:"persona.known_from" json:"persona.known_from,omitempty" yaml:"persona.known_from,omitempty"`
	Verb        string `mapstructure:"persona.verb" json:"persona.verb,omitempty" yaml:"persona.verb,omitempty"`

	Instance map[string]interface{} `mapstructure:"-" json:"-" yaml:"-"`
}

func Defaults() *AgentConfig {
	return &AgentConfig{
		Name:         DefaultName,
		Model:        DefaultModel,
		ResponseType: DefaultResponseType,
		TaskPlugin:   DefaultTaskPlugin,
		Instance:     map[string]interface{}{},
	}
}

// Resolve merges the global, agent and member overlays (in that order of
// precedence) on top of the defaults. Unknown keys are ignored.
func Resolve(layers ...Overlay) (*AgentConfig, error) {
	merged := Merge(layers...)

	ret := Defaults()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           ret,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create config decoder")
	}
	if err := decoder.Decode(map[string]interface{}(merged)); err != nil {
		return nil, errors.Wrap(err, "could not decode agent config")
	}

	if strings.TrimSpace(ret.Name) == "" {
		ret.Name = DefaultName
	}
	ret.Instance = merged.Instance()

	return ret, nil
}

func (c *AgentConfig) Clone() *AgentConfig {
	return clone.Clone(c).(*AgentConfig)
}

// PersonaName is the name the agent speaks as.
func (c *AgentConfig) PersonaName() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// OutputPlaceholderFor is the placeholder other members use to reference this member's last output.
func (c *AgentConfig) OutputPlaceholderFor(memberID int64) string {
	if c.OutputPlaceholder != "" {
		return c.OutputPlaceholder
	}
	return fmt.Sprintf("%s_%d", c.Name, memberID)
}

func (c *AgentConfig) SetInstance(field string, value interface{}) {
	if c.Instance == nil {
		c.Instance = map[string]interface{}{}
	}
	c.Instance[field] = value
}
