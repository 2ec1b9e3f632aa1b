package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const DefaultPollInterval = 30 * time.Millisecond

// Settings are the process level settings, read from flags, environment and config file.
type Settings struct {
	DBPath        string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	PollInterval  time.Duration
	ContextID     int64
}

func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "agentpilot.db"
	}
	return filepath.Join(dir, "agentpilot", "data.db")
}

func SettingsFromViper(v *viper.Viper) *Settings {
	ret := &Settings{
		DBPath:        v.GetString("db"),
		OpenAIAPIKey:  v.GetString("openai-api-key"),
		OpenAIBaseURL: v.GetString("openai-base-url"),
		PollInterval:  v.GetDuration("poll-interval"),
		ContextID:     v.GetInt64("context"),
	}
	if ret.DBPath == "" {
		ret.DBPath = DefaultDBPath()
	}
	if ret.PollInterval <= 0 {
		ret.PollInterval = DefaultPollInterval
	}
	return ret
}
