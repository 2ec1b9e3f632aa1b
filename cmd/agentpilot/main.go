package main

import (
	"fmt"
	"os"

	"github.com/go-go-golems/agentpilot/cmd/agentpilot/cmds"
	"github.com/go-go-golems/agentpilot/pkg/config"
	"github.com/go-go-golems/agentpilot/pkg/doc"
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/help"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "agentpilot",
	Short: "agentpilot talks to configurable LLM agents in branchable conversations",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		err := clay.InitLogger()
		cobra.CheckErr(err)

		log.Debug().
			Str("config", viper.ConfigFileUsed()).
			Str("db", viper.GetString("db")).
			Msg("loaded configuration")
	},
	SilenceUsage: true,
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	helpSystem := help.NewHelpSystem()
	err := doc.AddDocToHelpSystem(helpSystem)
	cobra.CheckErr(err)

	helpFunc, usageFunc := help.GetCobraHelpUsageFuncs(helpSystem)
	helpTemplate, usageTemplate := help.GetCobraHelpUsageTemplates(helpSystem)

	rootCmd.SetHelpFunc(helpFunc)
	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetHelpTemplate(helpTemplate)
	rootCmd.SetUsageTemplate(usageTemplate)

	helpCmd := help.NewCobraHelpCommand(helpSystem)
	rootCmd.SetHelpCommand(helpCmd)

	rootCmd.PersistentFlags().String("db", config.DefaultDBPath(), "Path to the SQLite database")
	rootCmd.PersistentFlags().String("openai-api-key", "", "OpenAI API key")
	rootCmd.PersistentFlags().String("openai-base-url", "", "Base URL of an OpenAI compatible API")
	rootCmd.PersistentFlags().Duration("poll-interval", config.DefaultPollInterval, "Interval of the queued instruction poller")
	rootCmd.PersistentFlags().Int64("context", 0, "Conversation to use (default: the most recent one)")

	// binds the flags above, reads ~/.agentpilot/config.yaml and AGENTPILOT_* variables
	err = clay.InitViper("agentpilot", rootCmd)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing config: %s\n", err)
		os.Exit(1)
	}
	err = clay.InitLogger()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logger: %s\n", err)
		os.Exit(1)
	}

	logsCmdInstance, err := cmds.NewLogsCommand()
	cobra.CheckErr(err)
	logsCommand, err := cli.BuildCobraCommandFromGlazeCommand(logsCmdInstance)
	cobra.CheckErr(err)

	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewContextsCommand(),
		cmds.NewHistoryCommand(),
		cmds.NewBranchCommand(),
		cmds.NewAgentsCommand(),
		cmds.NewInputsCommand(),
		cmds.NewConfigCommand(),
		cmds.NewBlocksCommand(),
		logsCommand,
		cmds.NewRerunCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
