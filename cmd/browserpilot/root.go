package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "browserpilot",
		Short: "Let a computer-use model drive a real browser toward a goal",
		Long: `browserpilot runs a control loop in which a language model looks at
screenshots of a real browser and proposes one action at a time. Every action
is checked against safety rules, executed with retries, and recorded in a
checkpoint so an interrupted run can be resumed.

Supported providers: gemini, openai, anthropic.

Quick start:
  browserpilot auth set gemini                      # Store an API key
  browserpilot run "Find the latest Go release"     # Run a goal
  browserpilot run --resume "Find the latest Go release"
  browserpilot serve                                # HTTP API on 127.0.0.1:8765
  browserpilot mcp                                  # MCP server on stdio`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ~/.browserpilot/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(runCommand(flags))
	cmd.AddCommand(serveCommand(flags))
	cmd.AddCommand(mcpCommand(flags))
	cmd.AddCommand(authCommand(flags))
	cmd.AddCommand(checkpointCommand(flags))

	return cmd
}
