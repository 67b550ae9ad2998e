package main

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/entrhq/browserpilot/pkg/adapters/mcp"
	"github.com/entrhq/browserpilot/pkg/checkpoint"
)

const mcpSession = "mcp"

func mcpCommand(flags *globalFlags) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the browser_run tool over MCP on stdio",
		Long: `Serve the browser_run and browser_checkpoint tools over the Model Context
Protocol on stdin/stdout, for use from MCP clients such as editors and agents.

Example client entry:
  {"command": "browserpilot", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.close()

			if !cmd.Flags().Changed("headless") {
				headless = a.cfg.Browser.Headless
			}
			driver, err := a.startBrowser(headless)
			if err != nil {
				return err
			}
			runner, err := a.newRunner(driver, mcpSession)
			if err != nil {
				return err
			}

			srv := mcpadapter.NewServer(configuredRunner{runner: runner, app: a}, version,
				mcpadapter.WithCheckpoints(checkpoint.NewFileStore(), a.cfg.Run.CheckpointDir),
				mcpadapter.WithObserver(a.collector),
			)
			return srv.ServeStdio()
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser without a window (default from config)")

	return cmd
}
