package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/browserpilot/pkg/checkpoint"
	"github.com/entrhq/browserpilot/pkg/config"
)

func checkpointCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect stored run checkpoints",
	}
	cmd.AddCommand(checkpointShowCommand(flags))
	return cmd
}

func checkpointShowCommand(flags *globalFlags) *cobra.Command {
	var (
		session string
		path    string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a stored checkpoint",
		Long: `Print a stored checkpoint. By default the CLI session's checkpoint is
shown; use --session for the server or MCP sessions, or --path for any file.

Examples:
  browserpilot checkpoint show
  browserpilot checkpoint show --session server --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := config.Load(flags.configPath)
				if err != nil {
					return err
				}
				path = checkpoint.DefaultPath(cfg.Run.CheckpointDir, session)
			}

			cp := checkpoint.NewFileStore().Load(path)
			if cp == nil {
				return fmt.Errorf("no readable checkpoint at %s", path)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cp)
			}

			state := yellow("resumable")
			switch {
			case cp.Blocked:
				state = red("blocked: ") + cp.BlockedReason
			case cp.Completed:
				state = green("completed")
			}
			fmt.Fprintf(out, "%s\n", cyan("=== Checkpoint ==="))
			fmt.Fprintf(out, "Goal:     %s\n", cp.Goal)
			fmt.Fprintf(out, "State:    %s\n", state)
			fmt.Fprintf(out, "Steps:    %d/%d\n", cp.Steps, cp.MaxSteps)
			fmt.Fprintf(out, "Provider: %s (%s)\n", cp.Provider, cp.Model)
			fmt.Fprintf(out, "Last URL: %s\n", cp.LastURL)
			fmt.Fprintf(out, "Updated:  %s\n", cp.UpdatedAt.Format("2006-01-02 15:04:05"))
			if len(cp.Actions) > 0 {
				fmt.Fprintf(out, "\n%s\n", yellow("Actions:"))
				for i, a := range cp.Actions {
					fmt.Fprintf(out, "  %2d. %s\n", i+1, a)
				}
			}
			if cp.FinalAnalysis != "" {
				fmt.Fprintf(out, "\n%s\n", cp.FinalAnalysis)
			}
			fmt.Fprintf(out, "\n%s\n", gray(path))
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", defaultCLISession, "Session whose checkpoint to show")
	cmd.Flags().StringVar(&path, "path", "", "Checkpoint file (overrides --session)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw checkpoint JSON")

	return cmd
}
