package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/browserpilot/pkg/agent"
)

func runCommand(flags *globalFlags) *cobra.Command {
	var (
		in       agent.Input
		headless bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Drive the browser toward a goal",
		Long: `Drive the browser toward a goal until the model reports it is done, a
safety rule or stall blocks the run, or the step budget runs out.

The checkpoint is saved after every step. Re-running the same goal with
--resume continues from the last saved step.

Examples:
  browserpilot run "Find the latest Go release notes" --start-url https://go.dev
  browserpilot run --model claude-sonnet-4-5 "Compare two laptops"
  browserpilot run --resume --max-steps 30 "Find the latest Go release notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Goal = strings.TrimSpace(strings.Join(args, " "))
			if err := parseProvider(in.Provider); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
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
			runner, err := a.newRunner(driver, in.SessionID)
			if err != nil {
				return err
			}

			var displayed <-chan struct{}
			if !asJSON {
				displayed = displayEvents(cmd.ErrOrStderr(), a.broadcaster)
			}

			start := time.Now()
			res, err := runner.Run(ctx, a.runInput(in))
			a.collector.ObserveRun(agent.Outcome(res, err), time.Since(start))
			a.broadcaster.Close()
			if displayed != nil {
				<-displayed
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(agent.NewResponse(res, err)); encErr != nil {
					return encErr
				}
				return err
			}
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.StartURL, "start-url", "", "Page to open before the first step")
	cmd.Flags().IntVar(&in.MaxSteps, "max-steps", 0, "Step budget (default from config, 15)")
	cmd.Flags().StringVar(&in.Model, "model", "", "Model name; also selects the provider")
	cmd.Flags().StringVar(&in.Provider, "provider", "", "Provider: gemini, openai or anthropic")
	cmd.Flags().BoolVar(&in.ResumeFromCheckpoint, "resume", false, "Resume an unfinished run of the same goal")
	cmd.Flags().StringVar(&in.CheckpointPath, "checkpoint", "", "Checkpoint file (default <checkpoint_dir>/<session>/checkpoint.json)")
	cmd.Flags().StringVar(&in.SessionID, "session", defaultCLISession, "Session name scoping the default checkpoint")
	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser without a window (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

// defaultCLISession keeps CLI checkpoints at a stable path so --resume
// finds them from a new process.
const defaultCLISession = "cli"
