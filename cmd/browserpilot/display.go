package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/entrhq/browserpilot/pkg/agent"
	"github.com/entrhq/browserpilot/pkg/events"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/types"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// displayEvents prints progress events from b to w until b is closed. The
// returned channel closes once everything received has been printed.
func displayEvents(w io.Writer, b *events.Broadcaster) <-chan struct{} {
	ch, _ := b.Subscribe(events.DefaultBufferSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range ch {
			if line := formatEvent(event); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}()
	return done
}

// formatEvent renders one event as a terminal line; screenshots and
// checkpoint saves are too chatty to show.
func formatEvent(e *types.Event) string {
	switch e.Type {
	case types.EventTypeRunProgress:
		p := e.Progress
		if p == nil {
			return ""
		}
		step := gray(fmt.Sprintf("[%d/%d]", p.Step, p.MaxSteps))
		switch p.Status {
		case types.StatusRunning:
			if p.Action == "" {
				return fmt.Sprintf("%s %s", step, yellow(p.Detail))
			}
			return fmt.Sprintf("%s %s %s", step, green("●"), p.Detail)
		case types.StatusRecovered:
			return fmt.Sprintf("%s %s", step, cyan("↻ "+p.Detail))
		case types.StatusCompleted:
			return fmt.Sprintf("%s %s", step, green("✓ completed"))
		case types.StatusBlocked:
			return ""
		}
	case types.EventTypeBlocked:
		if e.Blocked == nil {
			return ""
		}
		return fmt.Sprintf("%s %s", red("✗ blocked:"), e.Blocked.Reason)
	}
	return ""
}

// printResult writes the human summary of a finished run.
func printResult(w io.Writer, res *agent.Result) {
	fmt.Fprintln(w)
	switch res.Status {
	case agent.StatusCompleted:
		fmt.Fprintf(w, "%s\n", cyan("=== Completed ==="))
	case agent.StatusBlocked:
		fmt.Fprintf(w, "%s\n", red("=== Blocked ==="))
		fmt.Fprintf(w, "Reason:     %s\n", res.BlockedReason)
	case agent.StatusBudgetExhausted:
		fmt.Fprintf(w, "%s\n", yellow("=== Step budget exhausted ==="))
		fmt.Fprintf(w, "Resume with --resume and the same goal.\n")
	}
	fmt.Fprintf(w, "Steps:      %d/%d\n", res.Steps, res.MaxSteps)
	fmt.Fprintf(w, "Final URL:  %s\n", res.FinalURL)
	fmt.Fprintf(w, "Provider:   %s (%s)\n", res.Provider, res.Model)
	if res.ResumedFromCheckpoint {
		fmt.Fprintf(w, "Resumed:    %s\n", green("yes"))
	}
	fmt.Fprintf(w, "Checkpoint: %s\n", gray(res.CheckpointPath))
	if dir, err := logging.GetLogDirectory(); err == nil {
		fmt.Fprintf(w, "Logs:       %s\n", gray(dir))
	}
	if res.Analysis != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(res.Analysis))
	}
}
