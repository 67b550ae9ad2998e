package agent

import (
	"fmt"
	"strings"

	"github.com/entrhq/browserpilot/pkg/checkpoint"
)

// repeatWarningWindow is how many trailing actions must share a name before
// the prompt warns the model.
const repeatWarningWindow = 3

// buildPrompt renders the per-step user prompt. steps is the number of
// actions already executed.
func buildPrompt(goal, url string, steps, maxSteps int, recent []checkpoint.HistoryEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal: %s\n", goal)
	fmt.Fprintf(&b, "Current URL: %s\n", url)
	fmt.Fprintf(&b, "Step: %d of %d\n\n", steps+1, maxSteps)

	if len(recent) == 0 {
		b.WriteString("Recent actions: none yet\n")
	} else {
		b.WriteString("Recent actions (oldest first):\n")
		for i, e := range recent {
			fmt.Fprintf(&b, "%d. %s on %s\n", i+1, e.Signature, e.URL)
		}
	}

	if name := repeatedAction(recent); name != "" {
		fmt.Fprintf(&b, "\nWARNING: your last %d actions were all %q. If they are not getting closer to the goal, "+
			"stop repeating them: try something different or reply with your final answer.\n", repeatWarningWindow, name)
	}

	b.WriteString("\nPropose the next single browser action, or reply with a final answer if the goal is complete or cannot be completed.")
	return b.String()
}

// repeatedAction returns the action name shared by the last
// repeatWarningWindow entries, or "".
func repeatedAction(recent []checkpoint.HistoryEntry) string {
	if len(recent) < repeatWarningWindow {
		return ""
	}
	tail := recent[len(recent)-repeatWarningWindow:]
	for _, e := range tail[1:] {
		if e.Action != tail[0].Action {
			return ""
		}
	}
	return tail[0].Action
}
