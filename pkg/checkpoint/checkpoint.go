// Package checkpoint holds the durable snapshot of a browser run and the
// store that reads and writes it.
package checkpoint

import (
	"time"

	"github.com/entrhq/browserpilot/pkg/action"
)

// Version is the only checkpoint format this package reads or writes.
const Version = 1

// HistoryEntry records one successfully executed action. Entries are
// appended once and never mutated.
type HistoryEntry struct {
	Action    string         `json:"action"`
	Args      map[string]any `json:"args"`
	URL       string         `json:"url"`
	Timestamp time.Time      `json:"timestamp"`
	Signature string         `json:"signature"`
}

// NewHistoryEntry builds an entry for a, computing its signature.
func NewHistoryEntry(a action.Action, url string, at time.Time) HistoryEntry {
	return HistoryEntry{
		Action:    string(a.Name),
		Args:      a.Args,
		URL:       url,
		Timestamp: at,
		Signature: a.Signature(),
	}
}

// Checkpoint is the full run-state snapshot. Goal is immutable once a run
// starts and is the key used to decide whether a checkpoint can resume.
type Checkpoint struct {
	Version           int            `json:"version"`
	SessionID         string         `json:"sessionId"`
	Goal              string         `json:"goal"`
	Provider          string         `json:"provider"`
	Model             string         `json:"model"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	Steps             int            `json:"steps"`
	MaxSteps          int            `json:"maxSteps"`
	Completed         bool           `json:"completed"`
	Blocked           bool           `json:"blocked"`
	BlockedReason     string         `json:"blockedReason,omitempty"`
	FinalAnalysis     string         `json:"finalAnalysis,omitempty"`
	LastURL           string         `json:"lastUrl,omitempty"`
	URLStabilityCount int            `json:"urlStabilityCount"`
	Actions           []string       `json:"actions"`
	PagesVisited      []string       `json:"pagesVisited"`
	ActionHistory     []HistoryEntry `json:"actionHistory"`
}

// Clone returns a deep enough copy for the store and the run loop to hold
// independently: slices are copied, history argument maps are shared since
// entries are never mutated.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.Actions = append([]string{}, c.Actions...)
	out.PagesVisited = append([]string{}, c.PagesVisited...)
	out.ActionHistory = append([]HistoryEntry{}, c.ActionHistory...)
	return &out
}

// Recent returns up to n of the most recent history entries.
func (c *Checkpoint) Recent(n int) []HistoryEntry {
	if n <= 0 || len(c.ActionHistory) == 0 {
		return nil
	}
	if len(c.ActionHistory) <= n {
		return c.ActionHistory
	}
	return c.ActionHistory[len(c.ActionHistory)-n:]
}

// Visit appends url to PagesVisited unless it is empty or already present.
func (c *Checkpoint) Visit(url string) {
	if url == "" {
		return
	}
	for _, p := range c.PagesVisited {
		if p == url {
			return
		}
	}
	c.PagesVisited = append(c.PagesVisited, url)
}

// Resumable reports whether cp can continue a run for goal: the goals must
// match exactly and the checkpoint must not have reached a terminal state.
func Resumable(cp *Checkpoint, goal string) bool {
	return cp != nil && cp.Goal == goal && !cp.Completed
}

// EffectiveMaxSteps returns the step budget for a resumed run: the larger
// of the requested budget and the stored one.
func EffectiveMaxSteps(requested int, cp *Checkpoint) int {
	if cp != nil && cp.MaxSteps > requested {
		return cp.MaxSteps
	}
	return requested
}
