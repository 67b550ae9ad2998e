package types

import (
	"encoding/base64"
	"time"
)

// EventType defines the type of progress notification emitted by a run.
type EventType string

const (
	EventTypeRunProgress     EventType = "run_progress"     // EventTypeRunProgress reports a run status change or a completed step.
	EventTypeScreenshot      EventType = "screenshot"       // EventTypeScreenshot carries the screenshot captured at the start of a step.
	EventTypeBlocked         EventType = "blocked"          // EventTypeBlocked indicates the run stopped on a safety or loop block.
	EventTypeCheckpointSaved EventType = "checkpoint_saved" // EventTypeCheckpointSaved indicates the checkpoint was persisted.
)

// RunStatus is the status carried by a run_progress event.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusBlocked   RunStatus = "blocked"
	StatusCompleted RunStatus = "completed"
	StatusRecovered RunStatus = "recovered"
)

// Event is a fire-and-forget progress notification. Exactly one of the
// detail pointers is set, matching Type.
type Event struct {
	// Type indicates the kind of event.
	Type EventType `json:"type"`

	// SessionID identifies the hosting session that emitted the event.
	SessionID string `json:"sessionId,omitempty"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	Progress   *RunProgress     `json:"progress,omitempty"`
	Screenshot *Screenshot      `json:"screenshot,omitempty"`
	Blocked    *Blocked         `json:"blocked,omitempty"`
	Checkpoint *CheckpointSaved `json:"checkpoint,omitempty"`
}

// RunProgress describes where a run stands.
type RunProgress struct {
	Status   RunStatus `json:"status"`
	Step     int       `json:"step"`
	MaxSteps int       `json:"maxSteps"`
	URL      string    `json:"url,omitempty"`
	Detail   string    `json:"detail,omitempty"`

	// Action is the canonical name of the action executed in this step, if
	// any.
	Action string `json:"action,omitempty"`
}

// Screenshot is a base64 encoded page capture.
type Screenshot struct {
	Data      string    `json:"data"`
	MIMEType  string    `json:"mimeType"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Blocked explains why a run stopped early.
type Blocked struct {
	Reason         string `json:"reason"`
	CheckpointPath string `json:"checkpointPath"`
}

// CheckpointSaved reports a persisted checkpoint. Recoverable is false once
// the checkpoint reached a terminal state.
type CheckpointSaved struct {
	Path        string `json:"path"`
	Recoverable bool   `json:"recoverable"`
}

// NewRunProgressEvent creates a run progress event.
func NewRunProgressEvent(sessionID string, progress RunProgress) *Event {
	return &Event{
		Type:      EventTypeRunProgress,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Progress:  &progress,
	}
}

// NewScreenshotEvent creates a screenshot event, encoding the image as
// base64.
func NewScreenshotEvent(sessionID string, image []byte, mimeType, url string) *Event {
	now := time.Now()
	return &Event{
		Type:      EventTypeScreenshot,
		SessionID: sessionID,
		Timestamp: now,
		Screenshot: &Screenshot{
			Data:      base64.StdEncoding.EncodeToString(image),
			MIMEType:  mimeType,
			URL:       url,
			Timestamp: now,
		},
	}
}

// NewBlockedEvent creates a blocked event.
func NewBlockedEvent(sessionID, reason, checkpointPath string) *Event {
	return &Event{
		Type:      EventTypeBlocked,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Blocked:   &Blocked{Reason: reason, CheckpointPath: checkpointPath},
	}
}

// NewCheckpointSavedEvent creates a checkpoint saved event.
func NewCheckpointSavedEvent(sessionID, path string, recoverable bool) *Event {
	return &Event{
		Type:       EventTypeCheckpointSaved,
		SessionID:  sessionID,
		Timestamp:  time.Now(),
		Checkpoint: &CheckpointSaved{Path: path, Recoverable: recoverable},
	}
}

// IsTerminal reports whether the event marks the end of a run.
func (e *Event) IsTerminal() bool {
	if e == nil {
		return false
	}
	if e.Type == EventTypeBlocked {
		return true
	}
	return e.Type == EventTypeRunProgress && e.Progress != nil &&
		(e.Progress.Status == StatusCompleted || e.Progress.Status == StatusBlocked)
}
