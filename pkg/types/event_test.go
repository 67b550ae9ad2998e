package types

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunProgressEvent(t *testing.T) {
	event := NewRunProgressEvent("sess-1", RunProgress{
		Status:   StatusRunning,
		Step:     2,
		MaxSteps: 15,
		URL:      "https://go.dev",
		Action:   "click_at",
	})

	assert.Equal(t, EventTypeRunProgress, event.Type)
	assert.Equal(t, "sess-1", event.SessionID)
	assert.False(t, event.Timestamp.IsZero())
	require.NotNil(t, event.Progress)
	assert.Equal(t, 2, event.Progress.Step)
	assert.Nil(t, event.Screenshot)
	assert.Nil(t, event.Blocked)
	assert.Nil(t, event.Checkpoint)
}

func TestNewScreenshotEvent_EncodesBase64(t *testing.T) {
	event := NewScreenshotEvent("sess-1", []byte("png-bytes"), "image/png", "https://go.dev")

	require.NotNil(t, event.Screenshot)
	decoded, err := base64.StdEncoding.DecodeString(event.Screenshot.Data)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(decoded))
	assert.Equal(t, "image/png", event.Screenshot.MIMEType)
	assert.Equal(t, event.Timestamp, event.Screenshot.Timestamp)
}

func TestEventJSONShape(t *testing.T) {
	event := NewBlockedEvent("sess-1", "loop detected", "/tmp/cp.json")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "blocked", raw["type"])
	assert.Equal(t, "sess-1", raw["sessionId"])
	assert.NotContains(t, raw, "progress")
	blocked := raw["blocked"].(map[string]any)
	assert.Equal(t, "loop detected", blocked["reason"])
	assert.Equal(t, "/tmp/cp.json", blocked["checkpointPath"])
}

func TestNewCheckpointSavedEvent(t *testing.T) {
	event := NewCheckpointSavedEvent("", "/tmp/cp.json", true)

	assert.Equal(t, EventTypeCheckpointSaved, event.Type)
	require.NotNil(t, event.Checkpoint)
	assert.True(t, event.Checkpoint.Recoverable)
}

func TestEventIsTerminal(t *testing.T) {
	tests := []struct {
		name  string
		event *Event
		want  bool
	}{
		{"nil", nil, false},
		{"running", NewRunProgressEvent("", RunProgress{Status: StatusRunning}), false},
		{"recovered", NewRunProgressEvent("", RunProgress{Status: StatusRecovered}), false},
		{"completed", NewRunProgressEvent("", RunProgress{Status: StatusCompleted}), true},
		{"blocked progress", NewRunProgressEvent("", RunProgress{Status: StatusBlocked}), true},
		{"blocked", NewBlockedEvent("", "r", "p"), true},
		{"checkpoint", NewCheckpointSavedEvent("", "p", false), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.IsTerminal())
		})
	}
}
