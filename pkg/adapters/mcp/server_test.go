package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/agent"
	"github.com/entrhq/browserpilot/pkg/checkpoint"
)

type fakeRunner struct {
	inputs []agent.Input
	result *agent.Result
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, in agent.Input) (*agent.Result, error) {
	f.inputs = append(f.inputs, in)
	return f.result, f.err
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveRun(outcome string, elapsed time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func TestHandleRun_DecodesArguments(t *testing.T) {
	runner := &fakeRunner{result: &agent.Result{Status: agent.StatusCompleted, Completed: true}}
	obs := &recordingObserver{}
	s := NewServer(runner, "test", WithObserver(obs))

	res, err := s.handleRun(context.Background(), call(ToolRun, map[string]any{
		"goal":                 "Find the release notes",
		"startUrl":             "https://go.dev",
		"maxSteps":             float64(7),
		"provider":             "openai",
		"resumeFromCheckpoint": "true",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	require.Len(t, runner.inputs, 1)
	assert.Equal(t, agent.Input{
		Goal:                 "Find the release notes",
		StartURL:             "https://go.dev",
		MaxSteps:             7,
		Provider:             "openai",
		ResumeFromCheckpoint: true,
	}, runner.inputs[0])

	resp, ok := res.StructuredContent.(agent.Response)
	require.True(t, ok)
	assert.True(t, resp.Success)
	assert.Equal(t, agent.StatusCompleted, resp.Status)
	assert.Equal(t, []string{"completed"}, obs.outcomes)

	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, `"success":true`)
}

func TestHandleRun_ErrorIsToolError(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: goal is required", agent.ErrConfiguration)}
	obs := &recordingObserver{}
	s := NewServer(runner, "test", WithObserver(obs))

	res, err := s.handleRun(context.Background(), call(ToolRun, map[string]any{"goal": ""}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	resp, ok := res.StructuredContent.(agent.Response)
	require.True(t, ok)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "goal is required")
	assert.Equal(t, []string{agent.OutcomeInvalid}, obs.outcomes)
}

func TestHandleRun_InvalidArguments(t *testing.T) {
	runner := &fakeRunner{}
	s := NewServer(runner, "test")

	res, err := s.handleRun(context.Background(), call(ToolRun, map[string]any{"maxSteps": "many"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, runner.inputs)
}

func TestHandleCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewFileStore()
	path := checkpoint.DefaultPath(dir, "s1")
	require.NoError(t, store.Save(path, &checkpoint.Checkpoint{Goal: "stored goal", Steps: 2, MaxSteps: 5}))

	s := NewServer(&fakeRunner{}, "test", WithCheckpoints(store, dir))

	res, err := s.handleCheckpoint(context.Background(), call(ToolCheckpoint, map[string]any{"sessionId": "s1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := res.Content[0].(mcp.TextContent).Text
	assert.Contains(t, text, `"goal": "stored goal"`)

	res, err = s.handleCheckpoint(context.Background(), call(ToolCheckpoint, map[string]any{"path": filepath.Join(dir, "missing.json")}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleCheckpoint(context.Background(), call(ToolCheckpoint, map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestDecodeInput_RejectsWrongTypes(t *testing.T) {
	_, err := decodeInput(map[string]any{"goal": []string{"a"}})
	require.Error(t, err)
	assert.False(t, errors.Is(err, agent.ErrConfiguration))
}
