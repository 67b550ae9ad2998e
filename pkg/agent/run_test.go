package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/action"
	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/checkpoint"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/normalize"
	"github.com/entrhq/browserpilot/pkg/types"
)

func TestRun_ResumeAfterBudget(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com/start"}
	h := newHarness(t, driver, newScripted(always(clickAt(500, 500))))
	ctx := context.Background()

	first, err := h.runner.Run(ctx, Input{Goal: "Resume me later", MaxSteps: 1})
	require.NoError(t, err)
	assert.False(t, first.Completed)
	assert.Equal(t, StatusBudgetExhausted, first.Status)
	assert.Equal(t, 1, first.Steps)
	assert.GreaterOrEqual(t, len(first.Actions), 1)
	assert.FileExists(t, first.CheckpointPath)

	h.provider = newScripted(always(finalText("Found it.")))
	second, err := h.runner.Run(ctx, Input{Goal: "Resume me later", MaxSteps: 3, ResumeFromCheckpoint: true})
	require.NoError(t, err)

	assert.True(t, second.Completed)
	assert.False(t, second.Blocked)
	assert.True(t, second.ResumedFromCheckpoint)
	assert.Equal(t, StatusCompleted, second.Status)
	assert.GreaterOrEqual(t, len(second.Actions), 2)
	assert.Equal(t, first.Actions[0], second.Actions[0])
	assert.Equal(t, "Found it.", second.Analysis)
	assert.Equal(t, 1, second.Steps)
	assert.Equal(t, 3, second.MaxSteps)
	assert.Len(t, second.ActionHistory, 1)
	assert.Equal(t, first.CheckpointPath, second.CheckpointPath)

	// The resumed run keeps the provider and model recorded in the checkpoint.
	assert.Equal(t, []llm.ID{llm.Gemini, llm.Gemini}, h.selected)
	assert.Equal(t, "test-model", h.models[1])

	assert.NotEmpty(t, h.bus.ofType(types.EventTypeRunProgress))
	var recovered bool
	for _, e := range h.bus.ofType(types.EventTypeRunProgress) {
		recovered = recovered || e.Progress.Status == types.StatusRecovered
	}
	assert.True(t, recovered, "resume should emit a recovered progress event")
}

func TestRun_ResumeNavigatesToLastURL(t *testing.T) {
	const start, deep = "https://example.com/start", "https://example.com/deep"
	driver := &fakeDriver{url: start}
	driver.onPerform = func(a action.Action) {
		if a.Name == action.ClickAt {
			driver.url = deep
		}
	}
	h := newHarness(t, driver, newScripted(always(clickAt(500, 500))))
	ctx := context.Background()
	in := Input{Goal: "Dig deeper", StartURL: start, MaxSteps: 2, ResumeFromCheckpoint: true}

	first, err := h.runner.Run(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, StatusBudgetExhausted, first.Status)
	assert.Equal(t, deep, h.loadCheckpoint(t, first.CheckpointPath).LastURL)

	// A fresh browser after a crash opens on the start page again.
	driver.url = start
	driver.onPerform = nil
	driver.performed = nil
	h.provider = newScripted(always(finalText("Done.")))
	in.MaxSteps = 4

	second, err := h.runner.Run(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.ResumedFromCheckpoint)
	assert.Equal(t, StatusCompleted, second.Status)
	require.Len(t, driver.performed, 1)
	assert.Equal(t, action.Navigate, driver.performed[0].Name)
	assert.Equal(t, deep, driver.performed[0].Args[action.ArgURL])
	assert.Equal(t, deep, second.FinalURL)
}

func TestRun_ResumeKeepsLargerStoredBudget(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	calls := 0
	h := newHarness(t, driver, newScripted(func(int) (*llm.Response, error) {
		calls++
		return clickAt(calls*10, 100), nil
	}))
	ctx := context.Background()
	in := Input{Goal: "budget", MaxSteps: 2}

	_, err := h.runner.Run(ctx, in)
	require.NoError(t, err)

	in.MaxSteps = 1
	in.ResumeFromCheckpoint = true
	res, err := h.runner.Run(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.ResumedFromCheckpoint)
	assert.Equal(t, 2, res.MaxSteps)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, StatusBudgetExhausted, res.Status)
}

func TestRun_ResumeWithDifferentGoalStartsFresh(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(always(clickAt(10, 10))))
	ctx := context.Background()

	_, err := h.runner.Run(ctx, Input{Goal: "first goal", MaxSteps: 1})
	require.NoError(t, err)

	h.provider = newScripted(always(finalText("done")))
	res, err := h.runner.Run(ctx, Input{Goal: "another goal", MaxSteps: 3, ResumeFromCheckpoint: true})
	require.NoError(t, err)

	assert.False(t, res.ResumedFromCheckpoint)
	assert.Equal(t, 0, res.Steps)
	assert.Empty(t, res.ActionHistory)
	assert.Equal(t, []string{"done: done"}, res.Actions)

	cp := h.loadCheckpoint(t, res.CheckpointPath)
	assert.Equal(t, "another goal", cp.Goal)
}

func TestRun_BudgetExhaustedIsResumable(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(func(call int) (*llm.Response, error) {
		return clickAt(100+call, 200), nil
	}))

	res, err := h.runner.Run(context.Background(), Input{Goal: "keep clicking", MaxSteps: 3})
	require.NoError(t, err)

	assert.Equal(t, StatusBudgetExhausted, res.Status)
	assert.Equal(t, 3, res.Steps)
	assert.False(t, res.Completed)
	assert.False(t, res.Blocked)
	assert.Len(t, res.ActionHistory, 3)
	assert.Len(t, driver.performed, 3)

	cp := h.loadCheckpoint(t, res.CheckpointPath)
	assert.True(t, checkpoint.Resumable(cp, "keep clicking"))
	assert.Equal(t, 3, cp.Steps)
}

func TestRun_LoopDetectedBeforeNextDispatch(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	provider := newScripted(always(clickAt(500, 500)))
	h := newHarness(t, driver, provider)

	res, err := h.runner.Run(context.Background(), Input{Goal: "loop", MaxSteps: 10})
	require.NoError(t, err)

	assert.Equal(t, StatusBlocked, res.Status)
	assert.True(t, res.Blocked)
	assert.True(t, res.Completed)
	assert.Contains(t, res.BlockedReason, "loop detected")
	assert.Equal(t, 3, res.Steps)
	assert.Len(t, provider.requests, 3)
	assert.Len(t, driver.performed, 3)

	blocked := h.bus.ofType(types.EventTypeBlocked)
	require.Len(t, blocked, 1)
	assert.Equal(t, res.CheckpointPath, blocked[0].Blocked.CheckpointPath)

	cp := h.loadCheckpoint(t, res.CheckpointPath)
	assert.True(t, cp.Blocked)
	assert.False(t, checkpoint.Resumable(cp, "loop"))
}

func TestRun_StalledURL(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(func(call int) (*llm.Response, error) {
		return clickAt(call*50, 300), nil
	}))

	res, err := h.runner.Run(context.Background(), Input{Goal: "stall", MaxSteps: 10})
	require.NoError(t, err)

	assert.True(t, res.Blocked)
	assert.Contains(t, res.BlockedReason, "no navigation progress")
	assert.Equal(t, 5, res.Steps)
}

func TestRun_AuthenticationWall(t *testing.T) {
	driver := &fakeDriver{url: "https://accounts.example.com/signin?next=/"}
	provider := newScripted(always(clickAt(1, 1)))
	h := newHarness(t, driver, provider)

	res, err := h.runner.Run(context.Background(), Input{Goal: "read inbox"})
	require.NoError(t, err)

	assert.True(t, res.Blocked)
	assert.Contains(t, res.BlockedReason, "authentication required")
	assert.Empty(t, provider.requests)
}

func TestRun_SafetyBlocksNavigation(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(always(geminiCall("navigate", map[string]any{"url": "file:///etc/passwd"}))))

	res, err := h.runner.Run(context.Background(), Input{Goal: "read files"})
	require.NoError(t, err)

	assert.True(t, res.Blocked)
	assert.Contains(t, res.BlockedReason, "file")
	assert.Equal(t, 0, res.Steps)
	assert.Empty(t, driver.performed)
}

func TestRun_SafetyBlocksQuitShortcut(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(always(geminiCall("key_combination", map[string]any{"keys": "Control+Q"}))))

	res, err := h.runner.Run(context.Background(), Input{Goal: "quit"})
	require.NoError(t, err)

	assert.True(t, res.Blocked)
	assert.Empty(t, driver.performed)
}

func TestRun_BlockedStartURL(t *testing.T) {
	driver := &fakeDriver{url: "about:blank"}
	provider := newScripted(always(finalText("unreachable")))
	h := newHarness(t, driver, provider)

	res, err := h.runner.Run(context.Background(), Input{Goal: "script", StartURL: "javascript:alert(1)"})
	require.NoError(t, err)

	assert.True(t, res.Blocked)
	assert.Contains(t, res.BlockedReason, "javascript")
	assert.Empty(t, provider.requests)
	assert.Empty(t, driver.performed)
}

func TestRun_StartURLNavigation(t *testing.T) {
	driver := &fakeDriver{url: "about:blank"}
	provider := newScripted(always(finalText("Go 1.25 is the latest release.")))
	h := newHarness(t, driver, provider)

	res, err := h.runner.Run(context.Background(), Input{Goal: "latest go", StartURL: "https://go.dev/doc/devel/release"})
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, "navigate https://go.dev/doc/devel/release", res.Actions[0])
	assert.Equal(t, "https://go.dev/doc/devel/release", res.FinalURL)
	assert.Contains(t, res.PagesVisited, "https://go.dev/doc/devel/release")
	assert.Equal(t, 0, res.Steps)
	require.Len(t, provider.requests, 1)
	assert.Equal(t, "https://go.dev/doc/devel/release", provider.requests[0].URL)
	assert.Equal(t, llm.Viewport{Width: 1440, Height: 900}, provider.requests[0].Viewport)
}

func TestRun_RefusalIsBlock(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(always(&llm.Response{Refusal: "confirmation needed to accept cookies"})))

	res, err := h.runner.Run(context.Background(), Input{Goal: "cookies"})
	require.NoError(t, err)

	assert.True(t, res.Blocked)
	assert.Equal(t, "model refused: confirmation needed to accept cookies", res.BlockedReason)
}

func TestRun_FatalActionError(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com", errs: []error{errors.New("element is not visible")}}
	h := newHarness(t, driver, newScripted(always(clickAt(10, 10))))

	res, err := h.runner.Run(context.Background(), Input{Goal: "click hidden"})
	require.Error(t, err)
	assert.Nil(t, res)

	var actionErr *browser.ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.False(t, actionErr.Exhausted)
	assert.Equal(t, 1, driver.attempts)

	cp := h.loadCheckpoint(t, checkpoint.DefaultPath(h.dir, "test-session"))
	assert.Equal(t, 0, cp.Steps)
	assert.False(t, cp.Completed)
}

func TestRun_TransientErrorIsRetried(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com", errs: []error{errors.New("Timeout 30000ms exceeded")}}
	h := newHarness(t, driver, newScripted(func(call int) (*llm.Response, error) {
		if call == 0 {
			return clickAt(10, 10), nil
		}
		return finalText("clicked"), nil
	}))

	res, err := h.runner.Run(context.Background(), Input{Goal: "click"})
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, 2, driver.attempts)
}

func TestRun_ProviderErrorFailsRun(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(func(int) (*llm.Response, error) {
		return nil, &llm.ResponseError{Provider: llm.Gemini, StatusCode: 500, Err: errors.New("internal")}
	}))

	_, err := h.runner.Run(context.Background(), Input{Goal: "anything"})

	var respErr *llm.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, 500, respErr.StatusCode)
	assert.FileExists(t, checkpoint.DefaultPath(h.dir, "test-session"))
}

func TestRun_UnsupportedActionFailsRun(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(always(geminiCall("zoom", map[string]any{"level": 2}))))

	_, err := h.runner.Run(context.Background(), Input{Goal: "zoom in"})

	var unsupported *normalize.UnsupportedActionError
	require.ErrorAs(t, err, &unsupported)
	assert.Empty(t, driver.performed)
}

func TestRun_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver := &fakeDriver{url: "https://example.com", onPerform: func(_ action.Action) { cancel() }}
	h := newHarness(t, driver, newScripted(always(clickAt(10, 10))))

	_, err := h.runner.Run(ctx, Input{Goal: "cancel me", MaxSteps: 5})
	require.ErrorIs(t, err, context.Canceled)

	cp := h.loadCheckpoint(t, checkpoint.DefaultPath(h.dir, "test-session"))
	assert.Equal(t, 1, cp.Steps)
	assert.True(t, checkpoint.Resumable(cp, "cancel me"))
}

func TestRun_ConfigurationErrors(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(always(finalText("x"))))
	ctx := context.Background()

	_, err := h.runner.Run(ctx, Input{Goal: "   "})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = h.runner.Run(ctx, Input{Goal: "g", MaxSteps: -1})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = h.runner.Run(ctx, Input{Goal: "g", Provider: "mistral"})
	assert.ErrorIs(t, err, ErrConfiguration)

	failing := NewRunner(driver, func(context.Context, llm.ID, string) (llm.Provider, error) {
		return nil, errors.New("no api key")
	}, WithCheckpointDir(t.TempDir()))
	_, err = failing.Run(ctx, Input{Goal: "g"})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "no api key")
}

func TestRun_ProviderSelection(t *testing.T) {
	tests := []struct {
		name  string
		input Input
		want  llm.ID
	}{
		{"explicit provider", Input{Provider: "claude", Model: "gpt-4o"}, llm.Anthropic},
		{"inferred from model", Input{Model: "claude-sonnet-4-5"}, llm.Anthropic},
		{"openai model", Input{Model: "computer-use-preview"}, llm.OpenAI},
		{"default", Input{}, llm.OpenAI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := &fakeDriver{url: "https://example.com"}
			h := newHarness(t, driver, newScripted(always(finalText("ok"))), WithDefaultProvider(llm.OpenAI))

			in := tt.input
			in.Goal = "select"
			_, err := h.runner.Run(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, []llm.ID{tt.want}, h.selected)
			assert.Equal(t, tt.input.Model, h.models[0])
		})
	}
}

func TestRun_DefaultMaxSteps(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(always(finalText("ok"))))

	res, err := h.runner.Run(context.Background(), Input{Goal: "defaults"})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSteps, res.MaxSteps)
}

func TestRun_PublishesProgress(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	h := newHarness(t, driver, newScripted(func(call int) (*llm.Response, error) {
		if call == 0 {
			return clickAt(250, 750), nil
		}
		return finalText("done"), nil
	}))

	res, err := h.runner.Run(context.Background(), Input{Goal: "events"})
	require.NoError(t, err)

	screenshots := h.bus.ofType(types.EventTypeScreenshot)
	require.Len(t, screenshots, 2)
	assert.Equal(t, "image/png", screenshots[0].Screenshot.MIMEType)
	assert.Equal(t, "test-session", screenshots[0].SessionID)

	var stepEvent, completedEvent *types.Event
	for _, e := range h.bus.ofType(types.EventTypeRunProgress) {
		switch e.Progress.Status {
		case types.StatusRunning:
			stepEvent = e
		case types.StatusCompleted:
			completedEvent = e
		}
	}
	require.NotNil(t, stepEvent)
	assert.Equal(t, "click_at", stepEvent.Progress.Action)
	assert.Equal(t, 1, stepEvent.Progress.Step)
	require.NotNil(t, completedEvent)
	assert.True(t, completedEvent.IsTerminal())

	saved := h.bus.ofType(types.EventTypeCheckpointSaved)
	require.NotEmpty(t, saved)
	last := saved[len(saved)-1]
	assert.Equal(t, res.CheckpointPath, last.Checkpoint.Path)
	assert.False(t, last.Checkpoint.Recoverable)
	assert.True(t, saved[0].Checkpoint.Recoverable)
}

func TestRun_PromptWarnsAboutRepeatedActionType(t *testing.T) {
	driver := &fakeDriver{url: "https://example.com"}
	provider := newScripted(func(call int) (*llm.Response, error) {
		if call < 3 {
			return clickAt(100*(call+1), 100), nil
		}
		return finalText("stopping"), nil
	})
	h := newHarness(t, driver, provider)

	_, err := h.runner.Run(context.Background(), Input{Goal: "warn"})
	require.NoError(t, err)

	require.Len(t, provider.requests, 4)
	assert.NotContains(t, provider.requests[2].Prompt, "WARNING")
	assert.Contains(t, provider.requests[3].Prompt, `WARNING: your last 3 actions were all "click_at"`)
}
