package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/action"
	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/checkpoint"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/types"
)

// fakeDriver is an in-memory browser. Navigation changes the URL; errs are
// returned by successive PerformAction calls.
type fakeDriver struct {
	url       string
	errs      []error
	attempts  int
	performed []action.Action
	onPerform func(action.Action)
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (d *fakeDriver) CurrentURL() string { return d.url }

func (d *fakeDriver) Viewport() browser.Viewport {
	return browser.Viewport{Width: 1440, Height: 900}
}

func (d *fakeDriver) PerformAction(ctx context.Context, a action.Action) error {
	d.attempts++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return err
		}
	}
	d.performed = append(d.performed, a)
	if a.Name == action.Navigate {
		d.url, _ = a.Str(action.ArgURL)
	}
	if d.onPerform != nil {
		d.onPerform(a)
	}
	return nil
}

func (d *fakeDriver) Close() error { return nil }

// scriptedProvider answers with next(call) where call counts from 0.
type scriptedProvider struct {
	id       llm.ID
	model    string
	next     func(call int) (*llm.Response, error)
	requests []*llm.Request
}

func (p *scriptedProvider) ID() llm.ID { return p.id }

func (p *scriptedProvider) Model() string { return p.model }

func (p *scriptedProvider) Next(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	call := len(p.requests)
	p.requests = append(p.requests, req)
	return p.next(call)
}

func newScripted(next func(call int) (*llm.Response, error)) *scriptedProvider {
	return &scriptedProvider{id: llm.Gemini, model: "test-model", next: next}
}

func geminiCall(name string, args map[string]any) *llm.Response {
	return &llm.Response{Payload: &llm.Payload{
		Provider: llm.Gemini,
		Gemini:   &llm.FunctionCall{Name: name, Args: args},
	}}
}

func clickAt(x, y int) *llm.Response {
	return geminiCall("click_at", map[string]any{"x": x, "y": y})
}

func finalText(text string) *llm.Response {
	return &llm.Response{Text: text}
}

func always(resp *llm.Response) func(int) (*llm.Response, error) {
	return func(int) (*llm.Response, error) { return resp, nil }
}

type recordingBus struct {
	mu     sync.Mutex
	events []*types.Event
}

func (b *recordingBus) Publish(event *types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) ofType(t types.EventType) []*types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*types.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// testHarness wires a Runner to fakes. provider can be swapped between runs.
type testHarness struct {
	runner   *Runner
	driver   *fakeDriver
	provider *scriptedProvider
	bus      *recordingBus
	dir      string
	selected []llm.ID
	models   []string
}

func newHarness(t *testing.T, driver *fakeDriver, provider *scriptedProvider, opts ...Option) *testHarness {
	t.Helper()
	h := &testHarness{driver: driver, provider: provider, bus: &recordingBus{}, dir: t.TempDir()}

	factory := func(ctx context.Context, id llm.ID, model string) (llm.Provider, error) {
		h.selected = append(h.selected, id)
		h.models = append(h.models, model)
		return h.provider, nil
	}
	base := []Option{
		WithCheckpointDir(h.dir),
		WithSessionID("test-session"),
		WithStepDelay(0),
		WithEventBus(h.bus),
		WithExecutor(browser.NewExecutor(browser.WithBaseDelay(time.Millisecond))),
	}
	h.runner = NewRunner(driver, factory, append(base, opts...)...)
	return h
}

func (h *testHarness) loadCheckpoint(t *testing.T, path string) *checkpoint.Checkpoint {
	t.Helper()
	cp := checkpoint.NewFileStore().Load(path)
	require.NotNil(t, cp, "checkpoint should be readable at %s", path)
	return cp
}
