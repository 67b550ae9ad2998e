// Package agent provides the run loop that lets a model drive a browser
// toward a goal.
//
// A Runner takes one goal at a time and steps through
//
//	screenshot -> stall check -> model -> normalize -> safety -> execute -> checkpoint
//
// until the model answers with final text (completed), a block is detected
// (blocked) or the step budget runs out (budget exhausted). The checkpoint
// is written after every step, so an interrupted run resumes from its last
// persisted step when called again with the same goal.
//
//	runner := agent.NewRunner(session, resolver.NewProvider,
//	    agent.WithCheckpointDir(dir),
//	    agent.WithEventBus(bus),
//	)
//	result, err := runner.Run(ctx, agent.Input{Goal: "Find the Go release notes"})
package agent

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/checkpoint"
	"github.com/entrhq/browserpilot/pkg/events"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/safety"
	"github.com/entrhq/browserpilot/pkg/stall"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("agent")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}

const (
	DefaultMaxSteps  = 15
	DefaultStepDelay = time.Second

	// PromptHistoryWindow is how many recent actions the prompt shows.
	PromptHistoryWindow = 8
)

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted       Status = "completed"
	StatusBlocked         Status = "blocked"
	StatusBudgetExhausted Status = "budget_exhausted"
)

// Input is the invocation contract of a run.
type Input struct {
	Goal                 string `json:"goal" mapstructure:"goal"`
	StartURL             string `json:"startUrl,omitempty" mapstructure:"startUrl"`
	MaxSteps             int    `json:"maxSteps,omitempty" mapstructure:"maxSteps"`
	Model                string `json:"model,omitempty" mapstructure:"model"`
	Provider             string `json:"provider,omitempty" mapstructure:"provider"`
	ResumeFromCheckpoint bool   `json:"resumeFromCheckpoint,omitempty" mapstructure:"resumeFromCheckpoint"`
	CheckpointPath       string `json:"checkpointPath,omitempty" mapstructure:"checkpointPath"`

	// SessionID scopes the default checkpoint path. Empty uses the
	// Runner's session.
	SessionID string `json:"sessionId,omitempty" mapstructure:"sessionId"`
}

// Result is the outcome of a run that stopped safely. Failed runs return an
// error instead.
type Result struct {
	Status                Status                    `json:"status"`
	Completed             bool                      `json:"completed"`
	Blocked               bool                      `json:"blocked"`
	BlockedReason         string                    `json:"blockedReason,omitempty"`
	Actions               []string                  `json:"actions"`
	ActionHistory         []checkpoint.HistoryEntry `json:"actionHistory"`
	PagesVisited          []string                  `json:"pagesVisited"`
	FinalURL              string                    `json:"finalUrl"`
	Steps                 int                       `json:"steps"`
	MaxSteps              int                       `json:"maxSteps"`
	CheckpointPath        string                    `json:"checkpointPath"`
	ResumedFromCheckpoint bool                      `json:"resumedFromCheckpoint"`
	Analysis              string                    `json:"analysis,omitempty"`
	Provider              string                    `json:"provider"`
	Model                 string                    `json:"model"`
}

// ProviderFactory builds the provider for a run. model may be empty, in
// which case the factory picks the provider's configured or default model.
// Errors should wrap ErrConfiguration.
type ProviderFactory func(ctx context.Context, id llm.ID, model string) (llm.Provider, error)

// Runner drives one browser through runs. Runs on the same Runner are
// serialized since they share the browser.
type Runner struct {
	driver    browser.Driver
	providers ProviderFactory

	defaultProvider llm.ID
	store           checkpoint.Store
	executor        *browser.Executor
	classifier      *safety.Classifier
	detector        *stall.Detector
	bus             events.Bus
	checkpointDir   string
	sessionID       string
	limiter         *rate.Limiter
	now             func() time.Time

	mu sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithDefaultProvider sets the provider used when the input neither names
// one nor implies one through its model.
func WithDefaultProvider(id llm.ID) Option {
	return func(r *Runner) {
		if id != "" {
			r.defaultProvider = id
		}
	}
}

func WithCheckpointStore(store checkpoint.Store) Option {
	return func(r *Runner) {
		if store != nil {
			r.store = store
		}
	}
}

// WithCheckpointDir sets the directory default checkpoint paths live under.
func WithCheckpointDir(dir string) Option {
	return func(r *Runner) {
		if dir != "" {
			r.checkpointDir = dir
		}
	}
}

func WithExecutor(e *browser.Executor) Option {
	return func(r *Runner) {
		if e != nil {
			r.executor = e
		}
	}
}

func WithClassifier(c *safety.Classifier) Option {
	return func(r *Runner) {
		if c != nil {
			r.classifier = c
		}
	}
}

func WithDetector(d *stall.Detector) Option {
	return func(r *Runner) {
		if d != nil {
			r.detector = d
		}
	}
}

// WithEventBus sets where progress notifications are published.
func WithEventBus(bus events.Bus) Option {
	return func(r *Runner) {
		if bus != nil {
			r.bus = bus
		}
	}
}

// WithSessionID sets the hosting session; it names the default checkpoint
// directory.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		if id != "" {
			r.sessionID = id
		}
	}
}

// WithStepDelay sets the minimum spacing between model calls. Zero or
// negative disables pacing.
func WithStepDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.limiter = newLimiter(d)
	}
}

// WithClock overrides time.Now for checkpoint timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner creates a Runner for driver. The driver's lifecycle stays with
// the caller.
func NewRunner(driver browser.Driver, providers ProviderFactory, opts ...Option) *Runner {
	r := &Runner{
		driver:          driver,
		providers:       providers,
		defaultProvider: llm.Gemini,
		store:           checkpoint.NewFileStore(),
		executor:        browser.NewExecutor(),
		classifier:      &safety.Classifier{},
		detector:        stall.New(),
		bus:             events.Nop{},
		checkpointDir:   filepath.Join(os.TempDir(), "browserpilot", "sessions"),
		sessionID:       logging.GetSessionID(),
		limiter:         newLimiter(DefaultStepDelay),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}
