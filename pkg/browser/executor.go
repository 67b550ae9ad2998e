package browser

import (
	"context"
	"time"

	"github.com/entrhq/browserpilot/pkg/action"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Executor runs one action against a Driver, retrying transient failures
// with a linearly increasing delay: the wait before retry k is base*k.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the backoff unit.
func WithBaseDelay(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d >= 0 {
			e.baseDelay = d
		}
	}
}

// NewExecutor creates an executor with 3 attempts and a 500ms base delay
// unless overridden.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs a on d. A transient error that is followed by a
// successful attempt is not reported. Fatal errors and exhausted retries are
// returned as *ActionError; a cancelled context aborts the backoff wait.
func (e *Executor) Execute(ctx context.Context, d Driver, a action.Action) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := d.PerformAction(ctx, a)
		if err == nil {
			if attempt > 1 {
				debugLog.Infof("%s succeeded on attempt %d", a.Name, attempt)
			}
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			debugLog.Errorf("%s failed with fatal error: %v", a.Name, err)
			return &ActionError{Action: a.Name, Attempts: attempt, Err: err}
		}
		if attempt == e.maxAttempts {
			break
		}

		delay := e.baseDelay * time.Duration(attempt)
		debugLog.Warnf("%s attempt %d/%d failed (%v), retrying in %s", a.Name, attempt, e.maxAttempts, err, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	debugLog.Errorf("%s gave up after %d attempts: %v", a.Name, e.maxAttempts, lastErr)
	return &ActionError{Action: a.Name, Attempts: e.maxAttempts, Exhausted: true, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
