package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserpilot/pkg/action"
)

// ErrTransient marks a browser failure as worth retrying. Drivers can wrap
// it to opt an error into the retry path.
var ErrTransient = errors.New("transient browser error")

// ErrSessionClosed is returned by a Session after Close.
var ErrSessionClosed = errors.New("browser session closed")

// transientMarkers are lower-cased message fragments that indicate a flaky
// operation rather than a broken one.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"navigation interrupted",
	"interrupted by another navigation",
	"execution context was destroyed",
	"detached",
	"frame was detached",
	"target closed",
}

type temporary interface {
	Temporary() bool
}

// IsTransient reports whether err is likely to succeed on retry. Context
// cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, playwright.ErrTimeout) {
		return true
	}

	var t temporary
	if errors.As(err, &t) && t.Temporary() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ActionError is the final failure of one action after the executor gave
// up, either because the error was fatal or because retries ran out.
type ActionError struct {
	Action   action.Name
	Attempts int
	// Exhausted is true when every attempt failed with a transient error.
	Exhausted bool
	Err       error
}

func (e *ActionError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("action %s failed after %d attempts: %v", e.Action, e.Attempts, e.Err)
	}
	return fmt.Sprintf("action %s failed: %v", e.Action, e.Err)
}

// Unwrap returns the underlying error
func (e *ActionError) Unwrap() error {
	return e.Err
}
