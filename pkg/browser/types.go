package browser

import (
	"context"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserpilot/pkg/action"
	"github.com/entrhq/browserpilot/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("browser")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}

// Driver is the browser capability the run loop drives. Implementations
// own their lifecycle; the run loop never calls Close.
type Driver interface {
	// Screenshot captures the visible viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	CurrentURL() string
	// Viewport reports the pixel size the 0-1000 action grid maps onto.
	Viewport() Viewport
	PerformAction(ctx context.Context, a action.Action) error
	Close() error
}

// Session is one Playwright browser with a single page. It implements
// Driver.
type Session struct {
	Name     string
	Browser  playwright.Browser
	Context  playwright.BrowserContext
	Page     playwright.Page
	Headless bool

	CreatedAt time.Time

	mu         sync.Mutex
	lastUsedAt time.Time
	viewport   Viewport
	timeout    float64
	closed     bool
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	Headless bool

	// Viewport sets the page size; nil means DefaultViewportWidth x
	// DefaultViewportHeight.
	Viewport *Viewport

	// Timeout is the default operation timeout in milliseconds.
	Timeout float64
}

// Viewport is the page size in CSS pixels.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// SessionInfo contains metadata about a browser session.
type SessionInfo struct {
	Name       string    `json:"name"`
	CurrentURL string    `json:"currentUrl"`
	Headless   bool      `json:"headless"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

const (
	DefaultTimeout        = 30000.0 // milliseconds
	DefaultViewportWidth  = 1440
	DefaultViewportHeight = 900
	DefaultMaxSessions    = 5
	DefaultIdleTimeout    = 300 // seconds

	// DefaultWaitSeconds is used by the wait action when no duration is given.
	DefaultWaitSeconds = 5
	// MaxWaitSeconds caps a single wait action.
	MaxWaitSeconds = 30
	// DefaultScrollMagnitude is the scroll distance on the 0-1000 grid.
	DefaultScrollMagnitude = 800
)
