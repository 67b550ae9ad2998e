package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserpilot/pkg/action"
)

// SessionManager owns the Playwright runtime and the named sessions
// started on it. Sessions outlive individual runs.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	playwright  *playwright.Playwright
	maxSessions int
	idleTimeout time.Duration
	initialized bool
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*Session),
		maxSessions: DefaultMaxSessions,
		idleTimeout: time.Duration(DefaultIdleTimeout) * time.Second,
	}
}

// Initialize installs the browser drivers if needed and starts Playwright.
// It must be called before StartSession.
func (m *SessionManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	// Keep Playwright's installer quiet; stdout may carry the MCP protocol.
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	debugLog.Infof("playwright started")
	return nil
}

// StartSession launches Chromium with a single page.
func (m *SessionManager) StartSession(name string, opts SessionOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("session %q already exists", name)
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", m.maxSessions)
	}
	if !m.initialized {
		return nil, fmt.Errorf("session manager not initialized")
	}

	if opts.Viewport == nil {
		opts.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height},
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(opts.Timeout)

	now := time.Now()
	session := &Session{
		Name:       name,
		Browser:    browser,
		Context:    bctx,
		Page:       page,
		Headless:   opts.Headless,
		CreatedAt:  now,
		lastUsedAt: now,
		viewport:   *opts.Viewport,
		timeout:    opts.Timeout,
	}

	m.sessions[name] = session
	debugLog.Infof("started session %q (headless=%v, %dx%d)", name, opts.Headless, opts.Viewport.Width, opts.Viewport.Height)
	return session, nil
}

// CloseSession closes and removes a browser session.
func (m *SessionManager) CloseSession(name string) error {
	m.mu.Lock()
	session, exists := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("session %q not found", name)
	}
	return session.Close()
}

// GetSession retrieves an active session by name.
func (m *SessionManager) GetSession(name string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[name]
	if !exists {
		return nil, fmt.Errorf("session %q not found", name)
	}
	return session, nil
}

// ListSessions returns information about all active sessions.
func (m *SessionManager) ListSessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		infos = append(infos, SessionInfo{
			Name:       session.Name,
			CurrentURL: session.CurrentURL(),
			Headless:   session.Headless,
			CreatedAt:  session.CreatedAt,
			LastUsedAt: session.LastUsedAt(),
		})
	}
	return infos
}

// CleanupIdleSessions closes sessions idle for longer than the idle timeout.
func (m *SessionManager) CleanupIdleSessions() error {
	m.mu.Lock()
	now := time.Now()
	var idle []*Session
	for name, session := range m.sessions {
		if now.Sub(session.LastUsedAt()) > m.idleTimeout {
			idle = append(idle, session)
			delete(m.sessions, name)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, session := range idle {
		debugLog.Infof("closing idle session %q", session.Name)
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %v", errs)
	}
	return nil
}

// Shutdown closes all sessions and stops Playwright.
func (m *SessionManager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, session := range m.sessions {
		if err := session.Close(); err != nil {
			debugLog.Warnf("closing session %q: %v", name, err)
		}
		delete(m.sessions, name)
	}

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}

// SetMaxSessions sets the maximum number of concurrent sessions.
func (m *SessionManager) SetMaxSessions(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSessions = max
}

// SetIdleTimeout sets the idle timeout duration.
func (m *SessionManager) SetIdleTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = timeout
}

// Driver returns a Driver bound to the session called name rather than to
// one Session value. The session is started with opts on first use and
// again after idle cleanup closed it, so a long-lived server can keep one
// Runner while CleanupIdleSessions reclaims the browser between runs.
func (m *SessionManager) Driver(name string, opts SessionOptions) Driver {
	return &managedDriver{manager: m, name: name, opts: opts}
}

type managedDriver struct {
	manager *SessionManager
	name    string
	opts    SessionOptions

	mu sync.Mutex
}

func (d *managedDriver) session() (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, err := d.manager.GetSession(d.name); err == nil {
		return s, nil
	}
	return d.manager.StartSession(d.name, d.opts)
}

func (d *managedDriver) Screenshot(ctx context.Context) ([]byte, error) {
	s, err := d.session()
	if err != nil {
		return nil, err
	}
	return s.Screenshot(ctx)
}

func (d *managedDriver) CurrentURL() string {
	s, err := d.manager.GetSession(d.name)
	if err != nil {
		return ""
	}
	return s.CurrentURL()
}

func (d *managedDriver) Viewport() Viewport {
	if s, err := d.manager.GetSession(d.name); err == nil {
		return s.Viewport()
	}
	if d.opts.Viewport != nil {
		return *d.opts.Viewport
	}
	return Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
}

func (d *managedDriver) PerformAction(ctx context.Context, a action.Action) error {
	s, err := d.session()
	if err != nil {
		return err
	}
	return s.PerformAction(ctx, a)
}

func (d *managedDriver) Close() error {
	if _, err := d.manager.GetSession(d.name); err != nil {
		return nil
	}
	return d.manager.CloseSession(d.name)
}
