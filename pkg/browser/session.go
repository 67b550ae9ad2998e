package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserpilot/pkg/action"
)

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

// LastUsedAt returns the time of the last operation on this session.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// Screenshot captures the visible viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.touch()

	data, err := s.Page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// CurrentURL returns the URL of the page.
func (s *Session) CurrentURL() string {
	return s.Page.URL()
}

// Viewport returns the page size, preferring what the page reports.
func (s *Session) Viewport() Viewport {
	if size := s.Page.ViewportSize(); size != nil && size.Width > 0 && size.Height > 0 {
		return Viewport{Width: size.Width, Height: size.Height}
	}
	return s.viewport
}

// Navigate loads url in the page.
func (s *Session) Navigate(url string) error {
	s.touch()
	opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}
	if s.timeout > 0 {
		opts.Timeout = playwright.Float(s.timeout)
	}
	if _, err := s.Page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// PerformAction executes one canonical action. Coordinates are read on the
// 0-1000 grid and scaled to the viewport.
func (s *Session) PerformAction(ctx context.Context, a action.Action) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.touch()

	switch a.Name {
	case action.Navigate:
		url, ok := a.Str(action.ArgURL)
		if !ok || url == "" {
			return fmt.Errorf("navigate: missing url")
		}
		return s.Navigate(url)

	case action.ClickAt:
		x, y, err := s.point(a, action.ArgX, action.ArgY)
		if err != nil {
			return err
		}
		return s.click(a, x, y)

	case action.HoverAt:
		x, y, err := s.point(a, action.ArgX, action.ArgY)
		if err != nil {
			return err
		}
		if err := s.Page.Mouse().Move(x, y); err != nil {
			return fmt.Errorf("hover failed: %w", err)
		}
		return nil

	case action.TypeTextAt:
		return s.typeTextAt(a)

	case action.ScrollAt:
		x, y, err := s.point(a, action.ArgX, action.ArgY)
		if err != nil {
			return err
		}
		if err := s.Page.Mouse().Move(x, y); err != nil {
			return fmt.Errorf("scroll failed: %w", err)
		}
		return s.scroll(a)

	case action.ScrollDocument:
		return s.scroll(a)

	case action.DragAndDrop:
		return s.drag(a)

	case action.GoBack:
		if _, err := s.Page.GoBack(); err != nil {
			return fmt.Errorf("go back failed: %w", err)
		}
		return nil

	case action.GoForward:
		if _, err := s.Page.GoForward(); err != nil {
			return fmt.Errorf("go forward failed: %w", err)
		}
		return nil

	case action.KeyCombination:
		keys, ok := a.Str(action.ArgKeys)
		if !ok || strings.TrimSpace(keys) == "" {
			return fmt.Errorf("key_combination: missing keys")
		}
		if err := s.Page.Keyboard().Press(PlaywrightKeys(keys)); err != nil {
			return fmt.Errorf("key press failed: %w", err)
		}
		return nil

	case action.Wait:
		seconds, ok := a.Int(action.ArgSeconds)
		if !ok || seconds <= 0 {
			seconds = DefaultWaitSeconds
		}
		if seconds > MaxWaitSeconds {
			seconds = MaxWaitSeconds
		}
		return sleepContext(ctx, time.Duration(seconds)*time.Second)

	default:
		return fmt.Errorf("unsupported action %q", a.Name)
	}
}

func (s *Session) click(a action.Action, x, y float64) error {
	opts := playwright.MouseClickOptions{}
	if button, ok := a.Str(action.ArgButton); ok && button != "" {
		switch button {
		case "right":
			opts.Button = playwright.MouseButtonRight
		case "middle":
			opts.Button = playwright.MouseButtonMiddle
		default:
			opts.Button = playwright.MouseButtonLeft
		}
	}
	if clicks, ok := a.Int(action.ArgClicks); ok && clicks > 1 {
		opts.ClickCount = playwright.Int(clicks)
	}
	if err := s.Page.Mouse().Click(x, y, opts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (s *Session) typeTextAt(a action.Action) error {
	text, _ := a.Str(action.ArgText)

	if _, hasX := a.Args[action.ArgX]; hasX {
		x, y, err := s.point(a, action.ArgX, action.ArgY)
		if err != nil {
			return err
		}
		if err := s.Page.Mouse().Click(x, y); err != nil {
			return fmt.Errorf("focus failed: %w", err)
		}
	}

	kb := s.Page.Keyboard()
	if a.Bool(action.ArgClearBeforeTyping) {
		if err := kb.Press("ControlOrMeta+A"); err != nil {
			return fmt.Errorf("select all failed: %w", err)
		}
		if err := kb.Press("Delete"); err != nil {
			return fmt.Errorf("clear failed: %w", err)
		}
	}
	if err := kb.Type(text); err != nil {
		return fmt.Errorf("typing failed: %w", err)
	}
	if a.Bool(action.ArgPressEnter) {
		if err := kb.Press("Enter"); err != nil {
			return fmt.Errorf("enter failed: %w", err)
		}
	}
	return nil
}

func (s *Session) scroll(a action.Action) error {
	vp := s.Viewport()
	magnitude, ok := a.Int(action.ArgMagnitude)
	if !ok || magnitude <= 0 {
		magnitude = DefaultScrollMagnitude
	}

	direction, _ := a.Str(action.ArgDirection)
	var dx, dy float64
	switch strings.ToLower(direction) {
	case "up":
		dy = -scale(magnitude, vp.Height)
	case "left":
		dx = -scale(magnitude, vp.Width)
	case "right":
		dx = scale(magnitude, vp.Width)
	case "down", "":
		dy = scale(magnitude, vp.Height)
	default:
		return fmt.Errorf("scroll: unknown direction %q", direction)
	}

	if err := s.Page.Mouse().Wheel(dx, dy); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

func (s *Session) drag(a action.Action) error {
	x, y, err := s.point(a, action.ArgX, action.ArgY)
	if err != nil {
		return err
	}
	dx, dy, err := s.point(a, action.ArgDestinationX, action.ArgDestinationY)
	if err != nil {
		return err
	}

	mouse := s.Page.Mouse()
	if err := mouse.Move(x, y); err != nil {
		return fmt.Errorf("drag failed: %w", err)
	}
	if err := mouse.Down(); err != nil {
		return fmt.Errorf("drag failed: %w", err)
	}
	if err := mouse.Move(dx, dy, playwright.MouseMoveOptions{Steps: playwright.Int(10)}); err != nil {
		return fmt.Errorf("drag failed: %w", err)
	}
	if err := mouse.Up(); err != nil {
		return fmt.Errorf("drag failed: %w", err)
	}
	return nil
}

// point converts a grid coordinate pair to viewport pixels.
func (s *Session) point(a action.Action, xKey, yKey string) (float64, float64, error) {
	x, okX := a.Int(xKey)
	y, okY := a.Int(yKey)
	if !okX || !okY {
		return 0, 0, fmt.Errorf("%s: missing %s/%s coordinates", a.Name, xKey, yKey)
	}
	vp := s.Viewport()
	return scale(x, vp.Width), scale(y, vp.Height), nil
}

// scale maps a 0-1000 grid value onto extent pixels.
func scale(v, extent int) float64 {
	return float64(v) * float64(extent) / action.GridSize
}

func (s *Session) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// Close releases the page, context and browser. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if s.Page != nil {
		if err := s.Page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Context != nil {
		if err := s.Context.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Browser != nil {
		if err := s.Browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing session %q: %v", s.Name, errs)
	}
	return nil
}

var playwrightKeyNames = map[string]string{
	"control":    "Control",
	"ctrl":       "Control",
	"shift":      "Shift",
	"alt":        "Alt",
	"option":     "Alt",
	"meta":       "Meta",
	"cmd":        "Meta",
	"command":    "Meta",
	"super":      "Meta",
	"enter":      "Enter",
	"return":     "Enter",
	"escape":     "Escape",
	"esc":        "Escape",
	"tab":        "Tab",
	"space":      "Space",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"page_up":    "PageUp",
	"pagedown":   "PageDown",
	"page_down":  "PageDown",
	"up":         "ArrowUp",
	"arrowup":    "ArrowUp",
	"down":       "ArrowDown",
	"arrowdown":  "ArrowDown",
	"left":       "ArrowLeft",
	"arrowleft":  "ArrowLeft",
	"right":      "ArrowRight",
	"arrowright": "ArrowRight",
	"insert":     "Insert",
}

// PlaywrightKeys converts "ctrl+shift+t" style input into Playwright's key
// syntax ("Control+Shift+T").
func PlaywrightKeys(keys string) string {
	parts := strings.FieldsFunc(keys, func(r rune) bool { return r == '+' || r == ' ' })
	for i, p := range parts {
		lower := strings.ToLower(p)
		switch {
		case playwrightKeyNames[lower] != "":
			parts[i] = playwrightKeyNames[lower]
		case len(lower) >= 2 && lower[0] == 'f' && isDigits(lower[1:]):
			parts[i] = strings.ToUpper(lower)
		}
	}
	return strings.Join(parts, "+")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
