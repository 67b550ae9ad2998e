// Package stall detects runs that can no longer make progress: login walls,
// pages that never change, repeated actions and endless scrolling.
//
// Detection is a pure function of the current URL, the recent action history
// and the URL stability counter. It runs once per step before the model is
// consulted.
package stall

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/entrhq/browserpilot/pkg/action"
	"github.com/entrhq/browserpilot/pkg/checkpoint"
)

const (
	DefaultStabilityThreshold = 5
	DefaultRepeatLimit        = 3
	DefaultScrollLimit        = 4
	// HistoryWindow is how many recent entries callers should pass to Detect.
	HistoryWindow = 8
)

// defaultAuthPattern matches whole host labels or path segments, so
// "lessons" and "/author" are not mistaken for "sso" and "/auth".
var defaultAuthPattern = regexp.MustCompile(
	`(?i)(^|[/._-])(login|log-in|signin|sign-in|sign_in|oauth|oauth2|sso|consent|captcha)([/._-]|$)` +
		`|/auth(/|$)` +
		`|^accounts\.google\.com(/|$)` +
		`|/session/new(/|$)`,
)

// Detector holds the thresholds. The zero value is not usable; use New.
type Detector struct {
	stabilityThreshold int
	repeatLimit        int
	scrollLimit        int
	authPattern        *regexp.Regexp
}

// Option configures a Detector.
type Option func(*Detector)

// WithStabilityThreshold sets how many consecutive steps on an unchanged URL
// count as no progress.
func WithStabilityThreshold(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.stabilityThreshold = n
		}
	}
}

// WithRepeatLimit sets how many identical consecutive actions count as a loop.
func WithRepeatLimit(n int) Option {
	return func(d *Detector) {
		if n > 1 {
			d.repeatLimit = n
		}
	}
}

// WithScrollLimit sets how many consecutive scrolls on one URL count as a
// scroll loop.
func WithScrollLimit(n int) Option {
	return func(d *Detector) {
		if n > 1 {
			d.scrollLimit = n
		}
	}
}

// WithAuthPattern replaces the login/consent URL pattern.
func WithAuthPattern(re *regexp.Regexp) Option {
	return func(d *Detector) {
		if re != nil {
			d.authPattern = re
		}
	}
}

// New creates a detector with the default thresholds.
func New(opts ...Option) *Detector {
	d := &Detector{
		stabilityThreshold: DefaultStabilityThreshold,
		repeatLimit:        DefaultRepeatLimit,
		scrollLimit:        DefaultScrollLimit,
		authPattern:        defaultAuthPattern,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns a human-readable reason when the run is stuck, or "" when
// it may continue. Rules are checked in order and the first match wins.
func (d *Detector) Detect(currentURL string, recent []checkpoint.HistoryEntry, urlStability int) string {
	if currentURL != "" && d.authPattern.MatchString(authTarget(currentURL)) {
		return fmt.Sprintf("authentication required: %s needs a human to sign in or consent", currentURL)
	}

	if urlStability >= d.stabilityThreshold {
		return fmt.Sprintf("no navigation progress: URL unchanged for %d steps", urlStability)
	}

	if tail := lastN(recent, d.repeatLimit); tail != nil && sameSignature(tail) {
		return fmt.Sprintf("loop detected: %q repeated %d times", tail[0].Signature, len(tail))
	}

	if tail := lastN(recent, d.scrollLimit); tail != nil && scrollsOnOneURL(tail) {
		return fmt.Sprintf("scroll loop: %d consecutive scrolls on %s", len(tail), tail[0].URL)
	}

	return ""
}

// authTarget reduces a URL to host and path. Query strings are ignored so a
// search for "login" does not read as a login wall.
func authTarget(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.ToLower(u.Host) + u.EscapedPath()
}

// lastN returns the final n entries, or nil if there are fewer than n.
func lastN(entries []checkpoint.HistoryEntry, n int) []checkpoint.HistoryEntry {
	if n <= 0 || len(entries) < n {
		return nil
	}
	return entries[len(entries)-n:]
}

func sameSignature(entries []checkpoint.HistoryEntry) bool {
	for _, e := range entries[1:] {
		if e.Signature != entries[0].Signature {
			return false
		}
	}
	return true
}

func scrollsOnOneURL(entries []checkpoint.HistoryEntry) bool {
	for _, e := range entries {
		if !action.IsScroll(e.Action) || e.URL != entries[0].URL {
			return false
		}
	}
	return true
}
