// Package safety decides whether a proposed browser action may run.
//
// The classifier is consulted once per proposed action, after
// normalization and before execution. It is a total function: malformed
// input produces a denial, never an error or a panic.
package safety

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Decision is the outcome of classifying one action. It is computed fresh
// per action and never persisted.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow is the default decision.
var Allow = Decision{Allowed: true}

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// quitCombos are key combinations that quit or close the browser.
var quitCombos = []string{
	"alt+f4",
	"control+q",
	"meta+q",
	"control+shift+q",
	"control+w",
	"meta+w",
	"control+shift+w",
	"meta+shift+w",
}

// blockedCombos holds quitCombos in normalized form.
var blockedCombos = func() map[string]bool {
	m := make(map[string]bool, len(quitCombos))
	for _, combo := range quitCombos {
		m[NormalizeKeys(strings.Split(combo, "+"))] = true
	}
	return m
}()

var keyAliases = map[string]string{
	"ctrl":    "control",
	"cmd":     "meta",
	"command": "meta",
	"super":   "meta",
	"win":     "meta",
	"windows": "meta",
	"option":  "alt",
	"opt":     "alt",
	"esc":     "escape",
	"return":  "enter",
}

// Classifier applies the action safety rules. The zero value is usable and
// enforces only the built-in rules.
type Classifier struct {
	deniedHosts []glob.Glob
	patterns    []string
}

// NewClassifier creates a classifier with an optional host denylist. Host
// patterns are globs where '*' matches within one DNS label and '**'
// matches across labels, e.g. "*.bank.example" or "**.internal".
func NewClassifier(deniedHosts []string) (*Classifier, error) {
	c := &Classifier{}
	for _, pattern := range deniedHosts {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, fmt.Errorf("invalid denied host pattern '%s': %w", pattern, err)
		}
		c.deniedHosts = append(c.deniedHosts, g)
		c.patterns = append(c.patterns, pattern)
	}
	return c, nil
}

// Classify decides whether the named action may run with the given args.
// Names are accepted in either snake_case or kebab-case.
func (c *Classifier) Classify(name string, args map[string]any) Decision {
	switch strings.ReplaceAll(strings.ToLower(name), "-", "_") {
	case "navigate", "open_browser":
		return c.classifyNavigation(args)
	case "key_combination":
		return classifyKeys(args)
	default:
		return Allow
	}
}

func (c *Classifier) classifyNavigation(args map[string]any) Decision {
	raw, _ := args["url"].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return deny("missing url")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return deny("invalid url %q: %v", raw, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return deny("unsupported URL scheme %q: only http and https are allowed", scheme)
	}

	if c != nil {
		host := strings.ToLower(parsed.Hostname())
		for i, g := range c.deniedHosts {
			if g.Match(host) {
				return deny("host %q is denied by pattern %q", host, c.patterns[i])
			}
		}
	}

	return Allow
}

func classifyKeys(args map[string]any) Decision {
	for _, keys := range expandControlOrMeta(keysArg(args["keys"])) {
		combo := NormalizeKeys(keys)
		if blockedCombos[combo] {
			return deny("key combination %q would quit or close the browser", combo)
		}
	}
	return Allow
}

// expandControlOrMeta returns the key set once with Playwright's
// ControlOrMeta modifier read as Control and once read as Meta. Key sets
// without it are returned unchanged.
func expandControlOrMeta(keys []string) [][]string {
	idx := -1
	for i, k := range keys {
		if strings.EqualFold(strings.TrimSpace(k), "controlormeta") {
			idx = i
			break
		}
	}
	if idx < 0 {
		return [][]string{keys}
	}
	variants := make([][]string, 0, 2)
	for _, mod := range []string{"control", "meta"} {
		v := append([]string(nil), keys...)
		v[idx] = mod
		variants = append(variants, v)
	}
	return variants
}

// keysArg accepts "Control+Q", "control q" or a list of key names.
func keysArg(v any) []string {
	switch keys := v.(type) {
	case string:
		return strings.FieldsFunc(keys, func(r rune) bool { return r == '+' || r == ' ' })
	case []string:
		return keys
	case []any:
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := k.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// NormalizeKeys produces the canonical form of a key set: lower case,
// aliases resolved, duplicates removed, sorted and joined with '+'.
func NormalizeKeys(keys []string) string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if alias, ok := keyAliases[k]; ok {
			k = alias
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, "+")
}
