// Package action defines the canonical browser action vocabulary shared by
// the normalizer, the safety classifier, the executor and the run loop.
//
// Every model provider proposes actions in its own shape; once normalized,
// the rest of the system only ever sees an Action whose Name is one of the
// constants below and whose coordinates live on a 0-1000 grid regardless of
// the screen size.
package action

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Name identifies one of the fixed browser primitives.
type Name string

const (
	Navigate       Name = "navigate"
	ClickAt        Name = "click_at"
	HoverAt        Name = "hover_at"
	TypeTextAt     Name = "type_text_at"
	ScrollAt       Name = "scroll_at"
	ScrollDocument Name = "scroll_document"
	DragAndDrop    Name = "drag_and_drop"
	GoBack         Name = "go_back"
	GoForward      Name = "go_forward"
	KeyCombination Name = "key_combination"
	Wait           Name = "wait"
)

// GridSize is the extent of the normalized coordinate grid on both axes.
const GridSize = 1000

// MaxSignatureLength bounds the canonical signature string.
const MaxSignatureLength = 200

// Canonical argument keys.
const (
	ArgURL               = "url"
	ArgX                 = "x"
	ArgY                 = "y"
	ArgText              = "text"
	ArgPressEnter        = "press_enter"
	ArgClearBeforeTyping = "clear_before_typing"
	ArgDirection         = "direction"
	ArgMagnitude         = "magnitude"
	ArgDestinationX      = "destination_x"
	ArgDestinationY      = "destination_y"
	ArgKeys              = "keys"
	ArgSeconds           = "seconds"
	ArgButton            = "button"
	ArgClicks            = "clicks"
)

var known = map[Name]bool{
	Navigate:       true,
	ClickAt:        true,
	HoverAt:        true,
	TypeTextAt:     true,
	ScrollAt:       true,
	ScrollDocument: true,
	DragAndDrop:    true,
	GoBack:         true,
	GoForward:      true,
	KeyCombination: true,
	Wait:           true,
}

// Names returns the canonical vocabulary in a stable order.
func Names() []Name {
	names := make([]Name, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// IsKnown reports whether name belongs to the canonical vocabulary.
func IsKnown(name Name) bool {
	return known[name]
}

// IsScroll reports whether name is one of the scroll primitives.
func IsScroll(name string) bool {
	return name == string(ScrollAt) || name == string(ScrollDocument)
}

// Action is a canonical browser action. Actions are created once per step
// and treated as immutable afterwards.
type Action struct {
	Name Name           `json:"name"`
	Args map[string]any `json:"args"`
}

// New creates an action, copying args so later mutation of the caller's map
// cannot leak into the action.
func New(name Name, args map[string]any) Action {
	copied := make(map[string]any, len(args))
	for k, v := range args {
		copied[k] = v
	}
	return Action{Name: name, Args: copied}
}

// String renders the action as it appears in the human-readable action log.
func (a Action) String() string {
	return describe(string(a.Name), a.Args, 0)
}

// Signature returns the canonical comparison key for this action.
func (a Action) Signature() string {
	return Signature(string(a.Name), a.Args)
}

// Signature derives the canonical string used for cheap repeated-action
// comparison: the name followed by the arguments sorted by key, truncated to
// MaxSignatureLength bytes. Values use default fmt formatting so that an int
// and a float64 holding the same integral value compare equal, which is what
// happens to numbers after a JSON round trip.
func Signature(name string, args map[string]any) string {
	return describe(name, args, MaxSignatureLength)
}

func describe(name string, args map[string]any, limit int) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, args[k])
	}
	b.WriteByte(')')

	s := b.String()
	if limit > 0 && len(s) > limit {
		// Cut on a rune boundary so the signature survives a JSON round trip.
		for limit > 0 && !utf8.RuneStart(s[limit]) {
			limit--
		}
		return s[:limit]
	}
	return s
}

// Int reads an integral argument, accepting the numeric types produced by
// both Go code and JSON decoding.
func (a Action) Int(key string) (int, bool) {
	return ToInt(a.Args[key])
}

// Str reads a string argument.
func (a Action) Str(key string) (string, bool) {
	s, ok := a.Args[key].(string)
	return s, ok
}

// Bool reads a boolean argument.
func (a Action) Bool(key string) bool {
	b, _ := a.Args[key].(bool)
	return b
}

// ToInt converts common numeric representations to int.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
