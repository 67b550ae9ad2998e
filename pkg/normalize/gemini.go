package normalize

import (
	"strings"

	"github.com/entrhq/browserpilot/pkg/action"
	"github.com/entrhq/browserpilot/pkg/llm"
)

// SearchURL is where a bare "search" action lands.
const SearchURL = "https://www.google.com"

type geminiArgs struct {
	X                 *float64 `mapstructure:"x"`
	Y                 *float64 `mapstructure:"y"`
	DestinationX      *float64 `mapstructure:"destination_x"`
	DestinationY      *float64 `mapstructure:"destination_y"`
	URL               string   `mapstructure:"url"`
	Text              string   `mapstructure:"text"`
	PressEnter        *bool    `mapstructure:"press_enter"`
	ClearBeforeTyping *bool    `mapstructure:"clear_before_typing"`
	Direction         string   `mapstructure:"direction"`
	Magnitude         *float64 `mapstructure:"magnitude"`
	Keys              any      `mapstructure:"keys"`
	Seconds           *float64 `mapstructure:"seconds"`
}

var geminiAliases = map[string]action.Name{
	"click":        action.ClickAt,
	"left_click":   action.ClickAt,
	"single_click": action.ClickAt,
	"hover":        action.HoverAt,
	"move_mouse":   action.HoverAt,
	"type":         action.TypeTextAt,
	"type_text":    action.TypeTextAt,
	"scroll":       action.ScrollDocument,
	"drag":         action.DragAndDrop,
	"back":         action.GoBack,
	"forward":      action.GoForward,
	"key":          action.KeyCombination,
	"keypress":     action.KeyCombination,
	"press_key":    action.KeyCombination,
	"open_url":     action.Navigate,
	"goto":         action.Navigate,
}

func fromGemini(fc *llm.FunctionCall) (action.Action, error) {
	name := strings.ToLower(strings.TrimSpace(fc.Name))

	var a geminiArgs
	if err := decode(fc.Args, &a); err != nil {
		return action.Action{}, err
	}

	switch name {
	case "open_web_browser":
		if a.URL != "" {
			return action.New(action.Navigate, map[string]any{action.ArgURL: a.URL}), nil
		}
		return action.New(action.Wait, map[string]any{action.ArgSeconds: 1}), nil
	case "search":
		return action.New(action.Navigate, map[string]any{action.ArgURL: SearchURL}), nil
	case "wait_5_seconds":
		return action.New(action.Wait, map[string]any{action.ArgSeconds: 5}), nil
	}

	canonical := action.Name(name)
	if alias, ok := geminiAliases[name]; ok {
		canonical = alias
	}
	if !action.IsKnown(canonical) {
		return action.Action{}, &UnsupportedActionError{Provider: llm.Gemini, Name: fc.Name}
	}

	args := map[string]any{}
	needPoint := func() error {
		if a.X == nil || a.Y == nil {
			return invalid(fc.Name, "x and y are required")
		}
		x, y := gridSpace.point(*a.X, *a.Y)
		withPoint(args, x, y)
		return nil
	}

	switch canonical {
	case action.Navigate:
		if a.URL == "" {
			return action.Action{}, invalid(fc.Name, "url is required")
		}
		args[action.ArgURL] = a.URL

	case action.ClickAt, action.HoverAt:
		if err := needPoint(); err != nil {
			return action.Action{}, err
		}

	case action.TypeTextAt:
		if a.X != nil && a.Y != nil {
			_ = needPoint()
		}
		args[action.ArgText] = a.Text
		args[action.ArgPressEnter] = a.PressEnter == nil || *a.PressEnter
		args[action.ArgClearBeforeTyping] = a.ClearBeforeTyping == nil || *a.ClearBeforeTyping

	case action.ScrollAt:
		if err := needPoint(); err != nil {
			return action.Action{}, err
		}
		args[action.ArgDirection] = direction(a.Direction)
		if a.Magnitude != nil {
			args[action.ArgMagnitude] = gridSpace.distance(*a.Magnitude, 0)
		}

	case action.ScrollDocument:
		args[action.ArgDirection] = direction(a.Direction)

	case action.DragAndDrop:
		if err := needPoint(); err != nil {
			return action.Action{}, err
		}
		if a.DestinationX == nil || a.DestinationY == nil {
			return action.Action{}, invalid(fc.Name, "destination_x and destination_y are required")
		}
		dx, dy := gridSpace.point(*a.DestinationX, *a.DestinationY)
		args[action.ArgDestinationX] = dx
		args[action.ArgDestinationY] = dy

	case action.KeyCombination:
		keys := joinKeys(a.Keys)
		if keys == "" {
			return action.Action{}, invalid(fc.Name, "keys are required")
		}
		args[action.ArgKeys] = keys

	case action.Wait:
		args[action.ArgSeconds] = seconds(a.Seconds, 5)
	}

	return action.New(canonical, args), nil
}

func direction(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "up":
		return "up"
	case "left":
		return "left"
	case "right":
		return "right"
	default:
		return "down"
	}
}

func seconds(v *float64, def int) int {
	if v == nil || *v <= 0 {
		return def
	}
	s := int(*v + 0.5)
	if s < 1 {
		s = 1
	}
	return s
}

// joinKeys accepts "Control+L" or ["Control", "L"] and returns "Control+L".
func joinKeys(v any) string {
	switch keys := v.(type) {
	case string:
		return strings.TrimSpace(keys)
	case []string:
		return strings.Join(keys, "+")
	case []any:
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := k.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "+")
	default:
		return ""
	}
}
