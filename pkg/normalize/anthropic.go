package normalize

import (
	"strings"

	"github.com/entrhq/browserpilot/pkg/action"
	"github.com/entrhq/browserpilot/pkg/llm"
)

// pixelsPerNotch converts Anthropic scroll_amount (wheel notches) to pixels.
const pixelsPerNotch = 100

type anthropicArgs struct {
	Action          string    `mapstructure:"action"`
	Coordinate      []float64 `mapstructure:"coordinate"`
	StartCoordinate []float64 `mapstructure:"start_coordinate"`
	Text            string    `mapstructure:"text"`
	ScrollDirection string    `mapstructure:"scroll_direction"`
	ScrollAmount    *float64  `mapstructure:"scroll_amount"`
	Duration        *float64  `mapstructure:"duration"`
	URL             string    `mapstructure:"url"`
}

var anthropicClicks = map[string]struct {
	button string
	clicks int
}{
	"left_click":   {"", 0},
	"right_click":  {"right", 0},
	"middle_click": {"middle", 0},
	"double_click": {"", 2},
	"triple_click": {"", 3},
}

// fromAnthropic maps a computer tool_use block, whose coordinates are pixels
// in display.
func fromAnthropic(tu *llm.ToolUse, display llm.Viewport) (action.Action, error) {
	var a anthropicArgs
	if err := decode(tu.Input, &a); err != nil {
		return action.Action{}, err
	}
	kind := strings.ToLower(strings.TrimSpace(a.Action))
	if kind == "" {
		return action.Action{}, invalid(tu.Name, "action is required")
	}

	px := pixelSpace(display)
	args := map[string]any{}
	coordinate := func(c []float64, field string) (int, int, error) {
		if len(c) != 2 {
			return 0, 0, invalid(kind, "%s must be [x, y]", field)
		}
		x, y := px.point(c[0], c[1])
		return x, y, nil
	}
	needPoint := func() error {
		x, y, err := coordinate(a.Coordinate, "coordinate")
		if err != nil {
			return err
		}
		withPoint(args, x, y)
		return nil
	}

	if click, ok := anthropicClicks[kind]; ok {
		if err := needPoint(); err != nil {
			return action.Action{}, err
		}
		if click.button != "" {
			args[action.ArgButton] = click.button
		}
		if click.clicks > 0 {
			args[action.ArgClicks] = click.clicks
		}
		return action.New(action.ClickAt, args), nil
	}

	switch kind {
	case "mouse_move":
		if err := needPoint(); err != nil {
			return action.Action{}, err
		}
		return action.New(action.HoverAt, args), nil

	case "left_click_drag":
		x, y, err := coordinate(a.StartCoordinate, "start_coordinate")
		if err != nil {
			return action.Action{}, err
		}
		dx, dy, err := coordinate(a.Coordinate, "coordinate")
		if err != nil {
			return action.Action{}, err
		}
		withPoint(args, x, y)
		args[action.ArgDestinationX] = dx
		args[action.ArgDestinationY] = dy
		return action.New(action.DragAndDrop, args), nil

	case "type":
		args[action.ArgText] = a.Text
		args[action.ArgPressEnter] = false
		args[action.ArgClearBeforeTyping] = false
		return action.New(action.TypeTextAt, args), nil

	case "key":
		keys := strings.TrimSpace(a.Text)
		if keys == "" {
			return action.Action{}, invalid(kind, "text is required")
		}
		args[action.ArgKeys] = keys
		return action.New(action.KeyCombination, args), nil

	case "scroll":
		dir := direction(a.ScrollDirection)
		args[action.ArgDirection] = dir
		if a.ScrollAmount != nil && *a.ScrollAmount > 0 {
			extent := display.Height
			if dir == "left" || dir == "right" {
				extent = display.Width
			}
			if m := px.distance(*a.ScrollAmount*pixelsPerNotch, extent); m > 0 {
				args[action.ArgMagnitude] = m
			}
		}
		if len(a.Coordinate) == 0 {
			return action.New(action.ScrollDocument, args), nil
		}
		if err := needPoint(); err != nil {
			return action.Action{}, err
		}
		return action.New(action.ScrollAt, args), nil

	case "wait":
		args[action.ArgSeconds] = seconds(a.Duration, 2)
		return action.New(action.Wait, args), nil

	case "screenshot":
		args[action.ArgSeconds] = 1
		return action.New(action.Wait, args), nil

	case "navigate":
		if a.URL == "" {
			return action.Action{}, invalid(kind, "url is required")
		}
		args[action.ArgURL] = a.URL
		return action.New(action.Navigate, args), nil

	case "go_back", "back":
		return action.New(action.GoBack, args), nil

	case "go_forward", "forward":
		return action.New(action.GoForward, args), nil
	}

	return action.Action{}, &UnsupportedActionError{Provider: llm.Anthropic, Name: a.Action}
}
