package normalize

import (
	"strings"

	"github.com/entrhq/browserpilot/pkg/action"
	"github.com/entrhq/browserpilot/pkg/llm"
)

type openAIPoint struct {
	X *float64 `mapstructure:"x"`
	Y *float64 `mapstructure:"y"`
}

type openAIArgs struct {
	Type    string        `mapstructure:"type"`
	X       *float64      `mapstructure:"x"`
	Y       *float64      `mapstructure:"y"`
	Button  string        `mapstructure:"button"`
	Text    string        `mapstructure:"text"`
	Keys    []string      `mapstructure:"keys"`
	ScrollX float64       `mapstructure:"scroll_x"`
	ScrollY float64       `mapstructure:"scroll_y"`
	Path    []openAIPoint `mapstructure:"path"`
	URL     string        `mapstructure:"url"`
	Seconds *float64      `mapstructure:"seconds"`
	Ms      *float64      `mapstructure:"ms"`
}

// fromOpenAI maps a computer_call action, whose coordinates are pixels in
// display.
func fromOpenAI(cc *llm.ComputerCall, display llm.Viewport) (action.Action, error) {
	var a openAIArgs
	if err := decode(cc.Action, &a); err != nil {
		return action.Action{}, err
	}
	kind := strings.ToLower(strings.TrimSpace(a.Type))
	if kind == "" {
		return action.Action{}, invalid("computer_call", "action type is required")
	}

	px := pixelSpace(display)
	args := map[string]any{}
	needPoint := func() error {
		if a.X == nil || a.Y == nil {
			return invalid(kind, "x and y are required")
		}
		x, y := px.point(*a.X, *a.Y)
		withPoint(args, x, y)
		return nil
	}

	switch kind {
	case "click", "double_click":
		if err := needPoint(); err != nil {
			return action.Action{}, err
		}
		switch strings.ToLower(a.Button) {
		case "right":
			args[action.ArgButton] = "right"
		case "wheel", "middle":
			args[action.ArgButton] = "middle"
		}
		if kind == "double_click" {
			args[action.ArgClicks] = 2
		}
		return action.New(action.ClickAt, args), nil

	case "move":
		if err := needPoint(); err != nil {
			return action.Action{}, err
		}
		return action.New(action.HoverAt, args), nil

	case "type":
		args[action.ArgText] = a.Text
		args[action.ArgPressEnter] = false
		args[action.ArgClearBeforeTyping] = false
		return action.New(action.TypeTextAt, args), nil

	case "keypress":
		if len(a.Keys) == 0 {
			return action.Action{}, invalid(kind, "keys are required")
		}
		args[action.ArgKeys] = strings.Join(a.Keys, "+")
		return action.New(action.KeyCombination, args), nil

	case "scroll":
		dir, dist, extent := "down", a.ScrollY, display.Height
		switch {
		case a.ScrollY < 0:
			dir = "up"
		case a.ScrollY == 0 && a.ScrollX > 0:
			dir, dist, extent = "right", a.ScrollX, display.Width
		case a.ScrollY == 0 && a.ScrollX < 0:
			dir, dist, extent = "left", a.ScrollX, display.Width
		}
		args[action.ArgDirection] = dir
		if m := px.distance(dist, extent); m > 0 {
			args[action.ArgMagnitude] = m
		}
		if a.X == nil || a.Y == nil {
			return action.New(action.ScrollDocument, args), nil
		}
		_ = needPoint()
		return action.New(action.ScrollAt, args), nil

	case "drag":
		if len(a.Path) < 2 {
			return action.Action{}, invalid(kind, "path needs at least two points")
		}
		from, to := a.Path[0], a.Path[len(a.Path)-1]
		if from.X == nil || from.Y == nil || to.X == nil || to.Y == nil {
			return action.Action{}, invalid(kind, "path points need x and y")
		}
		x, y := px.point(*from.X, *from.Y)
		withPoint(args, x, y)
		dx, dy := px.point(*to.X, *to.Y)
		args[action.ArgDestinationX] = dx
		args[action.ArgDestinationY] = dy
		return action.New(action.DragAndDrop, args), nil

	case "wait":
		secs := a.Seconds
		if secs == nil && a.Ms != nil {
			s := *a.Ms / 1000
			secs = &s
		}
		args[action.ArgSeconds] = seconds(secs, 2)
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

	case "back", "go_back":
		return action.New(action.GoBack, args), nil

	case "forward", "go_forward":
		return action.New(action.GoForward, args), nil
	}

	return action.Action{}, &UnsupportedActionError{Provider: llm.OpenAI, Name: a.Type}
}
