// Package normalize turns a provider's proposed action into a canonical
// action.Action.
//
// Every provider has its own vocabulary ("click", "left_click",
// "single_click" all mean click_at) and its own coordinate space (a 0-999
// grid, raw pixels, or 0-1 fractions). Normalize maps the name onto the
// fixed canonical set and converts every coordinate onto the 0-1000 grid.
// An unknown name is an *UnsupportedActionError; it signals a schema
// mismatch with the provider and is never retried.
package normalize

import (
	"errors"
	"fmt"
	"math"

	"github.com/mitchellh/mapstructure"

	"github.com/entrhq/browserpilot/pkg/action"
	"github.com/entrhq/browserpilot/pkg/llm"
)

// ErrInvalidArguments is wrapped by errors for recognized actions whose
// arguments are missing or malformed.
var ErrInvalidArguments = errors.New("invalid action arguments")

// UnsupportedActionError reports a provider action name with no canonical
// equivalent.
type UnsupportedActionError struct {
	Provider llm.ID
	Name     string
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported %s action %q", e.Provider, e.Name)
}

// Normalize maps a provider payload onto the canonical vocabulary.
func Normalize(p *llm.Payload) (action.Action, error) {
	if p == nil {
		return action.Action{}, errors.New("normalize: nil payload")
	}

	switch p.Provider {
	case llm.Gemini:
		if p.Gemini == nil {
			return action.Action{}, errors.New("normalize: gemini payload without function call")
		}
		return fromGemini(p.Gemini)
	case llm.OpenAI:
		if p.OpenAI == nil {
			return action.Action{}, errors.New("normalize: openai payload without computer call")
		}
		return fromOpenAI(p.OpenAI, p.Display)
	case llm.Anthropic:
		if p.Anthropic == nil {
			return action.Action{}, errors.New("normalize: anthropic payload without tool use")
		}
		return fromAnthropic(p.Anthropic, p.Display)
	default:
		return action.Action{}, fmt.Errorf("normalize: unknown provider %q", p.Provider)
	}
}

// decode fills out from args, accepting numbers encoded as strings.
func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func invalid(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArguments, name, fmt.Sprintf(format, args...))
}

// space describes the coordinate system a provider speaks.
type space struct {
	pixels  bool
	display llm.Viewport
}

var gridSpace = space{}

func pixelSpace(display llm.Viewport) space {
	return space{pixels: true, display: display}
}

// point converts an (x, y) pair onto the grid. A pair with both values in
// [0, 1] and at least one fractional part is read as fractions of the
// screen, whatever the provider's native space.
func (s space) point(x, y float64) (int, int) {
	if isFraction(x, y) {
		return clampGrid(x * action.GridSize), clampGrid(y * action.GridSize)
	}
	return s.axis(x, s.display.Width), s.axis(y, s.display.Height)
}

func (s space) axis(v float64, extent int) int {
	if s.pixels && extent > 0 {
		return clampGrid(v * action.GridSize / float64(extent))
	}
	return clampGrid(v)
}

// distance converts a length along one axis onto the grid, without
// clamping.
func (s space) distance(v float64, extent int) int {
	if s.pixels && extent > 0 {
		return int(math.Round(math.Abs(v) * action.GridSize / float64(extent)))
	}
	return int(math.Round(math.Abs(v)))
}

func isFraction(x, y float64) bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 }
	frac := func(v float64) bool { return v != math.Trunc(v) }
	return in(x) && in(y) && (frac(x) || frac(y))
}

func clampGrid(v float64) int {
	r := int(math.Round(v))
	if r < 0 {
		return 0
	}
	if r > action.GridSize {
		return action.GridSize
	}
	return r
}

func withPoint(args map[string]any, x, y int) map[string]any {
	args[action.ArgX] = x
	args[action.ArgY] = y
	return args
}
