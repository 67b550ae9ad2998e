package gemini

import (
	"google.golang.org/genai"

	"github.com/entrhq/browserpilot/pkg/llm"
)

func coord(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeInteger, Description: desc + " on a 0-999 grid"}
}

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func boolean(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean, Description: desc}
}

func object(required []string, props map[string]*genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

var direction = &genai.Schema{
	Type: genai.TypeString,
	Enum: []string{"up", "down", "left", "right"},
}

// functionDeclarations lists the browser functions offered to the model.
func functionDeclarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{Name: "open_web_browser", Description: "Bring the browser to the foreground."},
		{
			Name:        "navigate",
			Description: llm.NavigateDescription,
			Parameters:  object([]string{"url"}, map[string]*genai.Schema{"url": str("Absolute http or https URL")}),
		},
		{
			Name:        "search",
			Description: "Open a search engine start page.",
		},
		{
			Name:        "click_at",
			Description: "Click at a point on the page.",
			Parameters:  object([]string{"x", "y"}, map[string]*genai.Schema{"x": coord("x"), "y": coord("y")}),
		},
		{
			Name:        "hover_at",
			Description: "Move the mouse to a point on the page.",
			Parameters:  object([]string{"x", "y"}, map[string]*genai.Schema{"x": coord("x"), "y": coord("y")}),
		},
		{
			Name:        "type_text_at",
			Description: "Click at a point and type text.",
			Parameters: object([]string{"x", "y", "text"}, map[string]*genai.Schema{
				"x":                   coord("x"),
				"y":                   coord("y"),
				"text":                str("Text to type"),
				"press_enter":         boolean("Press Enter after typing"),
				"clear_before_typing": boolean("Clear the field first"),
			}),
		},
		{
			Name:        "key_combination",
			Description: "Press a key or key combination such as \"Control+L\" or \"Enter\".",
			Parameters:  object([]string{"keys"}, map[string]*genai.Schema{"keys": str("Keys joined with +")}),
		},
		{
			Name:        "scroll_document",
			Description: "Scroll the whole page.",
			Parameters:  object([]string{"direction"}, map[string]*genai.Schema{"direction": direction}),
		},
		{
			Name:        "scroll_at",
			Description: "Scroll the element under a point.",
			Parameters: object([]string{"x", "y", "direction"}, map[string]*genai.Schema{
				"x":         coord("x"),
				"y":         coord("y"),
				"direction": direction,
				"magnitude": {Type: genai.TypeInteger, Description: "Distance on the 0-999 grid, default 800"},
			}),
		},
		{
			Name:        "drag_and_drop",
			Description: "Drag from one point to another.",
			Parameters: object([]string{"x", "y", "destination_x", "destination_y"}, map[string]*genai.Schema{
				"x":             coord("start x"),
				"y":             coord("start y"),
				"destination_x": coord("destination x"),
				"destination_y": coord("destination y"),
			}),
		},
		{Name: "go_back", Description: "Go back in history."},
		{Name: "go_forward", Description: "Go forward in history."},
		{Name: "wait_5_seconds", Description: "Wait for the page to settle."},
	}
}
