// Package llm defines how the run loop talks to a model provider.
//
// Each provider takes the goal, the current screenshot and a prompt, and
// answers with exactly one of: a proposed browser action in its own native
// shape, final text, or a safety refusal. The native shapes are carried in
// Payload, a union keyed by provider ID, and turned into canonical actions by
// package normalize. Nothing above this package sees provider wire formats.
//
// Example usage:
//
//	provider, err := gemini.NewProvider(ctx, os.Getenv("GEMINI_API_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := provider.Next(ctx, &llm.Request{
//	    Goal:       "Find the Go release notes",
//	    Prompt:     prompt,
//	    URL:        driver.CurrentURL(),
//	    Screenshot: png,
//	    MIMEType:   "image/png",
//	    Viewport:   llm.Viewport{Width: 1440, Height: 900},
//	})
package llm

import (
	"context"
	"fmt"
	"strings"
)

// ID names a supported provider.
type ID string

const (
	Gemini    ID = "gemini"
	OpenAI    ID = "openai"
	Anthropic ID = "anthropic"
)

// IDs lists the supported providers.
func IDs() []ID {
	return []ID{Gemini, OpenAI, Anthropic}
}

// ParseID validates a provider name.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	switch id {
	case Gemini, OpenAI, Anthropic:
		return id, nil
	case "google":
		return Gemini, nil
	case "claude":
		return Anthropic, nil
	default:
		return "", fmt.Errorf("unknown provider %q (supported: gemini, openai, anthropic)", s)
	}
}

// InferID guesses the provider from a model name.
func InferID(model string) (ID, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case m == "":
		return "", false
	case strings.HasPrefix(m, "gemini"), strings.HasPrefix(m, "models/gemini"):
		return Gemini, true
	case strings.HasPrefix(m, "claude"):
		return Anthropic, true
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "computer-use"),
		strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return OpenAI, true
	default:
		return "", false
	}
}

// Viewport is the screenshot size in pixels. Providers that speak pixels
// use it to size their tools and to convert coordinates.
type Viewport struct {
	Width  int
	Height int
}

// Request is one model turn.
type Request struct {
	Goal       string
	Prompt     string
	URL        string
	Screenshot []byte
	MIMEType   string
	Viewport   Viewport
}

// Response is the model's answer. Exactly one of Payload, Text and Refusal
// is set.
type Response struct {
	Payload *Payload
	Text    string
	Refusal string
}

// HasAction reports whether the model proposed an action.
func (r *Response) HasAction() bool {
	return r != nil && r.Payload != nil
}

// FunctionCall is a directly named function call with flat arguments.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// ComputerCall is a call whose action is a nested object discriminated by
// its "type" field.
type ComputerCall struct {
	CallID string
	Action map[string]any
}

// ToolUse is a tool-use content block; the "action" field of Input is the
// discriminator.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// Payload is a provider-native proposed action. Provider selects which of
// the branch fields is set. Display is the pixel space the coordinates in
// the pixel-based branches refer to.
type Payload struct {
	Provider  ID
	Gemini    *FunctionCall
	OpenAI    *ComputerCall
	Anthropic *ToolUse
	Display   Viewport
}

// Name returns the provider-native action name, for logging.
func (p *Payload) Name() string {
	switch {
	case p == nil:
		return ""
	case p.Gemini != nil:
		return p.Gemini.Name
	case p.OpenAI != nil:
		s, _ := p.OpenAI.Action["type"].(string)
		return s
	case p.Anthropic != nil:
		s, _ := p.Anthropic.Input["action"].(string)
		return s
	default:
		return ""
	}
}

// Provider is a model provider able to drive the browser.
type Provider interface {
	ID() ID
	Model() string
	// Next asks the model for the next step. API failures are returned as
	// *ResponseError.
	Next(ctx context.Context, req *Request) (*Response, error)
}

// ResponseError is a failure reported by the provider API itself.
type ResponseError struct {
	Provider   ID
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s API error: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error
func (e *ResponseError) Unwrap() error {
	return e.Err
}
