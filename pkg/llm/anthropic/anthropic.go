// Package anthropic implements the Claude provider.
//
// Claude is offered a single "computer" tool whose input carries an "action"
// discriminator (left_click, type, scroll, key, ...) and pixel coordinates
// as a [x, y] pair. A tool_use block in the reply is the proposed action;
// plain text is the final answer.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/logging"
)

const (
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 1024

	// ToolName is the name of the browser tool offered to the model.
	ToolName = "computer"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("anthropic")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}

// Provider implements llm.Provider for Claude.
type Provider struct {
	client    *anthropic.Client
	model     string
	baseURL   string
	maxTokens int64
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

func WithMaxTokens(n int64) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// NewProvider creates a Claude provider. An empty apiKey falls back to
// ANTHROPIC_API_KEY, and an unset base URL to ANTHROPIC_BASE_URL.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	p := &Provider{model: DefaultModel, maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(p)
	}
	if p.baseURL == "" {
		p.baseURL = os.Getenv("ANTHROPIC_BASE_URL")
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(p.baseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	p.client = &client
	return p, nil
}

func (p *Provider) ID() llm.ID { return llm.Anthropic }

func (p *Provider) Model() string { return p.model }

// Next sends the screenshot and prompt and interprets the reply.
func (p *Provider) Next(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}

	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: llm.SystemInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(req.Screenshot)),
				anthropic.NewTextBlock(req.Prompt),
			),
		},
		Tools: []anthropic.ToolUnionParam{{OfTool: computerTool(req.Viewport)}},
	})
	if err != nil {
		return nil, wrapError(err)
	}

	if response.StopReason == "refusal" {
		reason := collectText(response)
		if reason == "" {
			reason = "the model declined to continue"
		}
		return &llm.Response{Refusal: reason}, nil
	}

	for _, block := range response.Content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		if toolUse.Name != ToolName {
			return nil, &llm.ResponseError{Provider: llm.Anthropic, Err: fmt.Errorf("unexpected tool %q", toolUse.Name)}
		}
		var input map[string]any
		if err := json.Unmarshal(toolUse.Input, &input); err != nil {
			return nil, &llm.ResponseError{Provider: llm.Anthropic, Err: fmt.Errorf("invalid tool input: %w", err)}
		}
		debugLog.Debugf("tool_use %s: %v", toolUse.ID, input["action"])
		return &llm.Response{Payload: &llm.Payload{
			Provider:  llm.Anthropic,
			Anthropic: &llm.ToolUse{ID: toolUse.ID, Name: toolUse.Name, Input: input},
			Display:   req.Viewport,
		}}, nil
	}

	if text := collectText(response); text != "" {
		return &llm.Response{Text: text}, nil
	}
	return nil, &llm.ResponseError{
		Provider: llm.Anthropic,
		Err:      fmt.Errorf("response had neither a tool call nor text (stop reason %q)", response.StopReason),
	}
}

func collectText(response *anthropic.Message) string {
	var parts []string
	for _, block := range response.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func computerTool(display llm.Viewport) *anthropic.ToolParam {
	return &anthropic.ToolParam{
		Name: ToolName,
		Description: anthropic.String(fmt.Sprintf(
			"Control the web browser. The screen is %dx%d pixels; coordinates are [x, y] pixels from the top-left corner.",
			display.Width, display.Height)),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: map[string]interface{}{
				"action": map[string]interface{}{
					"type": "string",
					"enum": []string{
						"left_click", "right_click", "double_click", "mouse_move", "type", "key",
						"scroll", "left_click_drag", "wait", "navigate", "go_back", "go_forward",
					},
				},
				"coordinate":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}, "description": "[x, y] target in pixels"},
				"start_coordinate": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "integer"}, "description": "[x, y] drag start in pixels"},
				"text":             map[string]interface{}{"type": "string", "description": "Text to type, or key combination such as ctrl+l for key"},
				"url":              map[string]interface{}{"type": "string", "description": llm.NavigateDescription},
				"scroll_direction": map[string]interface{}{"type": "string", "enum": []string{"up", "down", "left", "right"}},
				"scroll_amount":    map[string]interface{}{"type": "integer", "description": "Number of wheel notches"},
				"duration":         map[string]interface{}{"type": "number", "description": "Seconds to wait"},
			},
			Required: []string{"action"},
		},
	}
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.ResponseError{Provider: llm.Anthropic, StatusCode: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &llm.ResponseError{Provider: llm.Anthropic, Err: err}
}
