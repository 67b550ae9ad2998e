// Package openai implements the OpenAI computer-use provider.
//
// It talks to the Responses API with the computer_use_preview tool. The
// model answers with a computer_call item whose nested action object names
// the operation ("click", "type", "scroll", ...) and carries pixel
// coordinates. A navigate function tool is offered next to it since the
// computer tool has no way to open a URL directly.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("computer-use-preview"),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	resp, err := provider.Next(ctx, req)
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/logging"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the computer-use model.
	DefaultModel = "computer-use-preview"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("openai")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}

// Provider implements llm.Provider for OpenAI computer use.
type Provider struct {
	client  openai.Client
	apiKey  string
	baseURL string
	model   string
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL sets a custom base URL, e.g. an Azure deployment or a proxy.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// NewProvider creates an OpenAI provider.
//
// If apiKey is empty, OPENAI_API_KEY is used. If no base URL option is
// given, OPENAI_BASE_URL is checked before falling back to DefaultBaseURL.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = envBaseURL
		}
	}

	p.client = openai.NewClient(
		option.WithAPIKey(p.apiKey),
		option.WithBaseURL(strings.TrimSuffix(p.baseURL, "/")+"/"),
		option.WithMaxRetries(0),
	)
	return p, nil
}

func (p *Provider) ID() llm.ID { return llm.OpenAI }

func (p *Provider) Model() string { return p.model }

// GetBaseURL returns the base URL being used for API requests.
func (p *Provider) GetBaseURL() string { return p.baseURL }

// Next sends one Responses API request with the screenshot attached.
func (p *Provider) Next(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	body := p.buildRequest(req)

	var out responseBody
	if err := p.client.Post(ctx, "responses", body, &out); err != nil {
		return nil, wrapError(err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return nil, &llm.ResponseError{Provider: llm.OpenAI, Err: errors.New(out.Error.Message)}
	}

	resp, err := parseOutput(out.Output, req.Viewport)
	if err != nil {
		return nil, &llm.ResponseError{Provider: llm.OpenAI, Err: err}
	}
	debugLog.Debugf("response %s: action=%v text=%d refusal=%q", out.ID, resp.HasAction(), len(resp.Text), resp.Refusal)
	return resp, nil
}

func (p *Provider) buildRequest(req *llm.Request) map[string]any {
	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	image := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Screenshot)

	return map[string]any{
		"model":        p.model,
		"instructions": llm.SystemInstruction,
		"truncation":   "auto",
		"tools": []map[string]any{
			{
				"type":           "computer_use_preview",
				"display_width":  req.Viewport.Width,
				"display_height": req.Viewport.Height,
				"environment":    "browser",
			},
			{
				"type":        "function",
				"name":        "navigate",
				"description": llm.NavigateDescription,
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"url": map[string]any{"type": "string", "description": "Absolute http or https URL"},
					},
					"required":             []string{"url"},
					"additionalProperties": false,
				},
				"strict": true,
			},
		},
		"input": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "input_text", "text": req.Prompt},
					{"type": "input_image", "image_url": image},
				},
			},
		},
	}
}

type responseBody struct {
	ID     string       `json:"id"`
	Output []outputItem `json:"output"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type outputItem struct {
	Type                string          `json:"type"`
	CallID              string          `json:"call_id"`
	Name                string          `json:"name"`
	Arguments           string          `json:"arguments"`
	Action              map[string]any  `json:"action"`
	PendingSafetyChecks []safetyCheck   `json:"pending_safety_checks"`
	Content             []outputContent `json:"content"`
}

type safetyCheck struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type outputContent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Refusal string `json:"refusal"`
}

// parseOutput picks the first proposed action from the output items. With
// no action, message text becomes the final answer.
func parseOutput(items []outputItem, display llm.Viewport) (*llm.Response, error) {
	var text, refusal []string

	for _, item := range items {
		switch item.Type {
		case "computer_call":
			if len(item.PendingSafetyChecks) > 0 {
				return &llm.Response{Refusal: describeChecks(item.PendingSafetyChecks)}, nil
			}
			if item.Action == nil {
				return nil, fmt.Errorf("computer_call %s has no action", item.CallID)
			}
			return &llm.Response{Payload: &llm.Payload{
				Provider: llm.OpenAI,
				OpenAI:   &llm.ComputerCall{CallID: item.CallID, Action: item.Action},
				Display:  display,
			}}, nil

		case "function_call":
			if item.Name != "navigate" {
				return nil, fmt.Errorf("unexpected function call %q", item.Name)
			}
			var args map[string]any
			if err := json.Unmarshal([]byte(item.Arguments), &args); err != nil {
				return nil, fmt.Errorf("invalid navigate arguments: %w", err)
			}
			if args == nil {
				args = map[string]any{}
			}
			args["type"] = "navigate"
			return &llm.Response{Payload: &llm.Payload{
				Provider: llm.OpenAI,
				OpenAI:   &llm.ComputerCall{CallID: item.CallID, Action: args},
				Display:  display,
			}}, nil

		case "message":
			for _, c := range item.Content {
				switch c.Type {
				case "output_text":
					text = append(text, c.Text)
				case "refusal":
					refusal = append(refusal, c.Refusal)
				}
			}
		}
	}

	if len(refusal) > 0 {
		return &llm.Response{Refusal: strings.Join(refusal, "\n")}, nil
	}
	if t := strings.TrimSpace(strings.Join(text, "\n")); t != "" {
		return &llm.Response{Text: t}, nil
	}
	return nil, errors.New("response contained neither an action nor text")
}

func describeChecks(checks []safetyCheck) string {
	parts := make([]string, 0, len(checks))
	for _, c := range checks {
		if c.Message != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", c.Code, c.Message))
		} else {
			parts = append(parts, c.Code)
		}
	}
	return "safety check requires confirmation: " + strings.Join(parts, "; ")
}

func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llm.ResponseError{Provider: llm.OpenAI, StatusCode: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &llm.ResponseError{Provider: llm.OpenAI, Err: err}
}
