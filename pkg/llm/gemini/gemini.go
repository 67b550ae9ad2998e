// Package gemini implements the Gemini provider.
//
// Gemini proposes actions as directly named function calls (click_at,
// type_text_at, scroll_document, ...) with flat arguments. Coordinates are
// on a 0-999 grid relative to the screenshot, so they need no pixel
// conversion.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/logging"
)

const DefaultModel = "gemini-2.5-computer-use-preview-10-2025"

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("gemini")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}

// Provider implements llm.Provider for Gemini.
type Provider struct {
	client  *genai.Client
	model   string
	baseURL string
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = strings.TrimPrefix(model, "models/")
		}
	}
}

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// NewProvider creates a Gemini provider. An empty apiKey falls back to
// GEMINI_API_KEY, then GOOGLE_API_KEY; an unset base URL to
// GEMINI_BASE_URL.
func NewProvider(ctx context.Context, apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (provide via parameter, GEMINI_API_KEY or GOOGLE_API_KEY)")
	}

	p := &Provider{model: DefaultModel}
	for _, opt := range opts {
		opt(p)
	}
	if p.baseURL == "" {
		p.baseURL = os.Getenv("GEMINI_BASE_URL")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	p.client = client
	return p, nil
}

func (p *Provider) ID() llm.ID { return llm.Gemini }

func (p *Provider) Model() string { return p.model }

// Next sends the screenshot and prompt with the browser function
// declarations and interprets the first candidate.
func (p *Provider) Next(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: req.Prompt},
			{InlineData: &genai.Blob{MIMEType: mime, Data: req.Screenshot}},
		},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: llm.SystemInstruction}}},
		Tools:             []*genai.Tool{{FunctionDeclarations: functionDeclarations()}},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}
	return interpret(resp, req.Viewport)
}

func interpret(resp *genai.GenerateContentResponse, display llm.Viewport) (*llm.Response, error) {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		reason := fb.BlockReasonMessage
		if reason == "" {
			reason = string(fb.BlockReason)
		}
		return &llm.Response{Refusal: "prompt blocked: " + reason}, nil
	}
	if len(resp.Candidates) == 0 {
		return nil, &llm.ResponseError{Provider: llm.Gemini, Err: errors.New("response has no candidates")}
	}

	candidate := resp.Candidates[0]
	if blockedFinish(candidate.FinishReason) {
		reason := candidate.FinishMessage
		if reason == "" {
			reason = string(candidate.FinishReason)
		}
		return &llm.Response{Refusal: "response blocked: " + reason}, nil
	}

	var text []string
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if fc := part.FunctionCall; fc != nil {
				if refusal := safetyRefusal(fc.Args); refusal != "" {
					return &llm.Response{Refusal: refusal}, nil
				}
				debugLog.Debugf("function call %s", fc.Name)
				return &llm.Response{Payload: &llm.Payload{
					Provider: llm.Gemini,
					Gemini:   &llm.FunctionCall{Name: fc.Name, Args: withoutSafety(fc.Args)},
					Display:  display,
				}}, nil
			}
			if part.Text != "" && !part.Thought {
				text = append(text, part.Text)
			}
		}
	}

	if t := strings.TrimSpace(strings.Join(text, "\n")); t != "" {
		return &llm.Response{Text: t}, nil
	}
	return nil, &llm.ResponseError{
		Provider: llm.Gemini,
		Err:      fmt.Errorf("candidate had neither a function call nor text (finish reason %q)", candidate.FinishReason),
	}
}

func blockedFinish(reason genai.FinishReason) bool {
	switch reason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent,
		genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return true
	}
	return false
}

// safetyRefusal reports a safety_decision that asks for human confirmation.
func safetyRefusal(args map[string]any) string {
	decision, ok := args["safety_decision"].(map[string]any)
	if !ok {
		return ""
	}
	if d, _ := decision["decision"].(string); d != "require_confirmation" {
		return ""
	}
	explanation, _ := decision["explanation"].(string)
	if explanation == "" {
		explanation = "the model requires human confirmation"
	}
	return "safety confirmation required: " + explanation
}

func withoutSafety(args map[string]any) map[string]any {
	if _, ok := args["safety_decision"]; !ok {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if k != "safety_decision" {
			out[k] = v
		}
	}
	return out
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.ResponseError{Provider: llm.Gemini, StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &llm.ResponseError{Provider: llm.Gemini, StatusCode: apiErrPtr.Code, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &llm.ResponseError{Provider: llm.Gemini, Err: err}
}
