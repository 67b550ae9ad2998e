package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewProvider("test-key", WithBaseURL(server.URL))
	require.NoError(t, err)
	return p
}

func message(stopReason, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5-20250929",
			"stop_reason": "`+stopReason+`",
			"content": `+content+`,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}
}

var testRequest = &llm.Request{
	Prompt:     "Goal: find docs",
	Screenshot: []byte("png-bytes"),
	MIMEType:   "image/png",
	Viewport:   llm.Viewport{Width: 1280, Height: 800},
}

func TestNext_SendsScreenshotAndTool(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		message("end_turn", `[{"type":"text","text":"All done."}]`)(w, r)
	})

	_, err := p.Next(context.Background(), testRequest)
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, body["model"])
	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, ToolName, tools[0].(map[string]any)["name"])

	msg := body["messages"].([]any)[0].(map[string]any)
	content := msg["content"].([]any)
	assert.Equal(t, "image", content[0].(map[string]any)["type"])
	assert.Equal(t, "text", content[1].(map[string]any)["type"])
}

func TestNext_ToolUse(t *testing.T) {
	p := newTestProvider(t, message("tool_use", `[
		{"type":"text","text":"Clicking the search box."},
		{"type":"tool_use","id":"toolu_1","name":"computer","input":{"action":"left_click","coordinate":[640,400]}}
	]`))

	resp, err := p.Next(context.Background(), testRequest)
	require.NoError(t, err)
	require.True(t, resp.HasAction())

	payload := resp.Payload
	assert.Equal(t, llm.Anthropic, payload.Provider)
	assert.Equal(t, "toolu_1", payload.Anthropic.ID)
	assert.Equal(t, "left_click", payload.Anthropic.Input["action"])
	assert.Equal(t, []any{float64(640), float64(400)}, payload.Anthropic.Input["coordinate"])
	assert.Equal(t, llm.Viewport{Width: 1280, Height: 800}, payload.Display)
}

func TestNext_FinalText(t *testing.T) {
	p := newTestProvider(t, message("end_turn", `[{"type":"text","text":"Go 1.25 is the latest release."}]`))

	resp, err := p.Next(context.Background(), testRequest)
	require.NoError(t, err)
	assert.False(t, resp.HasAction())
	assert.Equal(t, "Go 1.25 is the latest release.", resp.Text)
}

func TestNext_Refusal(t *testing.T) {
	p := newTestProvider(t, message("refusal", `[]`))

	resp, err := p.Next(context.Background(), testRequest)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Refusal)
	assert.False(t, resp.HasAction())
}

func TestNext_UnknownTool(t *testing.T) {
	p := newTestProvider(t, message("tool_use", `[{"type":"tool_use","id":"toolu_2","name":"bash","input":{}}]`))

	_, err := p.Next(context.Background(), testRequest)
	var respErr *llm.ResponseError
	assert.ErrorAs(t, err, &respErr)
}

func TestNext_HTTPError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	})

	_, err := p.Next(context.Background(), testRequest)

	var respErr *llm.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, llm.Anthropic, respErr.Provider)
	assert.Equal(t, http.StatusUnauthorized, respErr.StatusCode)
}

func TestNewProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewProvider("")
	assert.Error(t, err)

	p, err := NewProvider("key", WithModel("claude-opus-4-1"), WithMaxTokens(2048))
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-1", p.Model())
	assert.Equal(t, llm.Anthropic, p.ID())
	assert.Equal(t, int64(2048), p.maxTokens)
}
