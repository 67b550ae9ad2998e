// Package mcp exposes browser runs as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"

	"github.com/entrhq/browserpilot/pkg/agent"
	"github.com/entrhq/browserpilot/pkg/checkpoint"
	"github.com/entrhq/browserpilot/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("mcp")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}

const (
	ToolRun        = "browser_run"
	ToolCheckpoint = "browser_checkpoint"
)

// Runner is the part of agent.Runner the server needs.
type Runner interface {
	Run(ctx context.Context, in agent.Input) (*agent.Result, error)
}

// Observer receives the outcome of every run. metrics.Collector implements
// it.
type Observer interface {
	ObserveRun(outcome string, elapsed time.Duration)
}

// Server wraps a Runner and exposes it as an MCP server.
type Server struct {
	runner        Runner
	store         checkpoint.Store
	checkpointDir string
	observer      Observer
	mcpServer     *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithCheckpoints lets browser_checkpoint read checkpoints from store,
// resolving session IDs under dir.
func WithCheckpoints(store checkpoint.Store, dir string) Option {
	return func(s *Server) {
		s.store = store
		s.checkpointDir = dir
	}
}

func WithObserver(o Observer) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// NewServer creates an MCP server named browserpilot at version.
func NewServer(runner Runner, version string, opts ...Option) *Server {
	s := &Server{
		runner: runner,
		store:  checkpoint.NewFileStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("browserpilot", strings.TrimSpace(version),
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying server, e.g. for SSE transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	runTool := mcp.NewTool(ToolRun,
		mcp.WithDescription("Drive a real browser toward a goal using a computer-use model. "+
			"Stops when the goal is reached, when a safety rule, login wall or loop blocks progress, "+
			"or when the step budget runs out. Progress is checkpointed after every step."),
		mcp.WithString("goal", mcp.Required(), mcp.Description("What the browser should accomplish")),
		mcp.WithString("startUrl", mcp.Description("Page to open before the first step")),
		mcp.WithNumber("maxSteps", mcp.Description("Step budget (default 15)")),
		mcp.WithString("model", mcp.Description("Model name; also selects the provider when provider is omitted")),
		mcp.WithString("provider", mcp.Description("gemini, openai or anthropic")),
		mcp.WithBoolean("resumeFromCheckpoint", mcp.Description("Continue an unfinished run with the same goal")),
		mcp.WithString("checkpointPath", mcp.Description("Checkpoint file to use instead of the session default")),
		mcp.WithOutputSchema[agent.Response](),
	)
	s.mcpServer.AddTool(runTool, s.handleRun)

	checkpointTool := mcp.NewTool(ToolCheckpoint,
		mcp.WithDescription("Read a stored run checkpoint by path or session ID."),
		mcp.WithString("path", mcp.Description("Checkpoint file path")),
		mcp.WithString("sessionId", mcp.Description("Session whose default checkpoint to read")),
	)
	s.mcpServer.AddTool(checkpointTool, s.handleCheckpoint)
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := decodeInput(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	start := time.Now()
	res, err := s.runner.Run(ctx, in)
	if s.observer != nil {
		s.observer.ObserveRun(agent.Outcome(res, err), time.Since(start))
	}
	if err != nil {
		debugLog.Errorf("%s failed: %v", ToolRun, err)
	}

	resp := agent.NewResponse(res, err)
	text, mErr := json.Marshal(resp)
	if mErr != nil {
		return nil, fmt.Errorf("encode response: %w", mErr)
	}
	result := mcp.NewToolResultStructured(resp, string(text))
	result.IsError = !resp.Success
	return result, nil
}

func (s *Server) handleCheckpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		sessionID, _ := args["sessionId"].(string)
		if sessionID == "" || s.checkpointDir == "" {
			return mcp.NewToolResultError("path or sessionId is required"), nil
		}
		path = checkpoint.DefaultPath(s.checkpointDir, sessionID)
	}

	cp := s.store.Load(path)
	if cp == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no readable checkpoint at %s", path)), nil
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// decodeInput maps tool arguments onto agent.Input. Numbers arrive as
// float64 and booleans may arrive as strings from some clients.
func decodeInput(args map[string]any) (agent.Input, error) {
	var in agent.Input
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &in,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return in, err
	}
	if err := dec.Decode(args); err != nil {
		return in, err
	}
	return in, nil
}
