// Package http exposes browser runs over HTTP.
//
//	POST /v1/runs    run a goal; body is agent.Input, reply is agent.Response
//	GET  /v1/events  server-sent progress events (?sessionId=&type=)
//	GET  /healthz    liveness, plus open browser sessions when configured
//	GET  /metrics    Prometheus metrics, when a collector is configured
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/entrhq/browserpilot/pkg/agent"
	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/events"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/metrics"
	"github.com/entrhq/browserpilot/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("http")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}

// maxBodyBytes caps the size of a run request.
const maxBodyBytes = 1 << 20

// Runner is the part of agent.Runner the server needs.
type Runner interface {
	Run(ctx context.Context, in agent.Input) (*agent.Result, error)
}

// Server serves runs and their events.
type Server struct {
	runner    Runner
	events    *events.Broadcaster
	collector *metrics.Collector
	sessions  func() []browser.SessionInfo
	version   string
}

// Option configures a Server.
type Option func(*Server)

// WithEvents streams progress from b on /v1/events.
func WithEvents(b *events.Broadcaster) Option {
	return func(s *Server) {
		s.events = b
	}
}

// WithCollector records run outcomes in c and serves it on /metrics.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) {
		s.collector = c
	}
}

// WithSessions reports the browser sessions returned by list on /healthz.
func WithSessions(list func() []browser.SessionInfo) Option {
	return func(s *Server) {
		s.sessions = list
	}
}

func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewHandler creates the HTTP handler for runner.
func NewHandler(runner Runner, opts ...Option) http.Handler {
	s := &Server{runner: runner, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.CreateRun)
		if s.events != nil {
			r.Get("/events", s.SubscribeEvents)
		}
	})
	if s.collector != nil {
		r.Handle("/metrics", s.collector.Handler())
	}
	return r
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.version}
	if s.sessions != nil {
		resp.Sessions = s.sessions()
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status   string                `json:"status"`
	Version  string                `json:"version"`
	Sessions []browser.SessionInfo `json:"sessions,omitempty"`
}

// CreateRun handles POST /v1/runs. The request blocks until the run stops.
func (s *Server) CreateRun(w http.ResponseWriter, r *http.Request) {
	var in agent.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		debugLog.Warnf("invalid run request: %v", err)
		writeJSON(w, http.StatusBadRequest, agent.NewResponse(nil, fmt.Errorf("invalid request body: %w", err)))
		return
	}

	start := time.Now()
	res, err := s.runner.Run(r.Context(), in)
	if s.collector != nil {
		s.collector.ObserveRun(agent.Outcome(res, err), time.Since(start))
	}

	status := http.StatusOK
	switch {
	case errors.Is(err, agent.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		// The client went away; the status is never seen.
		status = http.StatusServiceUnavailable
	case err != nil:
		debugLog.Errorf("run failed: %v", err)
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, agent.NewResponse(res, err))
}

// SubscribeEvents handles GET /v1/events as a server-sent event stream.
// sessionId and type narrow the stream; type may be a comma-separated list.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	wanted := map[types.EventType]bool{}
	if raw := r.URL.Query().Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			wanted[types.EventType(strings.TrimSpace(t))] = true
		}
	}

	ch, unsubscribe := s.events.Subscribe(events.DefaultBufferSize)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if sessionID != "" && event.SessionID != sessionID {
				continue
			}
			if len(wanted) > 0 && !wanted[event.Type] {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				debugLog.Errorf("encode event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debugLog.Errorf("encode response: %v", err)
	}
}
