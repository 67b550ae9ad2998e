// Package metrics exposes run activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/browserpilot/pkg/types"
)

const namespace = "browserpilot"

// Collector counts steps, blocks and checkpoint writes from the event bus,
// and run outcomes reported by the callers of a run.
type Collector struct {
	registry    *prometheus.Registry
	steps       *prometheus.CounterVec
	blocks      *prometheus.CounterVec
	checkpoints prometheus.Counter
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewCollector creates a collector on its own registry, including the Go
// runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Executed browser actions by canonical action name.",
		}, []string{"action"}),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Runs stopped by a safety or loop block, by kind.",
		}, []string{"kind"}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_saves_total",
			Help:      "Checkpoint writes.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	c.registry.MustRegister(
		c.steps, c.blocks, c.checkpoints, c.runs, c.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Publish implements events.Bus.
func (c *Collector) Publish(event *types.Event) {
	if event == nil {
		return
	}
	switch event.Type {
	case types.EventTypeRunProgress:
		if p := event.Progress; p != nil && p.Status == types.StatusRunning && p.Action != "" {
			c.steps.WithLabelValues(p.Action).Inc()
		}
	case types.EventTypeBlocked:
		if event.Blocked != nil {
			c.blocks.WithLabelValues(BlockKind(event.Blocked.Reason)).Inc()
		}
	case types.EventTypeCheckpointSaved:
		c.checkpoints.Inc()
	}
}

// ObserveRun records a finished run. outcome is the result status, or
// "error" for a failed invocation.
func (c *Collector) ObserveRun(outcome string, elapsed time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.duration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// BlockKind buckets a block reason into a low-cardinality label.
func BlockKind(reason string) string {
	r := strings.ToLower(reason)
	switch {
	case strings.HasPrefix(r, "authentication required"):
		return "auth"
	case strings.HasPrefix(r, "no navigation progress"):
		return "stalled"
	case strings.HasPrefix(r, "loop detected"):
		return "loop"
	case strings.HasPrefix(r, "scroll loop"):
		return "scroll_loop"
	case strings.HasPrefix(r, "model refused"):
		return "refusal"
	default:
		return "safety"
	}
}
