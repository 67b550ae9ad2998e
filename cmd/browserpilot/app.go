package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/entrhq/browserpilot/pkg/agent"
	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/events"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/metrics"
	"github.com/entrhq/browserpilot/pkg/safety"
)

// browserSessionName is the one browser session a process drives.
const browserSessionName = "main"

// app holds everything a command wires together from the config file.
type app struct {
	cfg         *config.Config
	resolver    *config.Resolver
	broadcaster *events.Broadcaster
	collector   *metrics.Collector
	redis       *events.RedisPublisher
	manager     *browser.SessionManager
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	levelName := cfg.Log.Level
	if flags.logLevel != "" {
		levelName = flags.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)

	a := &app{
		cfg:         cfg,
		resolver:    config.NewResolver(cfg, config.NewKeyringStore(config.KeyringService)),
		broadcaster: events.NewBroadcaster(),
		collector:   metrics.NewCollector(),
	}

	if cfg.Events.RedisURL != "" {
		pub, err := events.NewRedisPublisher(cfg.Events.RedisURL, events.WithChannel(cfg.Events.Channel))
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := pub.Ping(pingCtx); err != nil {
			// Progress still reaches the terminal; only the Redis copy is lost.
			fmt.Fprintf(os.Stderr, "warning: redis events disabled: %v\n", err)
			_ = pub.Close()
		} else {
			a.redis = pub
		}
	}
	return a, nil
}

// bus fans progress out to every configured sink.
func (a *app) bus() events.Bus {
	sinks := events.Multi{a.broadcaster, a.collector}
	if a.redis != nil {
		sinks = append(sinks, a.redis)
	}
	return sinks
}

// startBrowser starts Playwright and returns a driver for the process's
// browser session. The session itself starts on first use.
func (a *app) startBrowser(headless bool) (browser.Driver, error) {
	a.manager = browser.NewSessionManager()
	a.manager.SetMaxSessions(a.cfg.Browser.MaxSessions)
	a.manager.SetIdleTimeout(a.cfg.Browser.IdleTimeout)
	if err := a.manager.Initialize(); err != nil {
		return nil, err
	}
	viewport := a.cfg.Browser.Viewport
	return a.manager.Driver(browserSessionName, browser.SessionOptions{
		Headless: headless,
		Viewport: &viewport,
		Timeout:  a.cfg.Browser.TimeoutMs,
	}), nil
}

// newRunner builds a Runner for driver. sessionID scopes default checkpoint
// paths.
func (a *app) newRunner(driver browser.Driver, sessionID string) (*agent.Runner, error) {
	classifier, err := safety.NewClassifier(a.cfg.Safety.DeniedHosts)
	if err != nil {
		return nil, err
	}
	return agent.NewRunner(driver, a.resolver.NewProvider,
		agent.WithDefaultProvider(a.resolver.DefaultProvider()),
		agent.WithCheckpointDir(a.cfg.Run.CheckpointDir),
		agent.WithClassifier(classifier),
		agent.WithEventBus(a.bus()),
		agent.WithSessionID(sessionID),
		agent.WithStepDelay(a.cfg.Run.StepDelay),
	), nil
}

// runInput applies config defaults the invocation left unset.
func (a *app) runInput(in agent.Input) agent.Input {
	if in.MaxSteps == 0 {
		in.MaxSteps = a.cfg.Run.MaxSteps
	}
	return in
}

// configuredRunner applies config defaults to every invocation that
// arrives through an adapter.
type configuredRunner struct {
	runner *agent.Runner
	app    *app
}

func (r configuredRunner) Run(ctx context.Context, in agent.Input) (*agent.Result, error) {
	return r.runner.Run(ctx, r.app.runInput(in))
}

func (a *app) close() {
	a.broadcaster.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.manager != nil {
		if err := a.manager.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
}

// parseProvider validates a --provider flag early so typos fail before the
// browser starts.
func parseProvider(s string) error {
	if s == "" {
		return nil
	}
	_, err := llm.ParseID(s)
	return err
}
