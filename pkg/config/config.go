// Package config loads browserpilot settings and resolves provider
// credentials.
//
// Settings live in a YAML file (default ~/.browserpilot/config.yaml). Provider
// credentials and models are resolved with the precedence
//
//	explicit value > environment > config file > OS keyring > defaults
//
// so a one-off flag always wins and the keyring is only consulted when
// nothing else supplies an API key.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/events"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/safety"
)

const (
	// DirName is the per-user directory under the home directory.
	DirName = ".browserpilot"
	// FileName is the config file inside DirName.
	FileName = "config.yaml"

	DefaultMaxSteps  = 15
	DefaultStepDelay = time.Second
	DefaultAddr      = "127.0.0.1:8765"
)

// Config is the on-disk configuration.
type Config struct {
	// DefaultProvider is used when neither the caller nor the model name
	// selects a provider.
	DefaultProvider string `yaml:"default_provider"`

	// Providers holds per-provider settings keyed by provider ID.
	Providers map[string]ProviderSettings `yaml:"providers,omitempty"`

	Run     RunSettings     `yaml:"run"`
	Browser BrowserSettings `yaml:"browser"`
	Safety  SafetySettings  `yaml:"safety"`
	Events  EventSettings   `yaml:"events"`
	Server  ServerSettings  `yaml:"server"`
	Log     LogSettings     `yaml:"log"`
}

// ProviderSettings configures one model provider. APIKey in the file is
// supported but the keyring is the better home for it.
type ProviderSettings struct {
	Model   string `yaml:"model,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// RunSettings are the run loop defaults.
type RunSettings struct {
	MaxSteps      int           `yaml:"max_steps"`
	StepDelay     time.Duration `yaml:"step_delay"`
	CheckpointDir string        `yaml:"checkpoint_dir"`
}

// BrowserSettings configure the Playwright session manager.
type BrowserSettings struct {
	Headless    bool             `yaml:"headless"`
	Viewport    browser.Viewport `yaml:"viewport"`
	TimeoutMs   float64          `yaml:"timeout_ms"`
	MaxSessions int              `yaml:"max_sessions"`
	IdleTimeout time.Duration    `yaml:"idle_timeout"`
}

// SafetySettings extend the built-in action safety rules.
type SafetySettings struct {
	// DeniedHosts are glob patterns; navigation to a matching host is
	// blocked.
	DeniedHosts []string `yaml:"denied_hosts,omitempty"`
}

// EventSettings select where progress notifications go besides the
// terminal.
type EventSettings struct {
	RedisURL string `yaml:"redis_url,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// ServerSettings configure `browserpilot serve`.
type ServerSettings struct {
	Addr string `yaml:"addr"`
}

// LogSettings configure the file logger.
type LogSettings struct {
	Level string `yaml:"level"`
}

// DefaultDir returns ~/.browserpilot.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// DefaultPath returns ~/.browserpilot/config.yaml.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.DefaultProvider == "" {
		c.DefaultProvider = string(llm.Gemini)
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderSettings{}
	}
	if c.Run.MaxSteps == 0 {
		c.Run.MaxSteps = DefaultMaxSteps
	}
	if c.Run.StepDelay == 0 {
		c.Run.StepDelay = DefaultStepDelay
	}
	if c.Run.CheckpointDir == "" {
		if dir, err := DefaultDir(); err == nil {
			c.Run.CheckpointDir = filepath.Join(dir, "sessions")
		} else {
			c.Run.CheckpointDir = filepath.Join(os.TempDir(), "browserpilot", "sessions")
		}
	}
	if c.Browser.Viewport.Width == 0 {
		c.Browser.Viewport.Width = browser.DefaultViewportWidth
	}
	if c.Browser.Viewport.Height == 0 {
		c.Browser.Viewport.Height = browser.DefaultViewportHeight
	}
	if c.Browser.TimeoutMs == 0 {
		c.Browser.TimeoutMs = browser.DefaultTimeout
	}
	if c.Browser.MaxSessions == 0 {
		c.Browser.MaxSessions = browser.DefaultMaxSessions
	}
	if c.Browser.IdleTimeout == 0 {
		c.Browser.IdleTimeout = browser.DefaultIdleTimeout * time.Second
	}
	if c.Events.Channel == "" {
		c.Events.Channel = events.DefaultChannel
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = logging.LevelInfo.String()
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := llm.ParseID(c.DefaultProvider); err != nil {
		errs = append(errs, fmt.Errorf("default_provider: %w", err))
	}
	for id := range c.Providers {
		if _, err := llm.ParseID(id); err != nil {
			errs = append(errs, fmt.Errorf("providers: %w", err))
		}
	}
	if c.Run.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("run.max_steps must not be negative, got %d", c.Run.MaxSteps))
	}
	if c.Run.StepDelay < 0 {
		errs = append(errs, fmt.Errorf("run.step_delay must not be negative, got %s", c.Run.StepDelay))
	}
	if c.Browser.Viewport.Width < 0 || c.Browser.Viewport.Height < 0 {
		errs = append(errs, errors.New("browser.viewport must not be negative"))
	}
	if _, err := safety.NewClassifier(c.Safety.DeniedHosts); err != nil {
		errs = append(errs, fmt.Errorf("safety.denied_hosts: %w", err))
	}
	if c.Events.RedisURL != "" {
		if u, err := url.Parse(c.Events.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, errors.New("events.redis_url must be a redis:// or rediss:// URL"))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// Provider returns the settings for id, normalizing aliases such as
// "claude" in the file.
func (c *Config) Provider(id llm.ID) ProviderSettings {
	for key, settings := range c.Providers {
		if parsed, err := llm.ParseID(key); err == nil && parsed == id {
			return settings
		}
	}
	return ProviderSettings{}
}

// SetProvider replaces the settings for id.
func (c *Config) SetProvider(id llm.ID, settings ProviderSettings) {
	if c.Providers == nil {
		c.Providers = map[string]ProviderSettings{}
	}
	for key := range c.Providers {
		if parsed, err := llm.ParseID(key); err == nil && parsed == id && key != string(id) {
			delete(c.Providers, key)
		}
	}
	c.Providers[strings.ToLower(string(id))] = settings
}
