package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/entrhq/browserpilot/pkg/llm"
)

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.DefaultProvider != "gemini" {
			t.Errorf("Expected default provider gemini, got %s", cfg.DefaultProvider)
		}
		if cfg.Run.MaxSteps != DefaultMaxSteps {
			t.Errorf("Expected max steps %d, got %d", DefaultMaxSteps, cfg.Run.MaxSteps)
		}
		if cfg.Run.StepDelay != time.Second {
			t.Errorf("Expected step delay 1s, got %s", cfg.Run.StepDelay)
		}
		if cfg.Browser.Viewport.Width != 1440 || cfg.Browser.Viewport.Height != 900 {
			t.Errorf("Unexpected viewport %+v", cfg.Browser.Viewport)
		}
		if cfg.Server.Addr != DefaultAddr {
			t.Errorf("Expected addr %s, got %s", DefaultAddr, cfg.Server.Addr)
		}
	})

	t.Run("parses yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `default_provider: claude
providers:
  anthropic:
    model: claude-opus-4-1
    base_url: https://proxy.example.com
run:
  max_steps: 30
  step_delay: 250ms
  checkpoint_dir: /var/lib/browserpilot
browser:
  headless: true
  viewport:
    width: 1280
    height: 720
safety:
  denied_hosts:
    - "*.bank.example"
events:
  redis_url: redis://localhost:6379/0
log:
  level: debug
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got := cfg.Provider(llm.Anthropic).Model; got != "claude-opus-4-1" {
			t.Errorf("Expected anthropic model, got %q", got)
		}
		if cfg.Run.MaxSteps != 30 || cfg.Run.StepDelay != 250*time.Millisecond {
			t.Errorf("Unexpected run settings %+v", cfg.Run)
		}
		if !cfg.Browser.Headless || cfg.Browser.Viewport.Width != 1280 {
			t.Errorf("Unexpected browser settings %+v", cfg.Browser)
		}
		if len(cfg.Safety.DeniedHosts) != 1 {
			t.Errorf("Expected one denied host, got %v", cfg.Safety.DeniedHosts)
		}
		if cfg.Events.Channel == "" {
			t.Error("Expected default events channel")
		}
	})

	t.Run("rejects invalid settings", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `default_provider: mistral
log:
  level: loud
safety:
  denied_hosts: ["[unterminated"]
events:
  redis_url: http://localhost
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}

		_, err := Load(path)
		if err == nil {
			t.Fatal("Expected validation error")
		}
		for _, want := range []string{"default_provider", "log.level", "safety.denied_hosts", "events.redis_url"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("Expected error to mention %s, got: %v", want, err)
			}
		}
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("run: [not, a, map"), 0o600); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatal("Expected decode error")
		}
	})
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.SetProvider(llm.OpenAI, ProviderSettings{Model: "computer-use-preview"})
	cfg.Run.StepDelay = 2 * time.Second

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Error("Temp file should not remain after save")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Provider(llm.OpenAI).Model != "computer-use-preview" {
		t.Errorf("Provider settings not persisted: %+v", loaded.Providers)
	}
	if loaded.Run.StepDelay != 2*time.Second {
		t.Errorf("Expected step delay 2s, got %s", loaded.Run.StepDelay)
	}
}

func TestSetProvider_ReplacesAlias(t *testing.T) {
	cfg := Default()
	cfg.Providers["claude"] = ProviderSettings{Model: "old"}

	cfg.SetProvider(llm.Anthropic, ProviderSettings{Model: "new"})

	if _, ok := cfg.Providers["claude"]; ok {
		t.Error("Alias key should be replaced")
	}
	if cfg.Provider(llm.Anthropic).Model != "new" {
		t.Errorf("Expected new model, got %+v", cfg.Providers)
	}
}
