package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/entrhq/browserpilot/pkg/agent"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/llm/anthropic"
	"github.com/entrhq/browserpilot/pkg/llm/gemini"
	"github.com/entrhq/browserpilot/pkg/llm/openai"
)

// ErrMissingCredentials is returned when no API key can be resolved for the
// selected provider.
var ErrMissingCredentials = fmt.Errorf("%w: missing credentials", agent.ErrConfiguration)

var (
	apiKeyEnv = map[llm.ID][]string{
		llm.Gemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		llm.OpenAI:    {"OPENAI_API_KEY"},
		llm.Anthropic: {"ANTHROPIC_API_KEY"},
	}
	baseURLEnv = map[llm.ID]string{
		llm.Gemini:    "GEMINI_BASE_URL",
		llm.OpenAI:    "OPENAI_BASE_URL",
		llm.Anthropic: "ANTHROPIC_BASE_URL",
	}
	modelEnv = map[llm.ID]string{
		llm.Gemini:    "GEMINI_MODEL",
		llm.OpenAI:    "OPENAI_MODEL",
		llm.Anthropic: "ANTHROPIC_MODEL",
	}
	defaultModels = map[llm.ID]string{
		llm.Gemini:    gemini.DefaultModel,
		llm.OpenAI:    openai.DefaultModel,
		llm.Anthropic: anthropic.DefaultModel,
	}
)

// Resolved is the final provider configuration after precedence is applied.
type Resolved struct {
	Provider llm.ID
	Model    string
	APIKey   string
	BaseURL  string
}

// Resolver resolves provider credentials and models with the precedence
// explicit > environment > config file > keyring > defaults.
type Resolver struct {
	cfg    *Config
	creds  Credentials
	getenv func(string) string
}

// NewResolver creates a resolver. cfg and creds may be nil.
func NewResolver(cfg *Config, creds Credentials) *Resolver {
	if cfg == nil {
		cfg = Default()
	}
	return &Resolver{cfg: cfg, creds: creds, getenv: os.Getenv}
}

// Resolve determines the model, API key and base URL for id. explicitModel
// and explicitKey win over every other source when set.
func (r *Resolver) Resolve(id llm.ID, explicitModel, explicitKey string) (Resolved, error) {
	if _, ok := defaultModels[id]; !ok {
		return Resolved{}, fmt.Errorf("%w: unknown provider %q", agent.ErrConfiguration, id)
	}
	file := r.cfg.Provider(id)

	res := Resolved{Provider: id}
	res.Model = firstNonEmpty(explicitModel, r.getenv(modelEnv[id]), file.Model, defaultModels[id])
	res.BaseURL = firstNonEmpty(r.getenv(baseURLEnv[id]), file.BaseURL)

	res.APIKey = explicitKey
	for _, name := range apiKeyEnv[id] {
		res.APIKey = firstNonEmpty(res.APIKey, r.getenv(name))
	}
	res.APIKey = firstNonEmpty(res.APIKey, file.APIKey)
	if res.APIKey == "" && r.creds != nil {
		key, err := r.creds.GetKey(string(id))
		switch {
		case err == nil:
			res.APIKey = key
		case !errors.Is(err, ErrKeyNotFound):
			debugLog.Warnf("keyring lookup for %s failed: %v", id, err)
		}
	}

	if res.APIKey == "" {
		return res, fmt.Errorf("%w for %s: set %s, add providers.%s.api_key to the config file, or run `browserpilot auth set %s`",
			ErrMissingCredentials, id, apiKeyEnv[id][0], id, id)
	}
	return res, nil
}

// NewProvider builds the provider for id using the resolved configuration.
// Its signature matches agent.ProviderFactory.
func (r *Resolver) NewProvider(ctx context.Context, id llm.ID, model string) (llm.Provider, error) {
	res, err := r.Resolve(id, model, "")
	if err != nil {
		return nil, err
	}
	debugLog.Infof("using %s provider with model %s", id, res.Model)

	var provider llm.Provider
	switch id {
	case llm.Gemini:
		opts := []gemini.ProviderOption{gemini.WithModel(res.Model)}
		if res.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(res.BaseURL))
		}
		provider, err = gemini.NewProvider(ctx, res.APIKey, opts...)
	case llm.OpenAI:
		opts := []openai.ProviderOption{openai.WithModel(res.Model)}
		if res.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(res.BaseURL))
		}
		provider, err = openai.NewProvider(res.APIKey, opts...)
	case llm.Anthropic:
		opts := []anthropic.ProviderOption{anthropic.WithModel(res.Model)}
		if res.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(res.BaseURL))
		}
		provider, err = anthropic.NewProvider(res.APIKey, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s provider: %v", agent.ErrConfiguration, id, err)
	}
	return provider, nil
}

// DefaultProvider returns the configured default provider.
func (r *Resolver) DefaultProvider() llm.ID {
	id, err := llm.ParseID(r.cfg.DefaultProvider)
	if err != nil {
		return llm.Gemini
	}
	return id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
