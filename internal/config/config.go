// Package config loads storyloom configuration from a YAML file and
// STORYLOOM_-prefixed environment variables, applying defaults for every
// known provider family.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/storyloom/storyloom/internal/domain"
)

const envPrefix = "STORYLOOM_"

// Price is the cost per 1K tokens for one model, in USD.
type Price struct {
	In  float64 `koanf:"in"`
	Out float64 `koanf:"out"`
}

// ProviderConfig describes one configured backend. It is read-only to the
// core; mutation happens only through a config reload.
type ProviderConfig struct {
	Kind               domain.ProviderKind `koanf:"kind"`
	Name               string              `koanf:"name"`
	BaseURL            string              `koanf:"base_url"`
	APIKey             string              `koanf:"api_key"`
	CredentialOptional bool                `koanf:"credential_optional"`
	Disabled           bool                `koanf:"disabled"`
	Models             []string            `koanf:"models"`
	DefaultModel       string              `koanf:"default_model"`
	SystemPrompt       string              `koanf:"system_prompt"`
	Prices             map[string]Price    `koanf:"prices"`
}

// HasCredential reports whether the provider satisfies the credential
// invariant: a non-empty key, or an explicit credential-optional marking
// (local backends).
func (p ProviderConfig) HasCredential() bool {
	return strings.TrimSpace(p.APIKey) != "" || p.CredentialOptional
}

// RetryConfig is the dispatcher's retry policy as configuration data.
type RetryConfig struct {
	MaxRetries     int           `koanf:"max_retries"`
	Delay          time.Duration `koanf:"delay"`
	UnknownRetries int           `koanf:"unknown_retries"`
}

// GenerationConfig bounds the pipeline's prompts and context window.
type GenerationConfig struct {
	// ContextBudgetTokens is the prior-narrative budget above which older
	// chapters are carried as summaries instead of verbatim text.
	ContextBudgetTokens int `koanf:"context_budget_tokens"`
	// RecentChapters is how many immediately preceding chapters are always
	// included verbatim.
	RecentChapters int `koanf:"recent_chapters"`
	// SummaryWindow is how many chapters before the verbatim window are
	// included as summaries.
	SummaryWindow   int     `koanf:"summary_window"`
	MinChapterRunes int     `koanf:"min_chapter_runes"`
	MaxTokens       int     `koanf:"max_tokens"`
	Temperature     float32 `koanf:"temperature"`
	Review          bool    `koanf:"review"`
}

// ServerConfig configures the presentation-facing HTTP surface.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the committed configuration snapshot the core reads.
type Config struct {
	Server         ServerConfig              `koanf:"server"`
	Log            LogConfig                 `koanf:"log"`
	ActiveProvider string                    `koanf:"active_provider"`
	LedgerPath     string                    `koanf:"ledger_path"`
	// TraceSampleRatio bounds the fraction of traces exported. Zero or
	// anything outside (0,1] keeps everything.
	TraceSampleRatio float64 `koanf:"trace_sample_ratio"`
	Retry          RetryConfig               `koanf:"retry"`
	Generation     GenerationConfig          `koanf:"generation"`
	Providers      map[string]ProviderConfig `koanf:"providers"`
}

// Provider returns the named provider config.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// Load reads configuration from the given YAML file (optional) and the
// environment. Environment variables win over the file; built-in provider
// defaults fill whatever neither supplies.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Double underscore separates path segments so single underscores
	// survive inside keys: STORYLOOM_PROVIDERS__DEEPSEEK__API_KEY ->
	// providers.deepseek.api_key.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}
