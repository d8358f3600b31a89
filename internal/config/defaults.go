package config

import (
	"time"

	"github.com/storyloom/storyloom/internal/domain"
)

// builtinProviders carries the per-family defaults: endpoint, known models
// for backends without a discovery endpoint, and per-1K-token price tables.
// File and environment values override these field by field.
var builtinProviders = map[string]ProviderConfig{
	string(domain.KindDeepSeek): {
		Kind:         domain.KindDeepSeek,
		Name:         "DeepSeek",
		BaseURL:      "https://api.deepseek.com/v1",
		Models:       []string{"deepseek-chat", "deepseek-reasoner"},
		DefaultModel: "deepseek-chat",
		Prices: map[string]Price{
			"deepseek-chat":     {In: 0.0014, Out: 0.0028},
			"deepseek-reasoner": {In: 0.0055, Out: 0.0280},
		},
	},
	string(domain.KindQwen): {
		Kind:         domain.KindQwen,
		Name:         "Qwen",
		BaseURL:      "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
		Models:       []string{"qwen-max", "qwen-plus", "qwen-turbo", "qwen-long"},
		DefaultModel: "qwen-plus",
		Prices: map[string]Price{
			"qwen-max":   {In: 0.02, Out: 0.06},
			"qwen-plus":  {In: 0.008, Out: 0.024},
			"qwen-turbo": {In: 0.003, Out: 0.006},
		},
	},
	string(domain.KindGLM): {
		Kind:         domain.KindGLM,
		Name:         "GLM",
		BaseURL:      "https://open.bigmodel.cn/api/paas/v4",
		Models:       []string{"glm-4-plus", "glm-4", "glm-4-air", "glm-4-flash", "glm-4-long"},
		DefaultModel: "glm-4-flash",
		Prices: map[string]Price{
			"glm-4":       {In: 0.05, Out: 0.05},
			"glm-4-flash": {In: 0.001, Out: 0.001},
			"glm-3-turbo": {In: 0.005, Out: 0.005},
		},
	},
	string(domain.KindGemini): {
		Kind:         domain.KindGemini,
		Name:         "Gemini",
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		Models:       []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-pro"},
		DefaultModel: "gemini-1.5-flash",
		Prices: map[string]Price{
			"gemini-pro":        {In: 0.0005, Out: 0.0015},
			"gemini-pro-vision": {In: 0.0025, Out: 0.0075},
		},
	},
	string(domain.KindOpenRouter): {
		Kind:         domain.KindOpenRouter,
		Name:         "OpenRouter",
		BaseURL:      "https://openrouter.ai/api/v1",
		DefaultModel: "openai/gpt-4o-mini",
		Prices: map[string]Price{
			// Blended average across routed models.
			"default": {In: 0.002, Out: 0.006},
		},
	},
	string(domain.KindLMStudio): {
		Kind:               domain.KindLMStudio,
		Name:               "LM Studio",
		BaseURL:            "http://localhost:1234/v1",
		CredentialOptional: true,
		// Local inference is free; no price table on purpose.
	},
	string(domain.KindClaude): {
		Kind:    domain.KindClaude,
		Name:    "Claude",
		BaseURL: "https://api.anthropic.com",
		Models: []string{
			"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022",
			"claude-3-opus-20240229", "claude-3-haiku-20240307",
		},
		DefaultModel: "claude-3-5-sonnet-20241022",
		Prices: map[string]Price{
			"claude-3-5-sonnet-20241022": {In: 0.003, Out: 0.015},
			"claude-3-5-haiku-20241022":  {In: 0.0008, Out: 0.004},
			"claude-3-opus-20240229":     {In: 0.015, Out: 0.075},
			"claude-3-haiku-20240307":    {In: 0.00025, Out: 0.00125},
		},
	},
	string(domain.KindGrok): {
		Kind:         domain.KindGrok,
		Name:         "Grok",
		BaseURL:      "https://api.x.ai/v1",
		Models:       []string{"grok-2-latest", "grok-2-mini"},
		DefaultModel: "grok-2-latest",
		Prices: map[string]Price{
			"grok-2-latest": {In: 0.002, Out: 0.01},
		},
	},
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.ActiveProvider == "" {
		cfg.ActiveProvider = string(domain.KindDeepSeek)
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.Delay == 0 {
		cfg.Retry.Delay = 10 * time.Second
	}
	if cfg.Retry.UnknownRetries == 0 {
		cfg.Retry.UnknownRetries = 1
	}
	if cfg.Generation.ContextBudgetTokens == 0 {
		cfg.Generation.ContextBudgetTokens = 8000
	}
	if cfg.Generation.RecentChapters == 0 {
		cfg.Generation.RecentChapters = 1
	}
	if cfg.Generation.SummaryWindow == 0 {
		cfg.Generation.SummaryWindow = 5
	}
	if cfg.Generation.MinChapterRunes == 0 {
		cfg.Generation.MinChapterRunes = 100
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 4096
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.8
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig, len(builtinProviders))
	}
	for name, def := range builtinProviders {
		merged := def
		if user, ok := cfg.Providers[name]; ok {
			merged = mergeProvider(def, user)
		}
		cfg.Providers[name] = merged
	}
}

// mergeProvider overlays user-supplied fields on the built-in defaults.
func mergeProvider(def, user ProviderConfig) ProviderConfig {
	out := def
	if user.Name != "" {
		out.Name = user.Name
	}
	if user.BaseURL != "" {
		out.BaseURL = user.BaseURL
	}
	if user.APIKey != "" {
		out.APIKey = user.APIKey
	}
	if user.CredentialOptional {
		out.CredentialOptional = true
	}
	if user.Disabled {
		out.Disabled = true
	}
	if len(user.Models) > 0 {
		out.Models = user.Models
	}
	if user.DefaultModel != "" {
		out.DefaultModel = user.DefaultModel
	}
	if user.SystemPrompt != "" {
		out.SystemPrompt = user.SystemPrompt
	}
	if len(user.Prices) > 0 {
		out.Prices = user.Prices
	}
	return out
}
