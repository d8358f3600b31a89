// Package provider constructs adapters for configured backends.
package provider

import (
	"fmt"
	"log/slog"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
	"github.com/storyloom/storyloom/internal/provider/anthropic"
	"github.com/storyloom/storyloom/internal/provider/gemini"
	"github.com/storyloom/storyloom/internal/provider/openaicompat"
)

// New builds the adapter for a provider config. The kind set is closed;
// an unknown kind is a configuration error, not a fallback.
func New(cfg config.ProviderConfig, logger *slog.Logger) (domain.Adapter, error) {
	switch cfg.Kind {
	case domain.KindDeepSeek, domain.KindQwen, domain.KindGLM,
		domain.KindOpenRouter, domain.KindLMStudio, domain.KindGrok:
		return openaicompat.New(cfg, openaicompat.WithLogger(logger)), nil
	case domain.KindClaude:
		return anthropic.New(cfg), nil
	case domain.KindGemini:
		return gemini.New(cfg, gemini.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q for provider %q", cfg.Kind, cfg.Name)
	}
}
