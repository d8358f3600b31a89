// Package openaicompat implements the adapter for backends that speak the
// OpenAI chat-completions wire format: DeepSeek, Qwen, GLM, OpenRouter,
// LM Studio and Grok.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
)

const (
	defaultTimeout = 120 * time.Second
	userAgent      = "storyloom/1.0"
)

// discoverable lists the kinds whose backends expose a usable /models
// endpoint. The rest advertise a static known-model list.
var discoverable = map[domain.ProviderKind]bool{
	domain.KindDeepSeek:   true,
	domain.KindOpenRouter: true,
	domain.KindLMStudio:   true,
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is the adapter for one configured OpenAI-compatible backend.
type Client struct {
	cfg        config.ProviderConfig
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.Adapter = (*Client)(nil)

// New creates an adapter for the given provider config.
func New(cfg config.ProviderConfig, opts ...ClientOption) *Client {
	c := &Client{
		cfg:        cfg,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the configured provider name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Complete sends one chat-completion request. It never retries.
func (c *Client) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	wire := chatRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if system := c.systemText(req.System); system != "" {
		wire.Messages = append(wire.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, domain.NewCallError(domain.ErrorKindMalformedRequest, c.cfg.Name,
			"marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		kind := Classify(resp.StatusCode, respBody)
		return nil, domain.NewCallError(kind, c.cfg.Name, errorMessage(respBody)).
			WithStatus(resp.StatusCode)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.NewCallError(domain.ErrorKindMalformedResponse, c.cfg.Name,
			"unmarshal response").WithCause(err)
	}
	if len(result.Choices) == 0 {
		return nil, domain.NewCallError(domain.ErrorKindMalformedResponse, c.cfg.Name,
			"response contained no choices")
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}

	return &domain.CompletionResult{
		Text:         result.Choices[0].Message.Content,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
		Model:        model,
		Provider:     c.cfg.Name,
		FinishReason: result.Choices[0].FinishReason,
	}, nil
}

// ListModels returns the backend's model identifiers. Kinds without a
// discovery endpoint return their configured known-model list; discovery
// failures fall back to that list as well, except LM Studio which simply
// has nothing loaded when unreachable.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	if !discoverable[c.cfg.Kind] {
		return append([]string(nil), c.cfg.Models...), nil
	}

	models, err := c.fetchModels(ctx)
	if err != nil {
		if c.cfg.Kind == domain.KindLMStudio {
			c.logger.Warn("model discovery failed, backend may not be running",
				slog.String("provider", c.cfg.Name),
				slog.String("error", err.Error()))
			return nil, nil
		}
		c.logger.Warn("model discovery failed, using known models",
			slog.String("provider", c.cfg.Name),
			slog.String("error", err.Error()))
		return append([]string(nil), c.cfg.Models...), nil
	}

	if c.cfg.Kind == domain.KindOpenRouter {
		models = filterMainProviders(models)
	}
	return models, nil
}

func (c *Client) fetchModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		kind := Classify(resp.StatusCode, respBody)
		return nil, domain.NewCallError(kind, c.cfg.Name, errorMessage(respBody)).
			WithStatus(resp.StatusCode)
	}

	var list modelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, domain.NewCallError(domain.ErrorKindMalformedResponse, c.cfg.Name,
			"unmarshal model list").WithCause(err)
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// systemText resolves the effective system instruction: the request's own,
// falling back to the provider's configured prompt.
func (c *Client) systemText(reqSystem string) string {
	if reqSystem != "" {
		return reqSystem
	}
	return c.cfg.SystemPrompt
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Kind == domain.KindOpenRouter {
		req.Header.Set("X-Title", "storyloom")
		req.Header.Set("HTTP-Referer", "https://github.com/storyloom/storyloom")
	}
}

// mainProviderPrefixes keeps the OpenRouter catalogue manageable: only the
// major upstream families are surfaced.
var mainProviderPrefixes = []string{
	"openai/", "o1-",
	"google/gemini-", "google/palm-",
	"deepseek/",
	"qwen/", "alibaba/",
	"anthropic/",
	"x-ai/",
}

func filterMainProviders(models []string) []string {
	var filtered []string
	for _, m := range models {
		lower := strings.ToLower(m)
		for _, p := range mainProviderPrefixes {
			if strings.HasPrefix(lower, p) {
				filtered = append(filtered, m)
				break
			}
		}
	}
	if len(filtered) == 0 {
		if len(models) > 20 {
			filtered = models[:20]
		} else {
			filtered = models
		}
	}
	sort.Strings(filtered)
	return filtered
}
