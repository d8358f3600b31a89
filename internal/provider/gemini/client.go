// Package gemini implements the adapter for the Google Gemini API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
)

const defaultTimeout = 120 * time.Second

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

// Client is the adapter for the Gemini backend. Authentication travels as
// a key query parameter rather than a header.
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

// Complete sends one generateContent request. It never retries.
func (c *Client) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	wire := generateRequest{}
	system := req.System
	if system == "" {
		system = c.cfg.SystemPrompt
	}
	if system != "" {
		wire.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			if wire.SystemInstruction == nil {
				wire.SystemInstruction = &content{Parts: []part{{Text: m.Content}}}
			} else {
				wire.SystemInstruction.Parts = append(wire.SystemInstruction.Parts,
					part{Text: m.Content})
			}
		case domain.RoleAssistant:
			// The API calls the assistant side "model".
			wire.Contents = append(wire.Contents, content{
				Role:  "model",
				Parts: []part{{Text: m.Content}},
			})
		default:
			wire.Contents = append(wire.Contents, content{
				Role:  "user",
				Parts: []part{{Text: m.Content}},
			})
		}
	}
	if req.Temperature != 0 || req.TopP != 0 || req.MaxTokens != 0 {
		wire.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, domain.NewCallError(domain.ErrorKindMalformedRequest, c.cfg.Name,
			"marshal request").WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(req.Model), url.QueryEscape(c.cfg.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.NewCallError(domain.ErrorKindMalformedResponse, c.cfg.Name,
			"unmarshal response").WithCause(err)
	}
	if len(result.Candidates) == 0 {
		return nil, domain.NewCallError(domain.ErrorKindMalformedResponse, c.cfg.Name,
			"response contained no candidates")
	}

	cand := result.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return nil, domain.NewCallError(domain.ErrorKindContentRejected, c.cfg.Name,
			"candidate blocked by safety filter")
	}

	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return nil, domain.NewCallError(domain.ErrorKindMalformedResponse, c.cfg.Name,
			"candidate contained no text")
	}

	out := &domain.CompletionResult{
		Text:         text.String(),
		Model:        req.Model,
		Provider:     c.cfg.Name,
		FinishReason: strings.ToLower(cand.FinishReason),
	}
	if result.ModelVersion != "" {
		out.Model = result.ModelVersion
	}
	if result.UsageMetadata != nil {
		out.InputTokens = result.UsageMetadata.PromptTokenCount
		out.OutputTokens = result.UsageMetadata.CandidatesTokenCount
	}
	return out, nil
}

// ListModels fetches the generation-capable model names, stripping the
// "models/" resource prefix. Falls back to the configured list when the
// call fails.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	endpoint := fmt.Sprintf("%s/models?key=%s", c.baseURL, url.QueryEscape(c.cfg.APIKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("model discovery failed, using known models",
			"provider", c.cfg.Name, "error", err)
		return append([]string(nil), c.cfg.Models...), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		c.logger.Warn("model discovery failed, using known models",
			"provider", c.cfg.Name, "status", resp.StatusCode)
		return append([]string(nil), c.cfg.Models...), nil
	}

	var list modelList
	if err := json.Unmarshal(respBody, &list); err != nil {
		return nil, domain.NewCallError(domain.ErrorKindMalformedResponse, c.cfg.Name,
			"unmarshal model list").WithCause(err)
	}

	var names []string
	for _, m := range list.Models {
		if !supportsGeneration(m) {
			continue
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	sort.Strings(names)
	return names, nil
}

func supportsGeneration(m modelInfo) bool {
	for _, method := range m.SupportedGenerationMethods {
		if method == "generateContent" {
			return true
		}
	}
	return false
}
