// Package anthropic implements the adapter for the Anthropic messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
)

const (
	defaultTimeout   = 120 * time.Second
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
	userAgent        = "storyloom/1.0"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is the adapter for the Anthropic backend.
type Client struct {
	cfg        config.ProviderConfig
	baseURL    string
	httpClient *http.Client
}

var _ domain.Adapter = (*Client)(nil)

// New creates an adapter for the given provider config.
func New(cfg config.ProviderConfig, opts ...ClientOption) *Client {
	c := &Client{
		cfg:        cfg,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
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

// Complete sends one messages request. It never retries.
func (c *Client) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	wire := messagesRequest{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if wire.System == "" {
		wire.System = c.cfg.SystemPrompt
	}
	// max_tokens is mandatory on this API.
	if wire.MaxTokens == 0 {
		wire.MaxTokens = defaultMaxTokens
	}
	for _, m := range req.Messages {
		// The messages API has no system role; the instruction travels in
		// the top-level system field.
		if m.Role == domain.RoleSystem {
			if wire.System == "" {
				wire.System = m.Content
			} else {
				wire.System += "\n\n" + m.Content
			}
			continue
		}
		wire.Messages = append(wire.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, domain.NewCallError(domain.ErrorKindMalformedRequest, c.cfg.Name,
			"marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(body))
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

	var result messagesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.NewCallError(domain.ErrorKindMalformedResponse, c.cfg.Name,
			"unmarshal response").WithCause(err)
	}

	var text strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, domain.NewCallError(domain.ErrorKindMalformedResponse, c.cfg.Name,
			"response contained no text content")
	}

	model := result.Model
	if model == "" {
		model = req.Model
	}

	return &domain.CompletionResult{
		Text:         text.String(),
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		Model:        model,
		Provider:     c.cfg.Name,
		FinishReason: result.StopReason,
	}, nil
}

// ListModels returns the configured known-model list; the API offers no
// public discovery endpoint.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return append([]string(nil), c.cfg.Models...), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
}
