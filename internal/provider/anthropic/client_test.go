package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
)

func testConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Kind:    domain.KindClaude,
		Name:    "claude",
		BaseURL: baseURL,
		APIKey:  "test-key",
		Models:  []string{"claude-sonnet-4-20250514"},
	}
}

func TestComplete_Success(t *testing.T) {
	var captured messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != apiVersion {
			t.Errorf("anthropic-version = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg-1",
			"model": "claude-sonnet-4-20250514",
			"content": []map[string]string{
				{"type": "text", "text": "The rain "},
				{"type": "text", "text": "kept falling."},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 30, "output_tokens": 9},
		})
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	result, err := client.Complete(context.Background(), &domain.CompletionRequest{
		Model:  "claude-sonnet-4-20250514",
		System: "You are a novelist.",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "Write a sentence."},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if result.Text != "The rain kept falling." {
		t.Errorf("Text = %q, want concatenated blocks", result.Text)
	}
	if result.InputTokens != 30 || result.OutputTokens != 9 {
		t.Errorf("tokens = %d/%d, want 30/9", result.InputTokens, result.OutputTokens)
	}

	// System travels top-level, never as a message.
	if captured.System != "You are a novelist." {
		t.Errorf("System = %q", captured.System)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", captured.Messages)
	}
	// max_tokens is mandatory and must be defaulted when unset.
	if captured.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", captured.MaxTokens, defaultMaxTokens)
	}
}

func TestComplete_SystemRoleFoldedIntoField(t *testing.T) {
	var captured messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": "ok"}},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	_, err := client.Complete(context.Background(), &domain.CompletionRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "Stay in character."},
			{Role: domain.RoleUser, Content: "Continue."},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if captured.System != "Stay in character." {
		t.Errorf("System = %q, want folded system message", captured.System)
	}
	if len(captured.Messages) != 1 {
		t.Errorf("messages = %+v, system role should not be sent", captured.Messages)
	}
}

func TestComplete_Overloaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	_, err := client.Complete(context.Background(), &domain.CompletionRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})

	var callErr *domain.CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error is %T, want *domain.CallError", err)
	}
	if callErr.Kind != domain.ErrorKindServerUnavailable {
		t.Errorf("Kind = %v, want ServerUnavailable", callErr.Kind)
	}
}

func TestListModels_Static(t *testing.T) {
	client := New(testConfig("http://127.0.0.1:1"))
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0] != "claude-sonnet-4-20250514" {
		t.Errorf("models = %v, want configured list", models)
	}
}
