package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
)

func testConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Kind:    domain.KindGemini,
		Name:    "gemini",
		BaseURL: baseURL,
		APIKey:  "test-key",
		Models:  []string{"gemini-2.0-flash"},
	}
}

func TestComplete_Success(t *testing.T) {
	var captured generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content": map[string]any{
						"role":  "model",
						"parts": []map[string]string{{"text": "A quiet dawn."}},
					},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]int{"promptTokenCount": 21, "candidatesTokenCount": 4},
		})
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	result, err := client.Complete(context.Background(), &domain.CompletionRequest{
		Model:  "gemini-2.0-flash",
		System: "You are a novelist.",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: "Begin."},
			{Role: domain.RoleAssistant, Content: "It began."},
			{Role: domain.RoleUser, Content: "Continue."},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if result.Text != "A quiet dawn." {
		t.Errorf("Text = %q", result.Text)
	}
	if result.InputTokens != 21 || result.OutputTokens != 4 {
		t.Errorf("tokens = %d/%d, want 21/4", result.InputTokens, result.OutputTokens)
	}

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "You are a novelist." {
		t.Errorf("systemInstruction = %+v", captured.SystemInstruction)
	}
	// The assistant role maps to "model" on the wire.
	if len(captured.Contents) != 3 || captured.Contents[1].Role != "model" {
		t.Errorf("contents = %+v, want assistant mapped to model", captured.Contents)
	}
}

func TestComplete_SafetyBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{}}, "finishReason": "SAFETY"},
			},
		})
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	_, err := client.Complete(context.Background(), &domain.CompletionRequest{
		Model:    "gemini-2.0-flash",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})

	var callErr *domain.CallError
	if !errors.As(err, &callErr) || callErr.Kind != domain.ErrorKindContentRejected {
		t.Fatalf("err = %v, want ContentRejected", err)
	}
}

func TestListModels_StripsPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "models/gemini-2.0-flash", "supportedGenerationMethods": []string{"generateContent"}},
				{"name": "models/embedding-001", "supportedGenerationMethods": []string{"embedContent"}},
			},
		})
	}))
	defer srv.Close()

	client := New(testConfig(srv.URL))
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0] != "gemini-2.0-flash" {
		t.Errorf("models = %v, want generation models with prefix stripped", models)
	}
}

func TestListModels_FallbackWithoutBackend(t *testing.T) {
	client := New(testConfig("http://127.0.0.1:1"))
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 1 || models[0] != "gemini-2.0-flash" {
		t.Errorf("models = %v, want configured fallback", models)
	}
}
