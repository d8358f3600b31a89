package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
)

type stubAdapter struct {
	name   string
	models []string
	err    error
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAdapter) ListModels(ctx context.Context) ([]string, error) {
	return s.models, s.err
}

func stubFactory(cfg config.ProviderConfig, _ *slog.Logger) (domain.Adapter, error) {
	return &stubAdapter{name: cfg.Name, models: cfg.Models}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ActiveProvider: "deepseek",
		Providers: map[string]config.ProviderConfig{
			"deepseek": {
				Kind:         domain.KindDeepSeek,
				Name:         "deepseek",
				APIKey:       "key",
				Models:       []string{"deepseek-chat", "deepseek-reasoner"},
				DefaultModel: "deepseek-chat",
			},
			"claude": {
				Kind:   domain.KindClaude,
				Name:   "claude",
				APIKey: "key",
				Models: []string{"claude-sonnet-4"},
			},
			"nokey": {
				Kind: domain.KindGrok,
				Name: "nokey",
			},
			"lmstudio": {
				Kind:               domain.KindLMStudio,
				Name:               "lmstudio",
				CredentialOptional: true,
			},
			"disabled": {
				Kind:     domain.KindQwen,
				Name:     "disabled",
				APIKey:   "key",
				Disabled: true,
			},
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(testConfig(), stubFactory, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return reg
}

func TestNew_ActivatesConfiguredProvider(t *testing.T) {
	reg := newTestRegistry(t)
	sel, err := reg.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if sel.Name != "deepseek" {
		t.Errorf("active = %q, want deepseek", sel.Name)
	}
}

func TestList_ExcludesDisabled(t *testing.T) {
	reg := newTestRegistry(t)
	infos := reg.List()
	if len(infos) != 4 {
		t.Fatalf("List = %d providers, want 4", len(infos))
	}
	for _, info := range infos {
		if info.Name == "disabled" {
			t.Errorf("disabled provider surfaced in List")
		}
	}
}

func TestSetActive(t *testing.T) {
	reg := newTestRegistry(t)

	if err := reg.SetActive("claude"); err != nil {
		t.Fatalf("SetActive(claude) failed: %v", err)
	}
	sel, _ := reg.Active()
	if sel.Name != "claude" {
		t.Errorf("active = %q, want claude", sel.Name)
	}

	// Credential-optional providers are selectable with no key.
	if err := reg.SetActive("lmstudio"); err != nil {
		t.Errorf("SetActive(lmstudio) failed: %v", err)
	}
}

func TestSetActive_NotConfigured(t *testing.T) {
	reg := newTestRegistry(t)

	tests := []struct {
		name     string
		provider string
	}{
		{"unknown provider", "nonexistent"},
		{"missing credential", "nokey"},
		{"disabled provider", "disabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.SetActive(tt.provider)
			var notConfigured *NotConfiguredError
			if !errors.As(err, &notConfigured) {
				t.Fatalf("err = %v, want NotConfiguredError", err)
			}
		})
	}

	// A failed switch keeps the previous selection.
	sel, err := reg.Active()
	if err != nil || sel.Name != "deepseek" {
		t.Errorf("active after failed switches = %q, want deepseek", sel.Name)
	}
}

func TestResolveModel(t *testing.T) {
	reg := newTestRegistry(t)

	tests := []struct {
		name     string
		explicit string
		want     string
		wantErr  bool
	}{
		{"explicit enabled model", "deepseek-reasoner", "deepseek-reasoner", false},
		{"no explicit uses default", "", "deepseek-chat", false},
		{"explicit unknown model", "gpt-4o", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.ResolveModel(tt.explicit)
			if tt.wantErr {
				var noModel *NoModelAvailableError
				if !errors.As(err, &noModel) {
					t.Fatalf("err = %v, want NoModelAvailableError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveModel failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveModel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveModel_NoDefaultNoModels(t *testing.T) {
	cfg := testConfig()
	pc := cfg.Providers["deepseek"]
	pc.Models = nil
	pc.DefaultModel = ""
	cfg.Providers["deepseek"] = pc

	reg, err := New(cfg, stubFactory, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = reg.ResolveModel("")
	var noModel *NoModelAvailableError
	if !errors.As(err, &noModel) {
		t.Fatalf("err = %v, want NoModelAvailableError", err)
	}

	// With an empty known-model list any explicit model is accepted.
	got, err := reg.ResolveModel("anything-goes")
	if err != nil || got != "anything-goes" {
		t.Errorf("ResolveModel = %q, %v; want explicit model accepted", got, err)
	}
}

func TestReload_KeepsSurvivingActive(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.SetActive("claude"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	if err := reg.Reload(testConfig()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	sel, err := reg.Active()
	if err != nil || sel.Name != "claude" {
		t.Errorf("active after reload = %q, want claude", sel.Name)
	}
}

func TestReload_DropsVanishedActive(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.SetActive("claude"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	cfg := testConfig()
	delete(cfg.Providers, "claude")
	if err := reg.Reload(cfg); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	// The configured active provider takes over.
	sel, err := reg.Active()
	if err != nil || sel.Name != "deepseek" {
		t.Errorf("active after reload = %q, want deepseek fallback", sel.Name)
	}
}

func TestTestConnections(t *testing.T) {
	probeErr := errors.New("unreachable")
	factory := func(cfg config.ProviderConfig, _ *slog.Logger) (domain.Adapter, error) {
		a := &stubAdapter{name: cfg.Name, models: cfg.Models}
		if cfg.Name == "claude" {
			a.err = probeErr
		}
		return a, nil
	}
	reg, err := New(testConfig(), factory, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	results := reg.TestConnections(context.Background())
	if len(results) != 4 {
		t.Fatalf("results = %d entries, want one per enabled provider", len(results))
	}
	if results["deepseek"] != nil {
		t.Errorf("deepseek probe = %v, want nil", results["deepseek"])
	}
	if !errors.Is(results["claude"], probeErr) {
		t.Errorf("claude probe = %v, want the probe error", results["claude"])
	}
}
