// Package registry holds the configured providers and the active selection.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
)

// NotConfiguredError reports a provider that is unknown, disabled, or
// missing its credential.
type NotConfiguredError struct {
	Name   string
	Reason string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("provider %q not configured: %s", e.Name, e.Reason)
}

// NoModelAvailableError reports that model resolution found nothing to use.
type NoModelAvailableError struct {
	Provider string
	Model    string
}

func (e *NoModelAvailableError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("model %q not available on provider %q", e.Model, e.Provider)
	}
	return fmt.Sprintf("no model available on provider %q", e.Provider)
}

// AdapterFactory builds the adapter for a provider config. Injected so
// tests can substitute fakes.
type AdapterFactory func(cfg config.ProviderConfig, logger *slog.Logger) (domain.Adapter, error)

// Selection is the resolved active provider.
type Selection struct {
	Name    string
	Config  config.ProviderConfig
	Adapter domain.Adapter
}

// Info describes one registered provider for listing.
type Info struct {
	Name          string              `json:"name"`
	Kind          domain.ProviderKind `json:"kind"`
	HasCredential bool                `json:"has_credential"`
	Disabled      bool                `json:"disabled"`
	Active        bool                `json:"active"`
	DefaultModel  string              `json:"default_model,omitempty"`
	Models        []string            `json:"models,omitempty"`
}

// Registry is safe for concurrent use. A config reload replaces the whole
// provider set atomically.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]config.ProviderConfig
	adapters  map[string]domain.Adapter
	active    string
	factory   AdapterFactory
	logger    *slog.Logger
}

// New builds a registry from the config, constructing an adapter for every
// enabled provider. The configured active provider is selected when it is
// usable; otherwise no provider is active until SetActive succeeds.
func New(cfg *config.Config, factory AdapterFactory, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{factory: factory, logger: logger}
	if err := r.Reload(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the provider set from a fresh config snapshot. The
// active selection is kept when the provider survives the reload.
func (r *Registry) Reload(cfg *config.Config) error {
	providers := make(map[string]config.ProviderConfig, len(cfg.Providers))
	adapters := make(map[string]domain.Adapter, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.Disabled {
			continue
		}
		adapter, err := r.factory(pc, r.logger)
		if err != nil {
			return fmt.Errorf("build adapter for %q: %w", name, err)
		}
		providers[name] = pc
		adapters[name] = adapter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = providers
	r.adapters = adapters

	if _, ok := providers[r.active]; !ok {
		r.active = ""
	}
	if r.active == "" && cfg.ActiveProvider != "" {
		if pc, ok := providers[cfg.ActiveProvider]; ok && pc.HasCredential() {
			r.active = cfg.ActiveProvider
		}
	}
	return nil
}

// List returns the registered providers in name order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.providers))
	for name, pc := range r.providers {
		infos = append(infos, Info{
			Name:          name,
			Kind:          pc.Kind,
			HasCredential: pc.HasCredential(),
			Disabled:      pc.Disabled,
			Active:        name == r.active,
			DefaultModel:  pc.DefaultModel,
			Models:        append([]string(nil), pc.Models...),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// SetActive switches the active provider. The switch is rejected when the
// provider is unknown or lacks its credential, leaving the previous
// selection in place.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc, ok := r.providers[name]
	if !ok {
		return &NotConfiguredError{Name: name, Reason: "unknown or disabled"}
	}
	if !pc.HasCredential() {
		return &NotConfiguredError{Name: name, Reason: "missing credential"}
	}
	r.active = name
	return nil
}

// Active returns the current selection.
func (r *Registry) Active() (Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return Selection{}, &NotConfiguredError{Name: "", Reason: "no active provider"}
	}
	return Selection{
		Name:    r.active,
		Config:  r.providers[r.active],
		Adapter: r.adapters[r.active],
	}, nil
}

// ResolveModel resolves the model for the active provider. An explicit
// request wins when the provider allows it; otherwise the provider's
// default model, then the first known model.
func (r *Registry) ResolveModel(explicit string) (string, error) {
	sel, err := r.Active()
	if err != nil {
		return "", err
	}
	pc := sel.Config

	if explicit != "" {
		// An empty known-model list means the provider accepts anything.
		if len(pc.Models) == 0 {
			return explicit, nil
		}
		for _, m := range pc.Models {
			if m == explicit {
				return explicit, nil
			}
		}
		return "", &NoModelAvailableError{Provider: sel.Name, Model: explicit}
	}
	if pc.DefaultModel != "" {
		return pc.DefaultModel, nil
	}
	if len(pc.Models) > 0 {
		return pc.Models[0], nil
	}
	return "", &NoModelAvailableError{Provider: sel.Name}
}

// TestConnections probes every registered provider concurrently by listing
// its models. The result maps provider name to probe error, nil on success.
func (r *Registry) TestConnections(ctx context.Context) map[string]error {
	r.mu.RLock()
	adapters := make(map[string]domain.Adapter, len(r.adapters))
	for name, a := range r.adapters {
		adapters[name] = a
	}
	r.mu.RUnlock()

	var mu sync.Mutex
	results := make(map[string]error, len(adapters))

	g, ctx := errgroup.WithContext(ctx)
	for name, adapter := range adapters {
		g.Go(func() error {
			_, err := adapter.ListModels(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}
