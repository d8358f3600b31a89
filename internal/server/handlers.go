package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storyloom/storyloom/internal/domain"
	"github.com/storyloom/storyloom/internal/ledger"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/registry"
)

// Handlers is the JSON API over the run manager, registry and ledger.
type Handlers struct {
	manager  *pipeline.Manager
	registry *registry.Registry
	store    ledger.Store
}

// NewHandlers creates the API handler set.
func NewHandlers(manager *pipeline.Manager, reg *registry.Registry, store ledger.Store) *Handlers {
	return &Handlers{manager: manager, registry: reg, store: store}
}

// Mount attaches the API routes.
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", h.startRun)
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}", h.getRun)
		r.Delete("/runs/{id}", h.cancelRun)
		r.Get("/usage", h.usage)
		r.Get("/models", h.models)
		r.Get("/providers", h.providers)
		r.Put("/providers/active", h.setActive)
	})
}

func (h *Handlers) startRun(w http.ResponseWriter, r *http.Request) {
	var params pipeline.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	run, err := h.manager.Start(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, run.Status())
}

func (h *Handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.List())
}

func (h *Handlers) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	status := run.Status()
	resp := struct {
		pipeline.Status
		Novel *pipeline.Novel `json:"novel,omitempty"`
	}{Status: status}
	if status.State == pipeline.RunStateComplete {
		resp.Novel = run.Novel()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	run.Cancel()
	writeJSON(w, http.StatusOK, run.Status())
}

func (h *Handlers) usage(w http.ResponseWriter, r *http.Request) {
	filter := ledger.Filter{Provider: r.URL.Query().Get("provider")}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}
	agg, err := h.store.Summarize(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (h *Handlers) models(w http.ResponseWriter, r *http.Request) {
	sel, err := h.registry.Active()
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	models, err := sel.Adapter.ListModels(r.Context())
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": sel.Name,
		"models":   models,
	})
}

func (h *Handlers) providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

func (h *Handlers) setActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.registry.SetActive(body.Name); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.registry.List())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeRegistryError(w http.ResponseWriter, err error) {
	var notConfigured *registry.NotConfiguredError
	if errors.As(err, &notConfigured) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	var noModel *registry.NoModelAvailableError
	if errors.As(err, &noModel) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeCallError(w http.ResponseWriter, err error) {
	var callErr *domain.CallError
	if errors.As(err, &callErr) {
		status := http.StatusBadGateway
		if callErr.Kind == domain.ErrorKindAuthInvalid {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]string{
			"error": callErr.Message,
			"kind":  string(callErr.Kind),
		})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
