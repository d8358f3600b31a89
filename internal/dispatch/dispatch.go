// Package dispatch owns the retry loop around single-attempt adapters and
// feeds the usage ledger.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
	"github.com/storyloom/storyloom/internal/ledger"
	"github.com/storyloom/storyloom/internal/metrics"
	"github.com/storyloom/storyloom/internal/registry"
	"github.com/storyloom/storyloom/internal/tokens"
)

// Policy bounds the retry loop. Delay is flat between attempts.
type Policy struct {
	MaxRetries     int
	Delay          time.Duration
	UnknownRetries int
}

// PolicyFromConfig converts the config form.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxRetries:     cfg.MaxRetries,
		Delay:          cfg.Delay,
		UnknownRetries: cfg.UnknownRetries,
	}
}

// Sleeper waits between attempts. Injected so tests do not wait.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithSleeper replaces the inter-attempt wait.
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) {
		d.sleep = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// Dispatcher resolves the active provider, runs the bounded retry loop,
// and records every attempt that reaches a backend.
type Dispatcher struct {
	registry *registry.Registry
	store    ledger.Store
	tokens   *tokens.Registry
	policy   Policy
	sleep    Sleeper
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a dispatcher.
func New(reg *registry.Registry, store ledger.Store, counter *tokens.Registry, policy Policy, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		store:    store,
		tokens:   counter,
		policy:   policy,
		sleep:    defaultSleeper,
		logger:   slog.Default(),
		tracer:   otel.Tracer("storyloom/dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one logical completion against the active provider. The
// request is never mutated; each attempt works on a copy with the resolved
// model filled in. On success exactly one result is returned; on exhaustion
// the last attempt's classified error is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	sel, err := d.registry.Active()
	if err != nil {
		return nil, err
	}
	model, err := d.registry.ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}

	// Credential gate. A missing key fails before any attempt, so no
	// ledger record is written.
	if !sel.Config.HasCredential() {
		return nil, domain.NewCallError(domain.ErrorKindAuthInvalid, sel.Name,
			"provider has no credential configured")
	}

	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("provider", sel.Name),
			attribute.String("model", model),
		))
	defer span.End()

	retries := 0
	unknownRetries := 0
	for attempt := 1; ; attempt++ {
		result, callErr := d.attempt(ctx, sel, req.Clone(model), attempt)
		if callErr == nil {
			return result, nil
		}

		retry := false
		switch {
		case callErr.Kind == domain.ErrorKindUnknown && unknownRetries < d.policy.UnknownRetries:
			unknownRetries++
			retry = true
		case callErr.Kind.Retryable() && retries < d.policy.MaxRetries:
			retries++
			retry = true
		}
		if !retry {
			return nil, callErr
		}

		d.logger.Warn("attempt failed, retrying",
			"provider", sel.Name, "model", model, "attempt", attempt,
			"kind", string(callErr.Kind), "delay", d.policy.Delay, "error", callErr)
		if err := d.sleep(ctx, d.policy.Delay); err != nil {
			return nil, domain.NewCallError(domain.ErrorKindCancelled, sel.Name,
				"cancelled while waiting to retry").WithCause(err)
		}
	}
}

// attempt runs a single adapter call and writes its ledger record.
func (d *Dispatcher) attempt(ctx context.Context, sel registry.Selection, req *domain.CompletionRequest, attempt int) (*domain.CompletionResult, *domain.CallError) {
	start := time.Now()
	result, err := sel.Adapter.Complete(ctx, req)
	latency := time.Since(start)

	record := ledger.Record{
		Time:     start,
		Provider: sel.Name,
		Model:    req.Model,
		Latency:  latency,
		Attempt:  attempt,
	}

	if err != nil {
		callErr := d.classifyTransport(sel.Name, err)
		record.Kind = callErr.Kind
		record.InputTokens = d.tokens.Count(req.Model, req.InputText())
		d.append(ctx, record)
		metrics.AttemptsTotal.WithLabelValues(sel.Name, string(callErr.Kind)).Inc()
		metrics.AttemptLatency.WithLabelValues(sel.Name).Observe(latency.Seconds())
		return nil, callErr
	}

	result.Latency = latency
	if result.InputTokens == 0 {
		result.InputTokens = d.tokens.Count(req.Model, req.InputText())
	}
	if result.OutputTokens == 0 {
		result.OutputTokens = d.tokens.Count(req.Model, result.Text)
	}

	record.Model = result.Model
	record.InputTokens = result.InputTokens
	record.OutputTokens = result.OutputTokens
	record.Cost = ledger.Cost(sel.Config, result.Model, result.InputTokens, result.OutputTokens, d.logger)
	d.append(ctx, record)

	metrics.AttemptsTotal.WithLabelValues(sel.Name, "success").Inc()
	metrics.AttemptLatency.WithLabelValues(sel.Name).Observe(latency.Seconds())
	metrics.TokensUsed.WithLabelValues(sel.Name, result.Model, "input").Add(float64(result.InputTokens))
	metrics.TokensUsed.WithLabelValues(sel.Name, result.Model, "output").Add(float64(result.OutputTokens))
	metrics.CostTotal.WithLabelValues(sel.Name, result.Model).Add(record.Cost)
	return result, nil
}

func (d *Dispatcher) append(ctx context.Context, record ledger.Record) {
	// Ledger writes never fail the call itself.
	if err := d.store.Append(context.WithoutCancel(ctx), record); err != nil {
		d.logger.Error("failed to append ledger record",
			"provider", record.Provider, "error", err)
	}
}

// classifyTransport maps an adapter error to the canonical taxonomy.
// Classified errors pass through; transport-level failures the adapter
// could not interpret are mapped here.
func (d *Dispatcher) classifyTransport(provider string, err error) *domain.CallError {
	var callErr *domain.CallError
	if errors.As(err, &callErr) {
		return callErr
	}

	switch {
	case errors.Is(err, context.Canceled):
		return domain.NewCallError(domain.ErrorKindCancelled, provider,
			"request cancelled").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewCallError(domain.ErrorKindTimeout, provider,
			"request deadline exceeded").WithCause(err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return domain.NewCallError(domain.ErrorKindTimeout, provider,
				"request timed out").WithCause(err)
		}
		return domain.NewCallError(domain.ErrorKindServerUnavailable, provider,
			"backend unreachable").WithCause(err)
	}

	return domain.NewCallError(domain.ErrorKindUnknown, provider, err.Error()).WithCause(err)
}
