// Package ledger records every completion attempt with its usage and cost.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
)

// Record is one completion attempt. Every attempt that actually reaches a
// backend produces exactly one record, success or failure.
type Record struct {
	ID           string           `json:"id"`
	Time         time.Time        `json:"time"`
	Provider     string           `json:"provider"`
	Model        string           `json:"model"`
	Kind         domain.ErrorKind `json:"kind,omitempty"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
	Cost         float64          `json:"cost"`
	Latency      time.Duration    `json:"latency"`
	Attempt      int              `json:"attempt"`
}

// Succeeded reports whether the attempt completed without a classified
// failure.
func (r Record) Succeeded() bool {
	return r.Kind == ""
}

// Filter narrows a query. Zero values match everything.
type Filter struct {
	Provider string
	Since    time.Time
}

// Matches reports whether the record passes the filter.
func (f Filter) Matches(r Record) bool {
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if !f.Since.IsZero() && r.Time.Before(f.Since) {
		return false
	}
	return true
}

// Aggregate summarizes a set of records.
type Aggregate struct {
	Count             int           `json:"count"`
	Successes         int           `json:"successes"`
	SuccessRate       float64       `json:"success_rate"`
	TotalCost         float64       `json:"total_cost"`
	TotalInputTokens  int           `json:"total_input_tokens"`
	TotalOutputTokens int           `json:"total_output_tokens"`
	AverageLatency    time.Duration `json:"average_latency"`
}

// Summarize folds records into an aggregate.
func Summarize(records []Record) Aggregate {
	agg := Aggregate{Count: len(records)}
	if agg.Count == 0 {
		return agg
	}
	var totalLatency time.Duration
	for _, r := range records {
		if r.Succeeded() {
			agg.Successes++
		}
		agg.TotalCost += r.Cost
		agg.TotalInputTokens += r.InputTokens
		agg.TotalOutputTokens += r.OutputTokens
		totalLatency += r.Latency
	}
	agg.SuccessRate = float64(agg.Successes) / float64(agg.Count)
	agg.AverageLatency = totalLatency / time.Duration(agg.Count)
	return agg
}

// Store persists attempt records. Append is the only mutation.
type Store interface {
	Append(ctx context.Context, record Record) error
	List(ctx context.Context, filter Filter) ([]Record, error)
	Summarize(ctx context.Context, filter Filter) (Aggregate, error)
	Close() error
}

// Cost computes the USD cost of one attempt from the provider's per-1K
// price table. An unknown model falls back to the provider's "default"
// price entry; with neither, cost is zero and the gap is logged once per
// call site rather than failing the attempt.
func Cost(cfg config.ProviderConfig, model string, inputTokens, outputTokens int, logger *slog.Logger) float64 {
	price, ok := cfg.Prices[model]
	if !ok {
		price, ok = cfg.Prices["default"]
	}
	if !ok {
		if logger != nil {
			logger.Warn("no price entry for model, recording zero cost",
				"provider", cfg.Name, "model", model)
		}
		return 0
	}
	return float64(inputTokens)/1000*price.In + float64(outputTokens)/1000*price.Out
}
