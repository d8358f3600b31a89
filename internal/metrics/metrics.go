// Package metrics exposes Prometheus instrumentation for completion
// attempts and chapter generation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storyloom"

var (
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Total completion attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	AttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "attempt_duration_seconds",
			Help:      "Completion attempt duration in seconds",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens used by provider, model and direction",
		},
		[]string{"provider", "model", "type"}, // type: input/output
	)

	CostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Accumulated cost in USD by provider and model",
		},
		[]string{"provider", "model"},
	)

	ChaptersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "chapters_total",
			Help:      "Total chapters generated by outcome",
		},
		[]string{"status"},
	)

	ChapterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "chapter_duration_seconds",
			Help:      "Chapter generation duration in seconds by outcome",
			Buckets:   []float64{5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)
)
