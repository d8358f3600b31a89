package ledger

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
)

func TestCost(t *testing.T) {
	cfg := config.ProviderConfig{
		Name: "deepseek",
		Prices: map[string]config.Price{
			"deepseek-chat": {In: 0.27, Out: 1.10},
			"default":       {In: 0.5, Out: 1.5},
		},
	}

	tests := []struct {
		name   string
		model  string
		in     int
		out    int
		want   float64
	}{
		{
			name:  "known model",
			model: "deepseek-chat",
			in:    1000,
			out:   1000,
			want:  0.27 + 1.10,
		},
		{
			name:  "fractional thousands",
			model: "deepseek-chat",
			in:    500,
			out:   250,
			want:  0.5*0.27 + 0.25*1.10,
		},
		{
			name:  "unknown model uses default entry",
			model: "deepseek-reasoner",
			in:    2000,
			out:   1000,
			want:  2*0.5 + 1*1.5,
		},
		{
			name:  "zero tokens",
			model: "deepseek-chat",
			in:    0,
			out:   0,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cost(cfg, tt.model, tt.in, tt.out, slog.Default())
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cost = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCost_NoPriceEntry(t *testing.T) {
	cfg := config.ProviderConfig{Name: "lmstudio"}
	if got := Cost(cfg, "local-model", 1000, 1000, slog.Default()); got != 0 {
		t.Errorf("Cost = %v, want 0 for unpriced model", got)
	}
}

func sampleRecords() []Record {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{ID: "a", Time: base, Provider: "deepseek", Model: "deepseek-chat",
			InputTokens: 100, OutputTokens: 50, Cost: 0.01, Latency: 2 * time.Second, Attempt: 1},
		{ID: "b", Time: base.Add(time.Minute), Provider: "deepseek", Model: "deepseek-chat",
			Kind: domain.ErrorKindRateLimited, InputTokens: 100, Latency: time.Second, Attempt: 1},
		{ID: "c", Time: base.Add(2 * time.Minute), Provider: "claude", Model: "claude-sonnet-4",
			InputTokens: 200, OutputTokens: 80, Cost: 0.05, Latency: 3 * time.Second, Attempt: 2},
	}
}

func TestSummarize(t *testing.T) {
	agg := Summarize(sampleRecords())

	if agg.Count != 3 {
		t.Errorf("Count = %d, want 3", agg.Count)
	}
	if agg.Successes != 2 {
		t.Errorf("Successes = %d, want 2", agg.Successes)
	}
	if math.Abs(agg.SuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("SuccessRate = %v", agg.SuccessRate)
	}
	if math.Abs(agg.TotalCost-0.06) > 1e-9 {
		t.Errorf("TotalCost = %v, want sum of record costs", agg.TotalCost)
	}
	if agg.TotalInputTokens != 400 || agg.TotalOutputTokens != 130 {
		t.Errorf("tokens = %d/%d", agg.TotalInputTokens, agg.TotalOutputTokens)
	}
	if agg.AverageLatency != 2*time.Second {
		t.Errorf("AverageLatency = %v, want 2s", agg.AverageLatency)
	}
}

func TestSummarize_Additive(t *testing.T) {
	recs := sampleRecords()
	agg := Summarize(recs)

	var sum float64
	for _, r := range recs {
		sum += r.Cost
	}
	if math.Abs(agg.TotalCost-sum) > 1e-9 {
		t.Errorf("TotalCost = %v, want %v", agg.TotalCost, sum)
	}
}

func TestSummarize_Idempotent(t *testing.T) {
	recs := sampleRecords()
	first := Summarize(recs)
	second := Summarize(recs)
	if first != second {
		t.Errorf("repeated aggregation differs: %+v vs %+v", first, second)
	}
}

func TestSummarize_Empty(t *testing.T) {
	agg := Summarize(nil)
	if agg.Count != 0 || agg.SuccessRate != 0 || agg.AverageLatency != 0 {
		t.Errorf("empty aggregate = %+v, want zero value", agg)
	}
}

func TestFilter_Matches(t *testing.T) {
	recs := sampleRecords()

	byProvider := Filter{Provider: "deepseek"}
	count := 0
	for _, r := range recs {
		if byProvider.Matches(r) {
			count++
		}
	}
	if count != 2 {
		t.Errorf("provider filter matched %d, want 2", count)
	}

	since := Filter{Since: recs[1].Time}
	count = 0
	for _, r := range recs {
		if since.Matches(r) {
			count++
		}
	}
	if count != 2 {
		t.Errorf("since filter matched %d, want 2", count)
	}
}
