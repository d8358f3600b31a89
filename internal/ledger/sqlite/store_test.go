package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/storyloom/storyloom/internal/domain"
	"github.com/storyloom/storyloom/internal/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	records := []ledger.Record{
		{Time: base, Provider: "deepseek", Model: "deepseek-chat",
			InputTokens: 100, OutputTokens: 50, Cost: 0.01, Latency: 2 * time.Second, Attempt: 1},
		{Time: base.Add(time.Minute), Provider: "deepseek", Model: "deepseek-chat",
			Kind: domain.ErrorKindTimeout, Latency: time.Second, Attempt: 2},
		{Time: base.Add(2 * time.Minute), Provider: "claude", Model: "claude-sonnet-4",
			InputTokens: 200, OutputTokens: 80, Cost: 0.05, Latency: 3 * time.Second, Attempt: 1},
	}
	for _, r := range records {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	all, err := store.List(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List = %d records, want 3", len(all))
	}
	if all[1].Kind != domain.ErrorKindTimeout {
		t.Errorf("Kind = %v, want Timeout round-tripped", all[1].Kind)
	}
	if all[0].Latency != 2*time.Second {
		t.Errorf("Latency = %v, want 2s round-tripped", all[0].Latency)
	}

	byProvider, err := store.List(ctx, ledger.Filter{Provider: "claude"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byProvider) != 1 || byProvider[0].Model != "claude-sonnet-4" {
		t.Errorf("filtered = %+v", byProvider)
	}

	since, err := store.List(ctx, ledger.Filter{Since: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("since filter = %d records, want 2", len(since))
	}
}

func TestStore_Summarize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Append(ctx, ledger.Record{Time: time.Now(), Provider: "deepseek",
		Model: "deepseek-chat", Cost: 0.01, Latency: time.Second, Attempt: 1})
	store.Append(ctx, ledger.Record{Time: time.Now(), Provider: "deepseek",
		Model: "deepseek-chat", Kind: domain.ErrorKindRateLimited, Latency: time.Second, Attempt: 1})

	agg, err := store.Summarize(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if agg.Count != 2 || agg.Successes != 1 {
		t.Errorf("aggregate = %+v", agg)
	}

	again, err := store.Summarize(ctx, ledger.Filter{})
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if agg != again {
		t.Errorf("repeated aggregation differs")
	}
}
