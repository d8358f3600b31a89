// Package memory is an in-memory ledger store for tests and ephemeral runs.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/storyloom/storyloom/internal/ledger"
)

// Store holds records in memory. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []ledger.Record
}

var _ ledger.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

func (s *Store) Append(ctx context.Context, record ledger.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *Store) List(ctx context.Context, filter ledger.Filter) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Record
	for _, r := range s.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Summarize(ctx context.Context, filter ledger.Filter) (ledger.Aggregate, error) {
	records, err := s.List(ctx, filter)
	if err != nil {
		return ledger.Aggregate{}, err
	}
	return ledger.Summarize(records), nil
}

func (s *Store) Close() error {
	return nil
}
