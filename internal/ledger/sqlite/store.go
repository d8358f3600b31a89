// Package sqlite persists the usage ledger in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/storyloom/storyloom/internal/domain"
	"github.com/storyloom/storyloom/internal/ledger"
)

// Store is a SQLite implementation of the ledger store.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// New opens or creates the ledger database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			time TIMESTAMP NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			cost REAL NOT NULL,
			latency_ns INTEGER NOT NULL,
			attempt INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_provider ON call_records(provider)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_time ON call_records(time)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) Append(ctx context.Context, record ledger.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_records
			(id, time, provider, model, kind, input_tokens, output_tokens, cost, latency_ns, attempt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Time.UTC(), record.Provider, record.Model, string(record.Kind),
		record.InputTokens, record.OutputTokens, record.Cost,
		record.Latency.Nanoseconds(), record.Attempt)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter ledger.Filter) ([]ledger.Record, error) {
	query := `SELECT id, time, provider, model, kind, input_tokens, output_tokens, cost, latency_ns, attempt
		FROM call_records WHERE 1=1`
	var args []any
	if filter.Provider != "" {
		query += " AND provider = ?"
		args = append(args, filter.Provider)
	}
	if !filter.Since.IsZero() {
		query += " AND time >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += " ORDER BY time"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []ledger.Record
	for rows.Next() {
		var r ledger.Record
		var kind string
		var latencyNS int64
		var ts time.Time
		if err := rows.Scan(&r.ID, &ts, &r.Provider, &r.Model, &kind,
			&r.InputTokens, &r.OutputTokens, &r.Cost, &latencyNS, &r.Attempt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Time = ts
		r.Kind = domain.ErrorKind(kind)
		r.Latency = time.Duration(latencyNS)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) Summarize(ctx context.Context, filter ledger.Filter) (ledger.Aggregate, error) {
	records, err := s.List(ctx, filter)
	if err != nil {
		return ledger.Aggregate{}, err
	}
	return ledger.Summarize(records), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
