package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/tokens"
)

// RunState is the lifecycle of one generation run.
type RunState string

const (
	RunStateRunning  RunState = "running"
	RunStateComplete RunState = "complete"
	RunStateFailed   RunState = "failed"
)

// Status is a point-in-time snapshot of a run.
type Status struct {
	ID        string    `json:"id"`
	State     RunState  `json:"state"`
	Chapter   int       `json:"chapter,omitempty"`
	Total     int       `json:"total,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
}

// Run is one in-flight or finished generation.
type Run struct {
	id     string
	cancel context.CancelFunc

	mu      sync.RWMutex
	status  Status
	novel   *Novel
	partial *NarrativeState
}

// Status returns a snapshot.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Novel returns the finished novel, nil while running or failed.
func (r *Run) Novel() *Novel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.novel
}

// Partial returns whatever narrative state exists, complete or not.
func (r *Run) Partial() *NarrativeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.partial
}

// Cancel stops the run. Already-finished runs are unaffected.
func (r *Run) Cancel() {
	r.cancel()
}

// maxRetainedRuns caps how many runs the manager keeps. Finished runs
// beyond the cap are evicted oldest-first; running runs are never evicted.
const maxRetainedRuns = 64

// Manager owns concurrent generation runs. Runs are independent; they
// share the dispatcher and therefore the registry and ledger behind it.
type Manager struct {
	caller Caller
	cfg    config.GenerationConfig
	tokens *tokens.Registry
	logger *slog.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewManager creates a run manager.
func NewManager(caller Caller, cfg config.GenerationConfig, counter *tokens.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		caller: caller,
		cfg:    cfg,
		tokens: counter,
		logger: logger,
		runs:   make(map[string]*Run),
	}
}

// Start launches a generation run and returns immediately.
func (m *Manager) Start(params Params) (*Run, error) {
	if params.Premise == "" {
		return nil, errors.New("premise is required")
	}
	if params.Chapters <= 0 {
		return nil, errors.New("chapter count must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &Run{
		id:     uuid.NewString(),
		cancel: cancel,
		status: Status{
			State:     RunStateRunning,
			Total:     params.Chapters,
			StartedAt: time.Now(),
		},
	}
	run.status.ID = run.id

	m.mu.Lock()
	m.runs[run.id] = run
	m.evictLocked()
	m.mu.Unlock()

	go m.execute(ctx, run, params)
	return run, nil
}

func (m *Manager) evictLocked() {
	for len(m.runs) > maxRetainedRuns {
		var oldest *Run
		for _, r := range m.runs {
			st := r.Status()
			if st.State == RunStateRunning {
				continue
			}
			if oldest == nil || st.EndedAt.Before(oldest.Status().EndedAt) {
				oldest = r
			}
		}
		if oldest == nil {
			return
		}
		delete(m.runs, oldest.id)
	}
}

// Get looks up a run by id.
func (m *Manager) Get(id string) (*Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	return run, ok
}

// List returns a status snapshot for every known run.
func (m *Manager) List() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statuses := make([]Status, 0, len(m.runs))
	for _, r := range m.runs {
		statuses = append(statuses, r.Status())
	}
	return statuses
}

func (m *Manager) execute(ctx context.Context, run *Run, params Params) {
	pipe := New(m.caller, m.cfg, m.tokens,
		WithLogger(m.logger.With("run", run.id)),
		WithProgress(func(chapter, total int) {
			run.mu.Lock()
			run.status.Chapter = chapter
			run.status.Total = total
			run.mu.Unlock()
		}))

	novel, state, err := pipe.Generate(ctx, params)

	run.mu.Lock()
	defer run.mu.Unlock()
	run.partial = state
	run.status.EndedAt = time.Now()
	if err != nil {
		run.status.State = RunStateFailed
		run.status.Reason = failureReason(err)
		m.logger.Error("run failed", "run", run.id, "error", err)
		return
	}
	run.novel = novel
	run.status.State = RunStateComplete
	run.status.Chapter = len(novel.Chapters)
	m.logger.Info("run complete", "run", run.id, "title", novel.Title)
}

func failureReason(err error) string {
	var outlineErr *OutlineError
	if errors.As(err, &outlineErr) {
		return fmt.Sprintf("outline synthesis failed: %v", outlineErr.Err)
	}
	var chapterErr *ChapterError
	if errors.As(err, &chapterErr) {
		return fmt.Sprintf("chapter %d failed: %v", chapterErr.Index+1, chapterErr.Err)
	}
	return err.Error()
}
