// Package memory provides a fully in-memory history.Store. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/craftedsys/durable"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/id"
)

var _ history.Store = (*Store)(nil)

// Store is an in-memory implementation of history.Store.
type Store struct {
	mu sync.RWMutex

	runs    map[string]*history.Run
	entries map[string][]*history.Entry // key: runID, append order
	timers  map[string]*history.Timer   // key: "runID:positionKey"
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:    make(map[string]*history.Run),
		entries: make(map[string][]*history.Entry),
		timers:  make(map[string]*history.Timer),
	}
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Runs
// ──────────────────────────────────────────────────

// CreateRun persists a new workflow run.
func (m *Store) CreateRun(_ context.Context, run *history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return durable.ErrRunAlreadyExists
	}
	cp := *run
	m.runs[key] = &cp
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*history.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, durable.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateRun persists changes to an existing workflow run.
func (m *Store) UpdateRun(_ context.Context, run *history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, ok := m.runs[key]; !ok {
		return durable.ErrRunNotFound
	}
	cp := *run
	cp.UpdatedAt = time.Now().UTC()
	m.runs[key] = &cp
	return nil
}

// ListRuns returns workflow runs matching the given options.
func (m *Store) ListRuns(_ context.Context, opts history.ListOpts) ([]*history.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*history.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.State != "" && r.State != opts.State {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// ──────────────────────────────────────────────────
// History entries
// ──────────────────────────────────────────────────

// AppendEntry appends an attempt record to a run's history.
func (m *Store) AppendEntry(_ context.Context, entry *history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.RunID.String()
	if _, ok := m.runs[key]; !ok {
		return durable.ErrRunNotFound
	}
	cp := *entry
	m.entries[key] = append(m.entries[key], &cp)
	return nil
}

// CompletedEntry returns the completed entry at the given position key.
func (m *Store) CompletedEntry(_ context.Context, runID id.RunID, key string) (*history.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[runID.String()] {
		if e.Key == key && e.Outcome == history.OutcomeCompleted {
			cp := *e
			return &cp, nil
		}
	}
	return nil, durable.ErrEntryNotFound
}

// LatestEntry returns the most recent entry at the given position key.
func (m *Store) LatestEntry(_ context.Context, runID id.RunID, key string) (*history.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.entries[runID.String()]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Key == key {
			cp := *entries[i]
			return &cp, nil
		}
	}
	return nil, durable.ErrEntryNotFound
}

// CountFailures returns the number of failed attempts at the given
// position key.
func (m *Store) CountFailures(_ context.Context, runID id.RunID, key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries[runID.String()] {
		if e.Key == key && e.Outcome == history.OutcomeFailed {
			count++
		}
	}
	return count, nil
}

// ListEntries returns a run's history ordered by append order.
func (m *Store) ListEntries(_ context.Context, runID id.RunID) ([]*history.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.entries[runID.String()]
	result := make([]*history.Entry, len(entries))
	for i, e := range entries {
		cp := *e
		result[i] = &cp
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Timers
// ──────────────────────────────────────────────────

// timerKey builds a composite map key for a timer.
func timerKey(runID id.RunID, key string) string {
	return runID.String() + ":" + key
}

// SaveTimer persists a durable timer, replacing any timer already stored
// for the same (run, key).
func (m *Store) SaveTimer(_ context.Context, timer *history.Timer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *timer
	m.timers[timerKey(timer.RunID, timer.Key)] = &cp
	return nil
}

// GetTimer retrieves the timer for a position key.
func (m *Store) GetTimer(_ context.Context, runID id.RunID, key string) (*history.Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.timers[timerKey(runID, key)]
	if !ok {
		return nil, durable.ErrTimerNotFound
	}
	cp := *t
	return &cp, nil
}

// DeleteTimer removes a fired timer. Deleting a missing timer is not an
// error.
func (m *Store) DeleteTimer(_ context.Context, runID id.RunID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.timers, timerKey(runID, key))
	return nil
}
