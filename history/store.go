package history

import (
	"context"

	"github.com/craftedsys/durable/id"
)

// Store defines the persistence contract for workflow histories.
//
// A run's history has a single writer (its engine context); the store
// serializes appends so concurrent parallel-branch attempts cannot
// interleave partial writes. Implementations must never mutate an entry
// after AppendEntry returns.
type Store interface {
	// CreateRun persists a new workflow run.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a workflow run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists changes to an existing workflow run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns workflow runs matching the given options.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// AppendEntry appends an attempt record to a run's history.
	AppendEntry(ctx context.Context, entry *Entry) error

	// CompletedEntry returns the completed entry at the given position
	// key, or durable.ErrEntryNotFound if no attempt at that position
	// has completed.
	CompletedEntry(ctx context.Context, runID id.RunID, key string) (*Entry, error)

	// LatestEntry returns the most recent entry (any outcome) at the
	// given position key, or durable.ErrEntryNotFound.
	LatestEntry(ctx context.Context, runID id.RunID, key string) (*Entry, error)

	// CountFailures returns the number of failed attempts recorded at
	// the given position key.
	CountFailures(ctx context.Context, runID id.RunID, key string) (int, error)

	// ListEntries returns a run's history ordered by append order.
	ListEntries(ctx context.Context, runID id.RunID) ([]*Entry, error)

	// SaveTimer persists a durable timer. Saving an existing (run, key)
	// timer replaces it.
	SaveTimer(ctx context.Context, timer *Timer) error

	// GetTimer retrieves the timer for a position key, or
	// durable.ErrTimerNotFound.
	GetTimer(ctx context.Context, runID id.RunID, key string) (*Timer, error)

	// DeleteTimer removes a fired timer. Deleting a missing timer is
	// not an error.
	DeleteTimer(ctx context.Context, runID id.RunID, key string) error
}
