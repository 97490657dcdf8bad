package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/craftedsys/durable"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/id"
)

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *history.Run) error {
	m := toRunModel(run)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return durable.ErrRunAlreadyExists
		}
		return fmt.Errorf("durable/bun: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*history.Run, error) {
	m := new(runModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", runID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, durable.ErrRunNotFound
		}
		return nil, fmt.Errorf("durable/bun: get run: %w", err)
	}
	return fromRunModel(m)
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *history.Run) error {
	m := toRunModel(run)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("durable/bun: update run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return durable.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs matching the given options.
func (s *Store) ListRuns(ctx context.Context, opts history.ListOpts) ([]*history.Run, error) {
	var models []runModel
	q := s.db.NewSelect().Model(&models)

	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	q = q.Order("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("durable/bun: list runs: %w", err)
	}

	runs := make([]*history.Run, 0, len(models))
	for i := range models {
		r, convErr := fromRunModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("durable/bun: list convert: %w", convErr)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// AppendEntry appends an attempt record to a run's history.
func (s *Store) AppendEntry(ctx context.Context, entry *history.Entry) error {
	m := toEntryModel(entry)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("durable/bun: append entry: %w", err)
	}
	return nil
}

// CompletedEntry returns the completed entry at the given position key.
func (s *Store) CompletedEntry(ctx context.Context, runID id.RunID, key string) (*history.Entry, error) {
	m := new(entryModel)
	err := s.db.NewSelect().Model(m).
		Where("run_id = ?", runID.String()).
		Where("key = ?", key).
		Where("outcome = ?", string(history.OutcomeCompleted)).
		Order("pos ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, durable.ErrEntryNotFound
		}
		return nil, fmt.Errorf("durable/bun: completed entry: %w", err)
	}
	return fromEntryModel(m)
}

// LatestEntry returns the most recent entry at the given position key.
func (s *Store) LatestEntry(ctx context.Context, runID id.RunID, key string) (*history.Entry, error) {
	m := new(entryModel)
	err := s.db.NewSelect().Model(m).
		Where("run_id = ?", runID.String()).
		Where("key = ?", key).
		Order("pos DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, durable.ErrEntryNotFound
		}
		return nil, fmt.Errorf("durable/bun: latest entry: %w", err)
	}
	return fromEntryModel(m)
}

// CountFailures returns the number of failed attempts at the given
// position key.
func (s *Store) CountFailures(ctx context.Context, runID id.RunID, key string) (int, error) {
	count, err := s.db.NewSelect().Model((*entryModel)(nil)).
		Where("run_id = ?", runID.String()).
		Where("key = ?", key).
		Where("outcome = ?", string(history.OutcomeFailed)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("durable/bun: count failures: %w", err)
	}
	return count, nil
}

// ListEntries returns a run's history ordered by append order.
func (s *Store) ListEntries(ctx context.Context, runID id.RunID) ([]*history.Entry, error) {
	var models []entryModel
	err := s.db.NewSelect().Model(&models).
		Where("run_id = ?", runID.String()).
		Order("pos ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("durable/bun: list entries: %w", err)
	}

	entries := make([]*history.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromEntryModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("durable/bun: list convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SaveTimer persists a durable timer, replacing any timer already stored
// for the same (run, key).
func (s *Store) SaveTimer(ctx context.Context, timer *history.Timer) error {
	m := toTimerModel(timer)
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (run_id, key) DO UPDATE").
		Set("id = EXCLUDED.id").
		Set("fire_at = EXCLUDED.fire_at").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("durable/bun: save timer: %w", err)
	}
	return nil
}

// GetTimer retrieves the timer for a position key.
func (s *Store) GetTimer(ctx context.Context, runID id.RunID, key string) (*history.Timer, error) {
	m := new(timerModel)
	err := s.db.NewSelect().Model(m).
		Where("run_id = ?", runID.String()).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, durable.ErrTimerNotFound
		}
		return nil, fmt.Errorf("durable/bun: get timer: %w", err)
	}
	return fromTimerModel(m)
}

// DeleteTimer removes a fired timer. Deleting a missing timer is not an
// error.
func (s *Store) DeleteTimer(ctx context.Context, runID id.RunID, key string) error {
	_, err := s.db.NewDelete().
		TableExpr("durable_timers").
		Where("run_id = ?", runID.String()).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("durable/bun: delete timer: %w", err)
	}
	return nil
}
