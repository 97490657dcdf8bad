package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/craftedsys/durable"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/id"
)

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *history.Run) error {
	rID := run.ID.String()
	key := runKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("durable/redis: create run exists: %w", err)
	}
	if exists > 0 {
		return durable.ErrRunAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, runToMap(run))
	pipe.SAdd(ctx, runIDsKey, rID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("durable/redis: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*history.Run, error) {
	key := runKey(runID.String())
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("durable/redis: get run: %w", err)
	}
	if len(vals) == 0 {
		return nil, durable.ErrRunNotFound
	}
	return mapToRun(vals)
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *history.Run) error {
	key := runKey(run.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("durable/redis: update run exists: %w", err)
	}
	if exists == 0 {
		return durable.ErrRunNotFound
	}

	m := runToMap(run)
	m["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.HSet(ctx, key, m).Result()
	if err != nil {
		return fmt.Errorf("durable/redis: update run: %w", err)
	}
	return nil
}

// ListRuns returns workflow runs matching the given options.
func (s *Store) ListRuns(ctx context.Context, opts history.ListOpts) ([]*history.Run, error) {
	ids, err := s.client.SMembers(ctx, runIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("durable/redis: list runs smembers: %w", err)
	}

	var runs []*history.Run
	for _, rID := range ids {
		vals, getErr := s.client.HGetAll(ctx, runKey(rID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		r, convErr := mapToRun(vals)
		if convErr != nil {
			continue
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		runs = append(runs, r)
	}

	if opts.Offset > 0 && opts.Offset < len(runs) {
		runs = runs[opts.Offset:]
	} else if opts.Offset >= len(runs) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(runs) {
		runs = runs[:opts.Limit]
	}
	return runs, nil
}

// AppendEntry appends an attempt record to a run's history.
func (s *Store) AppendEntry(ctx context.Context, entry *history.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("durable/redis: marshal entry: %w", err)
	}
	if err := s.client.RPush(ctx, historyKey(entry.RunID.String()), data).Err(); err != nil {
		return fmt.Errorf("durable/redis: append entry: %w", err)
	}
	return nil
}

// scanEntries loads a run's full history in append order.
func (s *Store) scanEntries(ctx context.Context, runID id.RunID) ([]*history.Entry, error) {
	raw, err := s.client.LRange(ctx, historyKey(runID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("durable/redis: scan entries: %w", err)
	}

	entries := make([]*history.Entry, 0, len(raw))
	for _, item := range raw {
		e := new(history.Entry)
		if unmarshalErr := json.Unmarshal([]byte(item), e); unmarshalErr != nil {
			return nil, fmt.Errorf("durable/redis: unmarshal entry: %w", unmarshalErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// CompletedEntry returns the completed entry at the given position key.
func (s *Store) CompletedEntry(ctx context.Context, runID id.RunID, key string) (*history.Entry, error) {
	entries, err := s.scanEntries(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Key == key && e.Outcome == history.OutcomeCompleted {
			return e, nil
		}
	}
	return nil, durable.ErrEntryNotFound
}

// LatestEntry returns the most recent entry at the given position key.
func (s *Store) LatestEntry(ctx context.Context, runID id.RunID, key string) (*history.Entry, error) {
	entries, err := s.scanEntries(ctx, runID)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Key == key {
			return entries[i], nil
		}
	}
	return nil, durable.ErrEntryNotFound
}

// CountFailures returns the number of failed attempts at the given
// position key.
func (s *Store) CountFailures(ctx context.Context, runID id.RunID, key string) (int, error) {
	entries, err := s.scanEntries(ctx, runID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.Key == key && e.Outcome == history.OutcomeFailed {
			count++
		}
	}
	return count, nil
}

// ListEntries returns a run's history ordered by append order.
func (s *Store) ListEntries(ctx context.Context, runID id.RunID) ([]*history.Entry, error) {
	return s.scanEntries(ctx, runID)
}

// SaveTimer persists a durable timer, replacing any timer already stored
// for the same (run, key).
func (s *Store) SaveTimer(ctx context.Context, timer *history.Timer) error {
	err := s.client.HSet(ctx, timerKey(timer.RunID.String(), timer.Key),
		"id", timer.ID.String(),
		"run_id", timer.RunID.String(),
		"key", timer.Key,
		"fire_at", timer.FireAt.Format(time.RFC3339Nano),
		"created_at", timer.CreatedAt.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("durable/redis: save timer: %w", err)
	}
	return nil
}

// GetTimer retrieves the timer for a position key.
func (s *Store) GetTimer(ctx context.Context, runID id.RunID, key string) (*history.Timer, error) {
	vals, err := s.client.HGetAll(ctx, timerKey(runID.String(), key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, durable.ErrTimerNotFound
		}
		return nil, fmt.Errorf("durable/redis: get timer: %w", err)
	}
	if len(vals) == 0 {
		return nil, durable.ErrTimerNotFound
	}

	tID, err := id.ParseTimerID(vals["id"])
	if err != nil {
		return nil, fmt.Errorf("durable/redis: parse timer id: %w", err)
	}
	rID, err := id.ParseRunID(vals["run_id"])
	if err != nil {
		return nil, fmt.Errorf("durable/redis: parse run id: %w", err)
	}

	fireAt, _ := time.Parse(time.RFC3339Nano, vals["fire_at"])
	createdAt, _ := time.Parse(time.RFC3339Nano, vals["created_at"])

	return &history.Timer{
		ID:        tID,
		RunID:     rID,
		Key:       vals["key"],
		FireAt:    fireAt,
		CreatedAt: createdAt,
	}, nil
}

// DeleteTimer removes a fired timer. Deleting a missing timer is not an
// error.
func (s *Store) DeleteTimer(ctx context.Context, runID id.RunID, key string) error {
	if err := s.client.Del(ctx, timerKey(runID.String(), key)).Err(); err != nil {
		return fmt.Errorf("durable/redis: delete timer: %w", err)
	}
	return nil
}

// ── helpers ──

func runToMap(r *history.Run) map[string]interface{} {
	m := map[string]interface{}{
		"id":         r.ID.String(),
		"name":       r.Name,
		"state":      string(r.State),
		"input":      string(r.Input),
		"output":     string(r.Output),
		"error":      r.Error,
		"started_at": r.StartedAt.Format(time.RFC3339Nano),
		"created_at": r.Entity.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": r.Entity.UpdatedAt.Format(time.RFC3339Nano),
	}
	if r.CompletedAt != nil {
		m["completed_at"] = r.CompletedAt.Format(time.RFC3339Nano)
	}
	return m
}

func mapToRun(m map[string]string) (*history.Run, error) {
	rID, err := id.ParseRunID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("durable/redis: parse run id: %w", err)
	}

	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"])
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])

	r := &history.Run{
		Entity: durable.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:        rID,
		Name:      m["name"],
		State:     history.RunState(m["state"]),
		Input:     []byte(m["input"]),
		Output:    []byte(m["output"]),
		Error:     m["error"],
		StartedAt: startedAt,
	}

	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v)
		r.CompletedAt = &t
	}
	return r, nil
}
