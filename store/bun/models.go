package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/craftedsys/durable"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/id"
)

// ── Run model ─────────────────────────────────────────────────────

type runModel struct {
	bun.BaseModel `bun:"table:durable_runs"`

	ID          string     `bun:"id,pk"`
	Name        string     `bun:"name,notnull"`
	State       string     `bun:"state,notnull,default:'running'"`
	Input       []byte     `bun:"input,type:bytea"`
	Output      []byte     `bun:"output,type:bytea"`
	Error       string     `bun:"error"`
	StartedAt   time.Time  `bun:"started_at,notnull,default:current_timestamp"`
	CompletedAt *time.Time `bun:"completed_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toRunModel(r *history.Run) *runModel {
	return &runModel{
		ID:          r.ID.String(),
		Name:        r.Name,
		State:       string(r.State),
		Input:       r.Input,
		Output:      r.Output,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromRunModel(m *runModel) (*history.Run, error) {
	parsedID, err := id.ParseRunID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("durable/bun: parse run id %q: %w", m.ID, err)
	}

	return &history.Run{
		Entity: durable.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Name:        m.Name,
		State:       history.RunState(m.State),
		Input:       m.Input,
		Output:      m.Output,
		Error:       m.Error,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}, nil
}

// ── History entry model ───────────────────────────────────────────

type entryModel struct {
	bun.BaseModel `bun:"table:durable_history"`

	ID          string    `bun:"id,pk"`
	RunID       string    `bun:"run_id,notnull"`
	Seq         int       `bun:"seq,notnull"`
	Key         string    `bun:"key,notnull"`
	Activity    string    `bun:"activity,notnull"`
	Digest      string    `bun:"digest,notnull,default:''"`
	Args        []byte    `bun:"args,type:bytea"`
	Attempt     int       `bun:"attempt,notnull,default:1"`
	Outcome     string    `bun:"outcome,notnull"`
	Result      []byte    `bun:"result,type:bytea"`
	Error       string    `bun:"error"`
	Class       string    `bun:"class"`
	ScheduledAt time.Time `bun:"scheduled_at,notnull,default:current_timestamp"`
	CompletedAt time.Time `bun:"completed_at,notnull,default:current_timestamp"`
	// Pos is a monotonically increasing append position assigned by the
	// database. It is never exposed; ListEntries orders by it.
	Pos int64 `bun:"pos,scanonly"`
}

func toEntryModel(e *history.Entry) *entryModel {
	return &entryModel{
		ID:          e.ID.String(),
		RunID:       e.RunID.String(),
		Seq:         e.Seq,
		Key:         e.Key,
		Activity:    e.Activity,
		Digest:      e.Digest,
		Args:        e.Args,
		Attempt:     e.Attempt,
		Outcome:     string(e.Outcome),
		Result:      e.Result,
		Error:       e.Error,
		Class:       e.Class,
		ScheduledAt: e.ScheduledAt,
		CompletedAt: e.CompletedAt,
	}
}

func fromEntryModel(m *entryModel) (*history.Entry, error) {
	parsedID, err := id.ParseInvocationID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("durable/bun: parse invocation id %q: %w", m.ID, err)
	}

	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("durable/bun: parse run id %q: %w", m.RunID, err)
	}

	return &history.Entry{
		ID:          parsedID,
		RunID:       parsedRunID,
		Seq:         m.Seq,
		Key:         m.Key,
		Activity:    m.Activity,
		Digest:      m.Digest,
		Args:        m.Args,
		Attempt:     m.Attempt,
		Outcome:     history.Outcome(m.Outcome),
		Result:      m.Result,
		Error:       m.Error,
		Class:       m.Class,
		ScheduledAt: m.ScheduledAt,
		CompletedAt: m.CompletedAt,
	}, nil
}

// ── Timer model ───────────────────────────────────────────────────

type timerModel struct {
	bun.BaseModel `bun:"table:durable_timers"`

	ID        string    `bun:"id,notnull"`
	RunID     string    `bun:"run_id,pk"`
	Key       string    `bun:"key,pk"`
	FireAt    time.Time `bun:"fire_at,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

func toTimerModel(t *history.Timer) *timerModel {
	return &timerModel{
		ID:        t.ID.String(),
		RunID:     t.RunID.String(),
		Key:       t.Key,
		FireAt:    t.FireAt,
		CreatedAt: t.CreatedAt,
	}
}

func fromTimerModel(m *timerModel) (*history.Timer, error) {
	parsedID, err := id.ParseTimerID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("durable/bun: parse timer id %q: %w", m.ID, err)
	}

	parsedRunID, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("durable/bun: parse run id %q: %w", m.RunID, err)
	}

	return &history.Timer{
		ID:        parsedID,
		RunID:     parsedRunID,
		Key:       m.Key,
		FireAt:    m.FireAt,
		CreatedAt: m.CreatedAt,
	}, nil
}
