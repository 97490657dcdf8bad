// Package history defines the durable execution log of a workflow run:
// the run record itself, one immutable entry per activity attempt, durable
// timers for retry backoff, and the store interface backends implement.
//
// The history is append-only. A workflow's future behavior is a pure
// function of its input and the history recorded so far: the engine never
// consults an activity result that has not first been appended. Entries
// recorded as completed are never re-executed on replay.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/craftedsys/durable"
	"github.com/craftedsys/durable/id"
)

// RunState represents the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateRunning means the workflow is currently executing.
	RunStateRunning RunState = "running"
	// RunStateCompleted means the workflow finished with a terminal value.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means the workflow failed terminally.
	RunStateFailed RunState = "failed"
)

// Run represents a single execution of a workflow.
type Run struct {
	durable.Entity

	ID          id.RunID   `json:"id"`
	Name        string     `json:"name"`
	State       RunState   `json:"state"`
	Input       []byte     `json:"input,omitempty"`
	Output      []byte     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Outcome is the recorded result of one activity attempt.
type Outcome string

const (
	// OutcomeCompleted means the attempt produced a result.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the attempt produced a classified failure.
	OutcomeFailed Outcome = "failed"
)

// Entry is one activity attempt in a run's history. Entries are immutable
// once appended; a retried attempt is a new Entry, never a mutation of a
// prior one.
type Entry struct {
	ID          id.InvocationID `json:"id"`
	RunID       id.RunID        `json:"run_id"`
	Seq         int             `json:"seq"`
	Key         string          `json:"key"`
	Activity    string          `json:"activity"`
	Digest      string          `json:"digest"`
	Args        []byte          `json:"args,omitempty"`
	Attempt     int             `json:"attempt"`
	Outcome     Outcome         `json:"outcome"`
	Result      []byte          `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Class       string          `json:"class,omitempty"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Timer is a durable retry-backoff delay. It is persisted before the
// engine waits, so a process restart resumes the wait against the stored
// fire time instead of restarting it.
type Timer struct {
	ID        id.TimerID `json:"id"`
	RunID     id.RunID   `json:"run_id"`
	Key       string     `json:"key"`
	FireAt    time.Time  `json:"fire_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Key builds the position key for a scheduling call: the sequence number
// the call consumed, in issue order, plus the activity name. Replay
// matches on this key, so two runs of the same deterministic workflow
// produce identical keys regardless of real-time completion order.
func Key(seq int, activity string) string {
	return fmt.Sprintf("%04d:%s", seq, activity)
}

// Digest returns the hex sha256 of the canonical JSON encoding of the
// argument list. It is stored per entry and verified on replay to detect
// nondeterministic workflow definitions.
func Digest(args []json.RawMessage) string {
	h := sha256.New()
	for i, a := range args {
		fmt.Fprintf(h, "%d:", i)
		h.Write(a)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ListOpts controls filtering and pagination for run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// State filters by run state. Empty means all states.
	State RunState
}
