package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/craftedsys/durable/history"
)

// Emitter receives workflow and invocation lifecycle events. Emitters
// must be fast and non-blocking; the engine calls them inline.
type Emitter interface {
	EmitRunStarted(ctx context.Context, run *history.Run)
	EmitRunCompleted(ctx context.Context, run *history.Run, elapsed time.Duration)
	EmitRunFailed(ctx context.Context, run *history.Run, err error)
	EmitActivityCompleted(ctx context.Context, run *history.Run, key string, elapsed time.Duration)
	EmitActivityFailed(ctx context.Context, run *history.Run, key string, err error)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) EmitRunStarted(context.Context, *history.Run)                          {}
func (NopEmitter) EmitRunCompleted(context.Context, *history.Run, time.Duration)         {}
func (NopEmitter) EmitRunFailed(context.Context, *history.Run, error)                    {}
func (NopEmitter) EmitActivityCompleted(context.Context, *history.Run, string, time.Duration) {
}
func (NopEmitter) EmitActivityFailed(context.Context, *history.Run, string, error) {}

// SlogEmitter logs lifecycle events through a structured logger.
type SlogEmitter struct {
	Logger *slog.Logger
}

func (e SlogEmitter) EmitRunStarted(_ context.Context, run *history.Run) {
	e.Logger.Info("workflow started",
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", run.Name),
	)
}

func (e SlogEmitter) EmitRunCompleted(_ context.Context, run *history.Run, elapsed time.Duration) {
	e.Logger.Info("workflow completed",
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", run.Name),
		slog.Duration("elapsed", elapsed),
	)
}

func (e SlogEmitter) EmitRunFailed(_ context.Context, run *history.Run, err error) {
	e.Logger.Error("workflow failed",
		slog.String("run_id", run.ID.String()),
		slog.String("workflow", run.Name),
		slog.String("error", err.Error()),
	)
}

func (e SlogEmitter) EmitActivityCompleted(_ context.Context, run *history.Run, key string, elapsed time.Duration) {
	e.Logger.Debug("activity completed",
		slog.String("run_id", run.ID.String()),
		slog.String("key", key),
		slog.Duration("elapsed", elapsed),
	)
}

func (e SlogEmitter) EmitActivityFailed(_ context.Context, run *history.Run, key string, err error) {
	e.Logger.Warn("activity attempt failed",
		slog.String("run_id", run.ID.String()),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
