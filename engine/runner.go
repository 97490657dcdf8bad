package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/craftedsys/durable"
	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/id"
	"github.com/craftedsys/durable/middleware"
)

// Runner orchestrates workflow execution: creating runs, building the
// scheduling Context, invoking definitions, and managing run state.
type Runner struct {
	workflows  *Registry
	activities *activity.Registry
	store      history.Store
	chain      middleware.Middleware
	extra      []middleware.Middleware
	emitter    Emitter
	logger     *slog.Logger
}

// Option configures the Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(emitter Emitter) Option {
	return func(r *Runner) { r.emitter = emitter }
}

// WithMiddleware appends invocation middleware after the defaults
// (Recover, Timeout). The first middleware given is the outermost of the
// appended group.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Runner) {
		r.extra = append(r.extra, mws...)
	}
}

// NewRunner creates a workflow runner. Every invocation attempt passes
// through Recover and Timeout middleware; use WithMiddleware to add
// logging, tracing, or metrics.
func NewRunner(
	workflows *Registry,
	activities *activity.Registry,
	store history.Store,
	opts ...Option,
) *Runner {
	r := &Runner{
		workflows:  workflows,
		activities: activities,
		store:      store,
		emitter:    NopEmitter{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	mws := []middleware.Middleware{
		middleware.Recover(r.logger),
		middleware.Timeout(r.logger),
	}
	mws = append(mws, r.extra...)
	r.chain = middleware.Chain(mws...)

	return r
}

// Workflows returns the workflow registry.
func (r *Runner) Workflows() *Registry { return r.workflows }

// Activities returns the activity registry.
func (r *Runner) Activities() *activity.Registry { return r.activities }

// Store returns the history store.
func (r *Runner) Store() history.Store { return r.store }

// Start starts a new workflow run with a typed input and blocks until it
// reaches a terminal state. The input is JSON-marshaled and stored on
// the Run.
func Start[T any](ctx context.Context, runner *Runner, name string, input T) (*history.Run, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input for workflow %q: %w", name, err)
	}
	return runner.StartRaw(ctx, name, data)
}

// StartRaw starts a workflow run with pre-serialized JSON input.
func (r *Runner) StartRaw(ctx context.Context, name string, input []byte) (*history.Run, error) {
	runner, ok := r.workflows.Get(name)
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", name, durable.ErrWorkflowNotFound)
	}

	now := time.Now().UTC()
	run := &history.Run{
		Entity:    durable.NewEntity(),
		ID:        id.NewRunID(),
		Name:      name,
		State:     history.RunStateRunning,
		Input:     input,
		StartedAt: now,
	}

	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run for workflow %q: %w", name, err)
	}

	r.emitter.EmitRunStarted(ctx, run)

	// Execute the workflow synchronously.
	r.executeRun(ctx, run, runner, input)

	return run, nil
}

// executeRun runs the workflow definition and records completion or
// failure on the run.
func (r *Runner) executeRun(ctx context.Context, run *history.Run, runner RunnerFunc, input []byte) {
	start := time.Now()

	c := newContext(ctx, run, r.store, r.activities, r.chain, r.emitter, r.logger)

	output, err := runner(c, input)
	elapsed := time.Since(start)

	now := time.Now().UTC()

	if err != nil {
		run.State = history.RunStateFailed
		run.Error = err.Error()
		run.CompletedAt = &now
		if updateErr := r.store.UpdateRun(ctx, run); updateErr != nil {
			r.logger.Error("failed to update run as failed",
				slog.String("run_id", run.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
		r.emitter.EmitRunFailed(ctx, run, err)
		return
	}

	run.State = history.RunStateCompleted
	run.Output = output
	run.CompletedAt = &now
	if updateErr := r.store.UpdateRun(ctx, run); updateErr != nil {
		r.logger.Error("failed to update run as completed",
			slog.String("run_id", run.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}
	r.emitter.EmitRunCompleted(ctx, run, elapsed)
}

// Resume resumes a workflow run that was in "running" state (crash
// recovery). The definition re-executes from the top; invocations with
// completed history entries are replayed from the log.
func (r *Runner) Resume(ctx context.Context, runID id.RunID) (*history.Run, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	if run.State != history.RunStateRunning {
		return nil, fmt.Errorf("run %s is in state %q, not running: %w", runID, run.State, durable.ErrInvalidState)
	}

	runner, ok := r.workflows.Get(run.Name)
	if !ok {
		return nil, fmt.Errorf("workflow %q (run %s): %w", run.Name, runID, durable.ErrWorkflowNotFound)
	}

	r.executeRun(ctx, run, runner, run.Input)
	return run, nil
}

// ResumeAll finds all runs in "running" state and resumes them. Called
// at startup for crash recovery.
func (r *Runner) ResumeAll(ctx context.Context) error {
	runs, err := r.store.ListRuns(ctx, history.ListOpts{State: history.RunStateRunning})
	if err != nil {
		return fmt.Errorf("list running workflow runs: %w", err)
	}

	for _, run := range runs {
		r.logger.Info("resuming workflow run",
			slog.String("run_id", run.ID.String()),
			slog.String("workflow", run.Name),
		)
		if _, resumeErr := r.Resume(ctx, run.ID); resumeErr != nil {
			r.logger.Error("failed to resume workflow run",
				slog.String("run_id", run.ID.String()),
				slog.String("error", resumeErr.Error()),
			)
		}
	}

	return nil
}
