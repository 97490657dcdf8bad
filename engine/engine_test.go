package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/craftedsys/durable"
	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/backoff"
	"github.com/craftedsys/durable/engine"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/id"
	"github.com/craftedsys/durable/retry"
	"github.com/craftedsys/durable/store/memory"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner() (*engine.Runner, *engine.Registry, *activity.Registry, *memory.Store) {
	s := memory.New()
	workflows := engine.NewRegistry()
	activities := activity.NewRegistry()
	runner := engine.NewRunner(workflows, activities, s,
		engine.WithLogger(testLogger()),
		engine.WithEmitter(engine.NopEmitter{}),
	)
	return runner, workflows, activities, s
}

type pipelineInput struct {
	File string `json:"file"`
}

func TestRunner_StartAndComplete(t *testing.T) {
	runner, workflows, activities, s := newTestRunner()

	activities.Register("greet", func(_ context.Context, args []json.RawMessage) (any, error) {
		var name string
		if err := activity.Decode(args, &name); err != nil {
			return nil, err
		}
		return "hello " + name, nil
	})

	engine.RegisterDefinition(workflows, engine.NewWorkflow("greet-wf",
		func(c *engine.Context, input pipelineInput) (any, error) {
			return engine.Schedule[string](c, "greet", engine.Options{}, input.File)
		},
	))

	run, err := engine.Start(context.Background(), runner, "greet-wf", pipelineInput{File: "world"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if run.State != history.RunStateCompleted {
		t.Errorf("run state = %q, want %q", run.State, history.RunStateCompleted)
	}
	if run.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	var out string
	if err := json.Unmarshal(run.Output, &out); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if out != "hello world" {
		t.Errorf("output = %q, want %q", out, "hello world")
	}

	stored, err := s.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.State != history.RunStateCompleted {
		t.Errorf("stored state = %q, want %q", stored.State, history.RunStateCompleted)
	}
}

func TestRunner_StartAndFail(t *testing.T) {
	runner, workflows, _, s := newTestRunner()

	engine.RegisterDefinition(workflows, engine.NewWorkflow("fail-wf",
		func(_ *engine.Context, _ struct{}) (any, error) {
			return nil, errors.New("intentional failure")
		},
	))

	run, err := engine.Start(context.Background(), runner, "fail-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if run.State != history.RunStateFailed {
		t.Errorf("run state = %q, want %q", run.State, history.RunStateFailed)
	}
	if run.Error != "intentional failure" {
		t.Errorf("run error = %q, want %q", run.Error, "intentional failure")
	}

	stored, err := s.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.State != history.RunStateFailed {
		t.Errorf("stored state = %q, want %q", stored.State, history.RunStateFailed)
	}
}

func TestRunner_StartUnknownWorkflow(t *testing.T) {
	runner, _, _, _ := newTestRunner()

	_, err := engine.Start(context.Background(), runner, "nonexistent", struct{}{})
	if !errors.Is(err, durable.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestRunner_UnknownActivityFailsRun(t *testing.T) {
	runner, workflows, _, _ := newTestRunner()

	engine.RegisterDefinition(workflows, engine.NewWorkflow("missing-act-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			return c.ScheduleActivity("not-registered", engine.Options{})
		},
	))

	run, err := engine.Start(context.Background(), runner, "missing-act-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != history.RunStateFailed {
		t.Fatalf("run state = %q, want failed", run.State)
	}
	if !strings.Contains(run.Error, "not registered") {
		t.Errorf("run error = %q, want activity-not-registered", run.Error)
	}
}

func TestRunner_ReplaySkipsCompletedInvocations(t *testing.T) {
	runner, workflows, activities, s := newTestRunner()

	var calls int32
	activities.Register("count", func(_ context.Context, _ []json.RawMessage) (any, error) {
		atomic.AddInt32(&calls, 1)
		return int(atomic.LoadInt32(&calls)), nil
	})

	engine.RegisterDefinition(workflows, engine.NewWorkflow("replay-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			first, err := engine.Schedule[int](c, "count", engine.Options{})
			if err != nil {
				return nil, err
			}
			second, err := engine.Schedule[int](c, "count", engine.Options{})
			if err != nil {
				return nil, err
			}
			return []int{first, second}, nil
		},
	))

	run, err := engine.Start(context.Background(), runner, "replay-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}

	// Simulate a crash after completion was recorded but before the run
	// state was updated.
	run.State = history.RunStateRunning
	run.CompletedAt = nil
	if err := s.UpdateRun(context.Background(), run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	resumed, err := runner.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.State != history.RunStateCompleted {
		t.Fatalf("resumed state = %q, want completed", resumed.State)
	}

	// Both invocations were replayed from the log; the handler never ran
	// again.
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls after resume = %d, want 2", got)
	}

	var out []int
	if err := json.Unmarshal(resumed.Output, &out); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(out) != 2 || out[0] != 1 || out[1] != 2 {
		t.Errorf("output = %v, want [1 2]", out)
	}
}

func TestRunner_RetryExhaustion(t *testing.T) {
	runner, workflows, activities, _ := newTestRunner()

	var calls int32
	activities.Register("flaky", func(_ context.Context, _ []json.RawMessage) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, retry.Transient(errors.New("upstream unavailable"))
	})

	var gotErr error
	engine.RegisterDefinition(workflows, engine.NewWorkflow("exhaust-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			_, err := c.ScheduleActivity("flaky", engine.Options{
				Retry: retry.Policy{MaxAttempts: 2},
			})
			gotErr = err
			return nil, err
		},
	))

	run, err := engine.Start(context.Background(), runner, "exhaust-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if run.State != history.RunStateFailed {
		t.Fatalf("run state = %q, want failed", run.State)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want exactly 2 for MaxAttempts=2", got)
	}

	var actErr *engine.ActivityError
	if !errors.As(gotErr, &actErr) {
		t.Fatalf("expected *engine.ActivityError, got %T", gotErr)
	}
	if actErr.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", actErr.Attempts)
	}
	if !actErr.Exhausted {
		t.Error("expected Exhausted")
	}
	if !errors.Is(gotErr, durable.ErrAttemptsExhausted) {
		t.Error("expected errors.Is(err, ErrAttemptsExhausted)")
	}
}

func TestRunner_PermanentFailureNeverRetried(t *testing.T) {
	runner, workflows, activities, _ := newTestRunner()

	var calls int32
	activities.Register("broken", func(_ context.Context, _ []json.RawMessage) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, retry.Permanent(errors.New("malformed input"))
	})

	var gotErr error
	engine.RegisterDefinition(workflows, engine.NewWorkflow("permanent-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			_, err := c.ScheduleActivity("broken", engine.Options{
				Retry: retry.Policy{MaxAttempts: 5},
			})
			gotErr = err
			return nil, err
		},
	))

	run, err := engine.Start(context.Background(), runner, "permanent-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != history.RunStateFailed {
		t.Fatalf("run state = %q, want failed", run.State)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1 (permanent failures are never retried)", got)
	}

	var actErr *engine.ActivityError
	if !errors.As(gotErr, &actErr) {
		t.Fatalf("expected *engine.ActivityError, got %T", gotErr)
	}
	if actErr.Class != retry.ClassPermanent {
		t.Errorf("Class = %q, want permanent", actErr.Class)
	}
	if actErr.Exhausted {
		t.Error("permanent failure must not report Exhausted")
	}
}

func TestRunner_AttemptCountingSurvivesRestart(t *testing.T) {
	runner, workflows, activities, s := newTestRunner()

	var calls int32
	activities.Register("billed", func(_ context.Context, _ []json.RawMessage) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, retry.Transient(errors.New("attempt failed"))
	})

	// The definition aborts the whole run after the first attempt fails,
	// simulating a crash mid-retry: one failure is in the history, the
	// run is still running.
	engine.RegisterDefinition(workflows, engine.NewWorkflow("restart-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			if atomic.LoadInt32(&calls) == 0 {
				_, err := c.ScheduleActivity("billed", engine.Options{
					Retry: retry.Policy{MaxAttempts: 1},
				})
				return nil, err
			}
			_, err := c.ScheduleActivity("billed", engine.Options{
				Retry: retry.Policy{MaxAttempts: 2},
			})
			return nil, err
		},
	))

	run, err := engine.Start(context.Background(), runner, "restart-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1 before restart", got)
	}

	// Put the run back into running state and resume with a 2-attempt
	// budget. One failure is already recorded, so exactly one more
	// attempt is allowed.
	run.State = history.RunStateRunning
	run.CompletedAt = nil
	if err := s.UpdateRun(context.Background(), run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	if _, err := runner.Resume(context.Background(), run.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls after resume = %d, want 2 (recorded failure consumed one attempt)", got)
	}
}

func TestRunner_DigestMismatchCorruptsHistory(t *testing.T) {
	runner, workflows, activities, s := newTestRunner()

	activities.Register("echo", func(_ context.Context, args []json.RawMessage) (any, error) {
		var v string
		if err := activity.Decode(args, &v); err != nil {
			return nil, err
		}
		return v, nil
	})

	arg := "original"
	engine.RegisterDefinition(workflows, engine.NewWorkflow("drift-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			return c.ScheduleActivity("echo", engine.Options{}, arg)
		},
	))

	run, err := engine.Start(context.Background(), runner, "drift-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != history.RunStateCompleted {
		t.Fatalf("run state = %q, want completed", run.State)
	}

	// The definition now schedules different args at the same position.
	arg = "drifted"
	run.State = history.RunStateRunning
	run.CompletedAt = nil
	if err := s.UpdateRun(context.Background(), run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	resumed, err := runner.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.State != history.RunStateFailed {
		t.Fatalf("resumed state = %q, want failed", resumed.State)
	}
	if !strings.Contains(resumed.Error, durable.ErrHistoryCorrupt.Error()) {
		t.Errorf("run error = %q, want history corrupt", resumed.Error)
	}
}

func TestRunner_ParallelDeterministicOrder(t *testing.T) {
	runner, workflows, activities, s := newTestRunner()

	// "slow" completes after "fast", but its declaration position comes
	// first, so its sequence key and result position must come first.
	activities.Register("slow", func(_ context.Context, _ []json.RawMessage) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow", nil
	})
	activities.Register("fast", func(_ context.Context, _ []json.RawMessage) (any, error) {
		return "fast", nil
	})

	engine.RegisterDefinition(workflows, engine.NewWorkflow("parallel-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			results, err := c.ScheduleParallel(
				engine.Call{Activity: "slow"},
				engine.Call{Activity: "fast"},
			)
			if err != nil {
				return nil, err
			}
			out := make([]string, len(results))
			for i, r := range results {
				if err := json.Unmarshal(r, &out[i]); err != nil {
					return nil, err
				}
			}
			return out, nil
		},
	))

	run, err := engine.Start(context.Background(), runner, "parallel-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != history.RunStateCompleted {
		t.Fatalf("run state = %q, want completed", run.State)
	}

	var out []string
	if err := json.Unmarshal(run.Output, &out); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(out) != 2 || out[0] != "slow" || out[1] != "fast" {
		t.Errorf("output = %v, want [slow fast] in declaration order", out)
	}

	// Sequence keys were assigned in declaration order regardless of
	// completion order.
	entries, err := s.ListEntries(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	keys := map[string]string{}
	for _, e := range entries {
		keys[e.Activity] = e.Key
	}
	if keys["slow"] != history.Key(0, "slow") {
		t.Errorf("slow key = %q, want %q", keys["slow"], history.Key(0, "slow"))
	}
	if keys["fast"] != history.Key(1, "fast") {
		t.Errorf("fast key = %q, want %q", keys["fast"], history.Key(1, "fast"))
	}
}

func TestRunner_ParallelFirstErrorWins(t *testing.T) {
	runner, workflows, activities, _ := newTestRunner()

	activities.Register("ok", func(ctx context.Context, _ []json.RawMessage) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "ok", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	activities.Register("boom", func(_ context.Context, _ []json.RawMessage) (any, error) {
		return nil, retry.Permanent(errors.New("boom"))
	})

	engine.RegisterDefinition(workflows, engine.NewWorkflow("parallel-fail-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			return c.ScheduleParallel(
				engine.Call{Activity: "ok"},
				engine.Call{Activity: "boom"},
			)
		},
	))

	start := time.Now()
	run, err := engine.Start(context.Background(), runner, "parallel-fail-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != history.RunStateFailed {
		t.Fatalf("run state = %q, want failed", run.State)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("parallel failure took %v; sibling was not cancelled", elapsed)
	}
	if !strings.Contains(run.Error, "boom") {
		t.Errorf("run error = %q, want boom", run.Error)
	}
}

func TestRunner_RetryBackoffUsesDurableTimer(t *testing.T) {
	runner, workflows, activities, s := newTestRunner()

	var calls int32
	activities.Register("eventually", func(_ context.Context, _ []json.RawMessage) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, retry.Transient(errors.New("first attempt fails"))
		}
		return "done", nil
	})

	engine.RegisterDefinition(workflows, engine.NewWorkflow("backoff-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			return engine.Schedule[string](c, "eventually", engine.Options{
				Retry: retry.Policy{
					MaxAttempts: 2,
					Backoff:     backoff.NewConstant(20 * time.Millisecond),
				},
			})
		},
	))

	start := time.Now()
	run, err := engine.Start(context.Background(), runner, "backoff-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != history.RunStateCompleted {
		t.Fatalf("run state = %q, want completed", run.State)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("run finished in %v; backoff delay was not honored", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}

	// The fired timer was cleaned up.
	if _, err := s.GetTimer(context.Background(), run.ID, history.Key(0, "eventually")); !errors.Is(err, durable.ErrTimerNotFound) {
		t.Errorf("expected timer deleted after firing, got %v", err)
	}
}

func TestRunner_ElapsedTimerFiresImmediatelyOnResume(t *testing.T) {
	runner, workflows, activities, s := newTestRunner()

	var calls int32
	activities.Register("resumed", func(_ context.Context, _ []json.RawMessage) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	})

	engine.RegisterDefinition(workflows, engine.NewWorkflow("timer-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			return engine.Schedule[string](c, "resumed", engine.Options{})
		},
	))

	// Seed a run stuck in running state with no history plus a timer
	// whose fire time has already elapsed, as a crash during a backoff
	// wait would leave it. Resume must not wait.
	input, _ := json.Marshal(struct{}{})
	run := &history.Run{
		Entity:    durable.NewEntity(),
		ID:        id.NewRunID(),
		Name:      "timer-wf",
		State:     history.RunStateRunning,
		Input:     input,
		StartedAt: time.Now().UTC(),
	}
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	timer := &history.Timer{
		ID:        id.NewTimerID(),
		RunID:     run.ID,
		Key:       history.Key(0, "resumed"),
		FireAt:    time.Now().UTC().Add(-time.Minute),
		CreatedAt: time.Now().UTC().Add(-2 * time.Minute),
	}
	if err := s.SaveTimer(context.Background(), timer); err != nil {
		t.Fatalf("SaveTimer: %v", err)
	}

	start := time.Now()
	resumed, err := runner.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.State != history.RunStateCompleted {
		t.Fatalf("resumed state = %q, want completed", resumed.State)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("resume took %v, want immediate", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if _, err := s.GetTimer(context.Background(), run.ID, timer.Key); !errors.Is(err, durable.ErrTimerNotFound) {
		t.Errorf("expected timer deleted after resume, got %v", err)
	}
}

func TestRunner_ResumeAll(t *testing.T) {
	runner, workflows, activities, s := newTestRunner()

	var calls int32
	activities.Register("work", func(_ context.Context, _ []json.RawMessage) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	})

	engine.RegisterDefinition(workflows, engine.NewWorkflow("sweep-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			return engine.Schedule[string](c, "work", engine.Options{})
		},
	))

	// Two completed runs put back into running state.
	var runs []*history.Run
	for range 2 {
		run, err := engine.Start(context.Background(), runner, "sweep-wf", struct{}{})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		run.State = history.RunStateRunning
		run.CompletedAt = nil
		if err := s.UpdateRun(context.Background(), run); err != nil {
			t.Fatalf("UpdateRun: %v", err)
		}
		runs = append(runs, run)
	}

	if err := runner.ResumeAll(context.Background()); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}

	for _, run := range runs {
		stored, err := s.GetRun(context.Background(), run.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if stored.State != history.RunStateCompleted {
			t.Errorf("run %s state = %q, want completed", run.ID, stored.State)
		}
	}

	// Replay, not re-execution: the two original invocations stand.
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestRunner_ResumeNonRunningRun(t *testing.T) {
	runner, workflows, activities, _ := newTestRunner()

	activities.Register("noop", func(_ context.Context, _ []json.RawMessage) (any, error) {
		return nil, nil
	})
	engine.RegisterDefinition(workflows, engine.NewWorkflow("done-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			return c.ScheduleActivity("noop", engine.Options{})
		},
	))

	run, err := engine.Start(context.Background(), runner, "done-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := runner.Resume(context.Background(), run.ID); !errors.Is(err, durable.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState resuming a completed run, got %v", err)
	}
}

func TestRunner_CancellationAbortsRun(t *testing.T) {
	runner, workflows, activities, _ := newTestRunner()

	activities.Register("hang", func(ctx context.Context, _ []json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	engine.RegisterDefinition(workflows, engine.NewWorkflow("cancel-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			return c.ScheduleActivity("hang", engine.Options{
				Retry: retry.Policy{MaxAttempts: 3},
			})
		},
	))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	run, err := engine.Start(ctx, runner, "cancel-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != history.RunStateFailed {
		t.Fatalf("run state = %q, want failed", run.State)
	}
	if !strings.Contains(run.Error, context.Canceled.Error()) {
		t.Errorf("run error = %q, want context canceled", run.Error)
	}
}

func TestRunner_TimeoutIsTransient(t *testing.T) {
	runner, workflows, activities, _ := newTestRunner()

	var calls int32
	activities.Register("slow-then-fast", func(ctx context.Context, _ []json.RawMessage) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-time.After(time.Second):
				return "late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return "in time", nil
	})

	engine.RegisterDefinition(workflows, engine.NewWorkflow("timeout-wf",
		func(c *engine.Context, _ struct{}) (any, error) {
			return engine.Schedule[string](c, "slow-then-fast", engine.Options{
				Timeout: 30 * time.Millisecond,
				Retry:   retry.Policy{MaxAttempts: 2},
			})
		},
	))

	run, err := engine.Start(context.Background(), runner, "timeout-wf", struct{}{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.State != history.RunStateCompleted {
		t.Fatalf("run state = %q, want completed (timeout retried)", run.State)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}

	var out string
	if err := json.Unmarshal(run.Output, &out); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if out != "in time" {
		t.Errorf("output = %q, want %q", out, "in time")
	}
}
