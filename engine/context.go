package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/id"
	"github.com/craftedsys/durable/middleware"
	"github.com/craftedsys/durable/retry"
)

// Options bound one scheduled invocation.
type Options struct {
	// Timeout is the per-attempt execution budget. Zero means no
	// deadline.
	Timeout time.Duration

	// Retry bounds attempts and names the backoff strategy. The zero
	// value allows a single attempt.
	Retry retry.Policy
}

// Call describes one activity in a parallel group.
type Call struct {
	// Activity is the registered activity name.
	Activity string

	// Args are the positional arguments, JSON-serialized at scheduling
	// time.
	Args []any

	// Opts bound the invocation.
	Opts Options
}

// Context is the scheduling surface handed to workflow definitions. It
// tracks the run's scheduling sequence so replay lines each call up with
// its recorded history position.
//
// A Context is bound to one run and must not outlive its handler.
type Context struct {
	ctx     context.Context
	run     *history.Run
	store   history.Store
	acts    *activity.Registry
	chain   middleware.Middleware
	emitter Emitter
	logger  *slog.Logger

	mu  sync.Mutex
	seq int
}

// newContext creates a Context for one run execution. Called by the
// Runner, not by users.
func newContext(
	ctx context.Context,
	run *history.Run,
	store history.Store,
	acts *activity.Registry,
	chain middleware.Middleware,
	emitter Emitter,
	logger *slog.Logger,
) *Context {
	return &Context{
		ctx:     ctx,
		run:     run,
		store:   store,
		acts:    acts,
		chain:   chain,
		emitter: emitter,
		logger:  logger,
	}
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context { return c.ctx }

// RunID returns the workflow run ID.
func (c *Context) RunID() id.RunID { return c.run.ID }

// Run returns the workflow run.
func (c *Context) Run() *history.Run { return c.run }

// Logger returns the run's logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// nextSeq reserves the next scheduling sequence number.
func (c *Context) nextSeq() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.seq
	c.seq++
	return seq
}

// position captures everything assigned to a scheduling call before it
// executes: its history key and the encoded, digested arguments.
type position struct {
	seq    int
	key    string
	digest string
	args   []json.RawMessage
}

// assign reserves a sequence number and encodes the call's arguments.
func (c *Context) assign(name string, args []any) (position, error) {
	encoded, err := activity.EncodeArgs(args...)
	if err != nil {
		return position{}, fmt.Errorf("workflow %s schedule %q: %w", c.run.Name, name, err)
	}
	seq := c.nextSeq()
	return position{
		seq:    seq,
		key:    history.Key(seq, name),
		digest: history.Digest(encoded),
		args:   encoded,
	}, nil
}

// ScheduleActivity schedules one activity and blocks until it completes
// terminally, returning its raw JSON result. A completed invocation at
// the same history position is returned from the log without invoking
// the handler.
func (c *Context) ScheduleActivity(name string, opts Options, args ...any) (json.RawMessage, error) {
	pos, err := c.assign(name, args)
	if err != nil {
		return nil, err
	}
	return c.execute(c.ctx, name, pos, opts)
}

// ScheduleParallel schedules the given calls concurrently and blocks
// until all complete. Results are returned in declaration order. If any
// call fails terminally, the remaining calls are cancelled and the first
// error is returned.
//
// Sequence numbers are assigned to every call in declaration order
// before any of them starts, so history keys never depend on real-time
// completion order.
func (c *Context) ScheduleParallel(calls ...Call) ([]json.RawMessage, error) {
	positions := make([]position, len(calls))
	for i, call := range calls {
		pos, err := c.assign(call.Activity, call.Args)
		if err != nil {
			return nil, err
		}
		positions[i] = pos
	}

	results := make([]json.RawMessage, len(calls))
	g, gctx := errgroup.WithContext(c.ctx)

	for i, call := range calls {
		idx := i
		cl := call
		g.Go(func() error {
			res, err := c.execute(gctx, cl.Activity, positions[idx], cl.Opts)
			if err != nil {
				return err
			}
			results[idx] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Schedule schedules one activity and decodes its result into T.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Schedule[T any](c *Context, name string, opts Options, args ...any) (T, error) {
	var zero T
	raw, err := c.ScheduleActivity(name, opts, args...)
	if err != nil {
		return zero, err
	}
	var out T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return zero, fmt.Errorf("workflow %s: decode %q result: %w", c.run.Name, name, err)
		}
	}
	return out, nil
}
