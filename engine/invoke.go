package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/craftedsys/durable"
	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/history"
	"github.com/craftedsys/durable/id"
	"github.com/craftedsys/durable/retry"
)

// execute drives one scheduled invocation to a terminal outcome:
// replayed from history, completed, or failed with an ActivityError.
// Every attempt is appended to the history before control returns.
func (c *Context) execute(ctx context.Context, name string, pos position, opts Options) (json.RawMessage, error) {
	// Replay short-circuit: a completed invocation at this position is
	// never re-executed.
	completed, err := c.store.CompletedEntry(ctx, c.run.ID, pos.key)
	if err == nil {
		if completed.Digest != pos.digest {
			return nil, fmt.Errorf("workflow %s position %s: recorded args digest %s does not match scheduled digest %s: %w",
				c.run.Name, pos.key, completed.Digest, pos.digest, durable.ErrHistoryCorrupt)
		}
		c.logger.Debug("replaying completed invocation",
			slog.String("run_id", c.run.ID.String()),
			slog.String("key", pos.key),
		)
		return completed.Result, nil
	}
	if !errors.Is(err, durable.ErrEntryNotFound) {
		return nil, fmt.Errorf("workflow %s position %s: read history: %w", c.run.Name, pos.key, err)
	}

	handler, ok := c.acts.Get(name)
	if !ok {
		return nil, fmt.Errorf("workflow %s: %q: %w", c.run.Name, name, durable.ErrActivityNotFound)
	}

	// Attempt counting is durable: failures already in the history were
	// real executions and consume retry budget, so a crash between
	// retries resumes the count instead of restarting it.
	failures, err := c.store.CountFailures(ctx, c.run.ID, pos.key)
	if err != nil {
		return nil, fmt.Errorf("workflow %s position %s: count failures: %w", c.run.Name, pos.key, err)
	}
	attempt := failures + 1

	// A timer persisted before a crash means a backoff wait was in
	// flight. Honor its remainder before attempting again.
	if timer, timerErr := c.store.GetTimer(ctx, c.run.ID, pos.key); timerErr == nil {
		if waitErr := c.waitUntil(ctx, timer.FireAt); waitErr != nil {
			return nil, waitErr
		}
		if delErr := c.store.DeleteTimer(ctx, c.run.ID, pos.key); delErr != nil {
			return nil, fmt.Errorf("workflow %s position %s: delete timer: %w", c.run.Name, pos.key, delErr)
		}
	} else if !errors.Is(timerErr, durable.ErrTimerNotFound) {
		return nil, fmt.Errorf("workflow %s position %s: read timer: %w", c.run.Name, pos.key, timerErr)
	}

	argsData, err := json.Marshal(pos.args)
	if err != nil {
		return nil, fmt.Errorf("workflow %s position %s: marshal args: %w", c.run.Name, pos.key, err)
	}

	for {
		inv := &activity.Invocation{
			ID:      id.NewInvocationID(),
			RunID:   c.run.ID,
			Name:    name,
			Key:     pos.key,
			Args:    pos.args,
			Attempt: attempt,
			Timeout: opts.Timeout,
		}

		scheduledAt := time.Now().UTC()
		var result any
		invErr := c.chain(ctx, inv, func(hctx context.Context) error {
			out, handlerErr := handler(hctx, pos.args)
			if handlerErr != nil {
				return handlerErr
			}
			result = out
			return nil
		})
		elapsed := time.Since(scheduledAt)
		now := time.Now().UTC()

		if invErr == nil {
			data, marshalErr := json.Marshal(result)
			if marshalErr != nil {
				return nil, fmt.Errorf("workflow %s position %s: marshal result: %w", c.run.Name, pos.key, marshalErr)
			}
			entry := &history.Entry{
				ID:          inv.ID,
				RunID:       c.run.ID,
				Seq:         pos.seq,
				Key:         pos.key,
				Activity:    name,
				Digest:      pos.digest,
				Args:        argsData,
				Attempt:     attempt,
				Outcome:     history.OutcomeCompleted,
				Result:      data,
				ScheduledAt: scheduledAt,
				CompletedAt: now,
			}
			if appendErr := c.store.AppendEntry(ctx, entry); appendErr != nil {
				return nil, fmt.Errorf("workflow %s position %s: append entry: %w", c.run.Name, pos.key, appendErr)
			}
			c.emitter.EmitActivityCompleted(ctx, c.run, pos.key, elapsed)
			return data, nil
		}

		class := retry.ClassOf(invErr)
		entry := &history.Entry{
			ID:          inv.ID,
			RunID:       c.run.ID,
			Seq:         pos.seq,
			Key:         pos.key,
			Activity:    name,
			Digest:      pos.digest,
			Args:        argsData,
			Attempt:     attempt,
			Outcome:     history.OutcomeFailed,
			Error:       invErr.Error(),
			Class:       string(class),
			ScheduledAt: scheduledAt,
			CompletedAt: now,
		}
		if appendErr := c.store.AppendEntry(ctx, entry); appendErr != nil {
			return nil, fmt.Errorf("workflow %s position %s: append entry: %w", c.run.Name, pos.key, appendErr)
		}
		c.emitter.EmitActivityFailed(ctx, c.run, pos.key, invErr)

		decision := opts.Retry.Evaluate(attempt, invErr)
		if !decision.Retry {
			maxAttempts := opts.Retry.MaxAttempts
			if maxAttempts < 1 {
				maxAttempts = 1
			}
			return nil, &ActivityError{
				Activity:  name,
				Key:       pos.key,
				Attempts:  attempt,
				Class:     class,
				Exhausted: class != retry.ClassPermanent && attempt >= maxAttempts,
				Err:       invErr,
			}
		}

		if decision.Delay > 0 {
			if sleepErr := c.sleepUntil(ctx, pos.key, time.Now().UTC().Add(decision.Delay)); sleepErr != nil {
				return nil, sleepErr
			}
		}
		attempt++
	}
}

// sleepUntil is a durable wait: the fire time is persisted before the
// wait starts, so a restart resumes the remainder instead of the full
// delay.
func (c *Context) sleepUntil(ctx context.Context, key string, fireAt time.Time) error {
	timer := &history.Timer{
		ID:        id.NewTimerID(),
		RunID:     c.run.ID,
		Key:       key,
		FireAt:    fireAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.SaveTimer(ctx, timer); err != nil {
		return fmt.Errorf("workflow %s position %s: save timer: %w", c.run.Name, key, err)
	}

	if err := c.waitUntil(ctx, fireAt); err != nil {
		return err
	}

	if err := c.store.DeleteTimer(ctx, c.run.ID, key); err != nil {
		return fmt.Errorf("workflow %s position %s: delete timer: %w", c.run.Name, key, err)
	}
	return nil
}

// waitUntil blocks until fireAt or context cancellation. An elapsed fire
// time returns immediately.
func (c *Context) waitUntil(ctx context.Context, fireAt time.Time) error {
	remaining := time.Until(fireAt)
	if remaining <= 0 {
		return nil
	}
	select {
	case <-time.After(remaining):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
