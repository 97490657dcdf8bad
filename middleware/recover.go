package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/craftedsys/durable/activity"
	"github.com/craftedsys/durable/retry"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to permanent failures and logged with a
// stack trace: a panicking handler will not produce a different outcome
// when retried with the same arguments.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *activity.Invocation, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("activity handler panicked",
					slog.String("activity", inv.Name),
					slog.String("run_id", inv.RunID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = retry.Permanent(fmt.Errorf("panic in activity %s: %v", inv.Name, r))
			}
		}()
		return next(ctx)
	}
}
