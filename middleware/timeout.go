package middleware

import (
	"context"
	"log/slog"

	"github.com/craftedsys/durable/activity"
)

// Timeout returns middleware that enforces the invocation's execution
// deadline. If the invocation has a non-zero Timeout, a
// context.WithTimeout wraps the handler call. When the deadline is
// exceeded the context is cancelled and the handler should return
// context.DeadlineExceeded, which the engine treats as transient.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *activity.Invocation, next Handler) error {
		if inv.Timeout > 0 {
			logger.Debug("activity timeout set",
				slog.String("activity", inv.Name),
				slog.Duration("timeout", inv.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
