package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/craftedsys/durable/activity"
)

// Logging returns middleware that logs invocation start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *activity.Invocation, next Handler) error {
		logger.Info("activity started",
			slog.String("activity", inv.Name),
			slog.String("run_id", inv.RunID.String()),
			slog.Int("attempt", inv.Attempt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("activity failed",
				slog.String("activity", inv.Name),
				slog.String("run_id", inv.RunID.String()),
				slog.Int("attempt", inv.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("activity completed",
				slog.String("activity", inv.Name),
				slog.String("run_id", inv.RunID.String()),
				slog.Int("attempt", inv.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
