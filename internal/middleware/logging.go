package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// Logging returns middleware that logs delivery start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("delivery started",
			slog.String("job_id", j.ID),
			slog.String("to", j.To),
			slog.Int("retry_count", j.RetryCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("delivery failed",
				slog.String("job_id", j.ID),
				slog.String("to", j.To),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("delivery completed",
				slog.String("job_id", j.ID),
				slog.String("to", j.To),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
