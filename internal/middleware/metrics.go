package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// meterName is the instrumentation scope name for delivery metrics.
const meterName = "github.com/MohamedAljoke/mail-sender"

// Metrics records a duration histogram and an attempt counter per
// delivery, via the global MeterProvider. Without one configured the
// instruments are noops and the middleware just forwards the call.
//
// Both instruments carry a status attribute ("ok" or "error") and a
// retry attribute ("true" when the job has been retried at least once).
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter is Metrics with an explicit meter, so tests can
// plug in an sdk/metric reader and inspect what was recorded.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instruments are built once here and shared by every attempt.
	duration, dErr := meter.Float64Histogram(
		"mailsender.delivery.duration",
		metric.WithDescription("Duration of a delivery attempt in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr // failed instruments come back as noops

	attempts, aErr := meter.Int64Counter(
		"mailsender.delivery.attempts",
		metric.WithDescription("Total number of delivery attempts"),
		metric.WithUnit("{attempt}"),
	)
	_ = aErr // failed instruments come back as noops

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		retry := "false"
		if j.RetryCount > 0 {
			retry = "true"
		}

		attrs := metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("retry", retry),
		)

		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)

		return err
	}
}
