// Package health aggregates dependency probes into a single service
// status. The queue and the status store are critical: either failing
// makes the service unhealthy. The SMTP transport only degrades it,
// since queued jobs survive a mail outage and retry once it recovers.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/worker"
)

// Probe timeouts are short; a health endpoint that hangs is worse than
// one that reports failure.
const probeTimeout = 5 * time.Second

// Status is the aggregate or per-dependency condition.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Pinger is any dependency with a connectivity probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is the probe result for one dependency.
type Check struct {
	Status  Status        `json:"status"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

// Report is the full health snapshot served on /health.
type Report struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Worker    *worker.State    `json:"worker,omitempty"`
}

// dependency pairs a probe with its criticality.
type dependency struct {
	name     string
	pinger   Pinger
	critical bool
}

// Checker runs probes concurrently and folds them into a Report.
type Checker struct {
	deps   []dependency
	pool   *worker.Pool
	logger *slog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithCritical registers a dependency whose failure makes the service
// unhealthy.
func WithCritical(name string, p Pinger) CheckerOption {
	return func(c *Checker) {
		c.deps = append(c.deps, dependency{name: name, pinger: p, critical: true})
	}
}

// WithNonCritical registers a dependency whose failure only degrades
// the service.
func WithNonCritical(name string, p Pinger) CheckerOption {
	return func(c *Checker) {
		c.deps = append(c.deps, dependency{name: name, pinger: p, critical: false})
	}
}

// WithWorkerPool includes pool counters in the report.
func WithWorkerPool(p *worker.Pool) CheckerOption {
	return func(c *Checker) { c.pool = p }
}

// NewChecker creates a checker over the registered dependencies.
func NewChecker(logger *slog.Logger, opts ...CheckerOption) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Checker{logger: logger.With("component", "health")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckAll probes every dependency concurrently and aggregates.
func (c *Checker) CheckAll(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]Check, len(c.deps)),
	}

	type result struct {
		name     string
		critical bool
		check    Check
	}

	results := make(chan result, len(c.deps))
	var wg sync.WaitGroup
	for _, dep := range c.deps {
		wg.Add(1)
		go func(dep dependency) {
			defer wg.Done()
			results <- result{name: dep.name, critical: dep.critical, check: c.probe(ctx, dep)}
		}(dep)
	}
	wg.Wait()
	close(results)

	for res := range results {
		report.Checks[res.name] = res.check
		if res.check.Status == StatusHealthy {
			continue
		}
		if res.critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	if c.pool != nil {
		snap := c.pool.Snapshot()
		report.Worker = &snap
	}
	return report
}

// probe runs one dependency check under the probe timeout.
func (c *Checker) probe(ctx context.Context, dep dependency) Check {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := dep.pinger.Ping(probeCtx)
	latency := time.Since(start)

	if err != nil {
		c.logger.Warn("dependency probe failed",
			slog.String("dependency", dep.name),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		return Check{Status: StatusUnhealthy, Latency: latency, Error: err.Error()}
	}
	return Check{Status: StatusHealthy, Latency: latency}
}

// Ready reports whether all critical dependencies are reachable. Used
// by the readiness endpoint.
func (c *Checker) Ready(ctx context.Context) bool {
	for _, dep := range c.deps {
		if !dep.critical {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := dep.pinger.Ping(probeCtx)
		cancel()
		if err != nil {
			return false
		}
	}
	return true
}
