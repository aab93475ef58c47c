package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSchedulerStopped is returned by Schedule after Stop.
var ErrSchedulerStopped = errors.New("worker: scheduler stopped")

// Scheduler runs functions after a delay. Unlike a detached
// time.Sleep goroutine, every pending timer is registered and
// cancelled on Stop, so shutdown never leaves orphaned requeues
// racing a dead process.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[int64]*time.Timer
	nextID  int64
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a running scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger.With("component", "scheduler"),
		timers: make(map[int64]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule runs fn after delay. The context passed to fn is the
// scheduler's own lifecycle context, cancelled by Stop. A zero or
// negative delay fires immediately.
func (s *Scheduler) Schedule(delay time.Duration, fn func(ctx context.Context)) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	id := s.nextID
	s.nextID++
	s.wg.Add(1)

	timer := time.AfterFunc(delay, func() {
		defer s.wg.Done()

		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		stopped := s.stopped
		s.mu.Unlock()

		if !live || stopped {
			return
		}
		fn(s.ctx)
	})
	s.timers[id] = timer
	s.mu.Unlock()
	return nil
}

// Pending returns the number of timers not yet fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all pending timers and waits for in-flight callbacks.
// Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, t := range s.timers {
		if t.Stop() {
			// Timer never fired; release its waitgroup slot here.
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Debug("scheduler stopped")
}
