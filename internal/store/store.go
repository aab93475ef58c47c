// Package store provides key-value persistence of job state with TTL,
// plus the pub/sub side channel that broadcasts status-change events.
// The Redis implementation is authoritative in production; the memory
// implementation mirrors its semantics for tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// StatusChannel is the well-known pub/sub channel carrying status updates.
const StatusChannel = "job_status_updates"

// DefaultTTL is how long a job record lives after its last write.
const DefaultTTL = 24 * time.Hour

// ErrNotFound indicates the requested job does not exist (or expired).
// A business condition, distinct from connectivity failures.
var ErrNotFound = errors.New("store: job not found")

// Store is the persistence contract for job state.
type Store interface {
	// StoreJob upserts the full job record keyed by its ID, with expiry.
	StoreJob(ctx context.Context, j *job.Job, ttl time.Duration) error

	// GetJob returns the job or ErrNotFound.
	GetJob(ctx context.Context, id string) (*job.Job, error)

	// UpdateStatus loads the current job, transitions its status,
	// appends a history entry, sets the retry count when positive,
	// re-persists with a refreshed TTL, and publishes a StatusUpdate on
	// StatusChannel. The read-modify-write is not atomic: last write
	// wins, acceptable under single-processor-per-job ownership.
	UpdateStatus(ctx context.Context, id string, status job.Status, errMsg string, retryCount int) error

	// Publish broadcasts a status update on the named channel.
	// Fire-and-forget with respect to listeners.
	Publish(ctx context.Context, channel string, update *job.StatusUpdate) error

	// Subscribe blocks, invoking handler for each update on the channel,
	// until ctx is cancelled. Malformed payloads are skipped.
	Subscribe(ctx context.Context, channel string, handler func(*job.StatusUpdate)) error

	// Ping is a connectivity check.
	Ping(ctx context.Context) error

	// Close releases the store connection.
	Close() error
}
