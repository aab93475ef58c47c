package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/fault"
	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// memoryEntry holds a serialized job and its expiry deadline.
// Jobs are stored serialized so readers get copies, as with Redis.
type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore implements Store in process, mirroring the Redis
// semantics: TTL expiry, serialized copies, pub/sub fan-out.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]memoryEntry
	subs   map[string][]chan *job.StatusUpdate
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]memoryEntry),
		subs: make(map[string][]chan *job.StatusUpdate),
	}
}

// StoreJob upserts the job with the given TTL.
func (s *MemoryStore) StoreJob(_ context.Context, j *job.Job, ttl time.Duration) error {
	if err := j.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(j)
	if err != nil {
		return fault.Infra("failed to marshal job", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fault.Infra("store is closed", nil)
	}
	s.jobs[j.ID] = memoryEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

// GetJob returns a copy of the job or ErrNotFound (including expired).
func (s *MemoryStore) GetJob(_ context.Context, id string) (*job.Job, error) {
	if id == "" {
		return nil, fault.Validation("job ID is required")
	}

	s.mu.Lock()
	entry, ok := s.jobs[id]
	if ok && time.Now().After(entry.expiresAt) {
		delete(s.jobs, id)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	var j job.Job
	if err := json.Unmarshal(entry.data, &j); err != nil {
		return nil, fault.Infra("failed to unmarshal job", err)
	}
	return &j, nil
}

// UpdateStatus performs the read-modify-write transition and publishes
// the resulting StatusUpdate.
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status job.Status, errMsg string, retryCount int) error {
	if id == "" {
		return fault.Validation("job ID is required")
	}
	if !status.IsValid() {
		return fault.Validation("invalid status")
	}

	j, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	j.UpdateStatus(status, "", errMsg)
	if retryCount > 0 {
		j.RetryCount = retryCount
	}

	if err := s.StoreJob(ctx, j, DefaultTTL); err != nil {
		return err
	}

	return s.Publish(ctx, StatusChannel, job.NewStatusUpdate(j))
}

// Publish fans the update out to all subscribers of the channel.
// Slow subscribers are skipped rather than blocked on.
func (s *MemoryStore) Publish(_ context.Context, channel string, update *job.StatusUpdate) error {
	s.mu.Lock()
	subs := make([]chan *job.StatusUpdate, len(s.subs[channel]))
	copy(subs, s.subs[channel])
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- update:
		default:
		}
	}
	return nil
}

// Subscribe invokes handler per update until ctx is cancelled.
func (s *MemoryStore) Subscribe(ctx context.Context, channel string, handler func(*job.StatusUpdate)) error {
	ch := make(chan *job.StatusUpdate, 64)

	s.mu.Lock()
	s.subs[channel] = append(s.subs[channel], ch)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		subs := s.subs[channel]
		for i, c := range subs {
			if c == ch {
				s.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-ch:
			handler(update)
		}
	}
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fault.Infra("store is closed", nil)
	}
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
