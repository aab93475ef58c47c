package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MohamedAljoke/mail-sender/internal/fault"
	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// jobKey returns the key for a job record: job:{id}
func jobKey(id string) string { return "job:" + id }

// RedisStore implements Store backed by Redis. Jobs are stored as JSON
// strings under job:{id} with SETEX expiry; status updates are published
// on a plain pub/sub channel.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore parses the URL and creates a store. The connection is
// lazy; use Ping to verify reachability.
func NewRedisStore(url string, logger *slog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fault.Config("invalid redis url: " + err.Error())
	}
	return NewRedisStoreWithClient(redis.NewClient(opt), logger), nil
}

// NewRedisStoreWithClient wraps an existing client. The caller owns the
// client lifecycle in tests.
func NewRedisStoreWithClient(client *redis.Client, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, logger: logger}
}

// StoreJob upserts the job with the given TTL.
func (s *RedisStore) StoreJob(ctx context.Context, j *job.Job, ttl time.Duration) error {
	if err := j.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(j)
	if err != nil {
		return fault.Infra("failed to marshal job", err)
	}

	if err := s.client.SetEx(ctx, jobKey(j.ID), data, ttl).Err(); err != nil {
		return fault.Infra("failed to store job", err)
	}
	return nil
}

// GetJob returns the job or ErrNotFound.
func (s *RedisStore) GetJob(ctx context.Context, id string) (*job.Job, error) {
	if id == "" {
		return nil, fault.Validation("job ID is required")
	}

	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fault.Infra("failed to get job", err)
	}

	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fault.Infra("failed to unmarshal job", err)
	}
	return &j, nil
}

// UpdateStatus performs the read-modify-write transition and publishes
// the resulting StatusUpdate. Last write wins; see the Store contract.
func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status job.Status, errMsg string, retryCount int) error {
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

// Publish broadcasts the update as JSON on the named channel.
func (s *RedisStore) Publish(ctx context.Context, channel string, update *job.StatusUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fault.Infra("failed to marshal status update", err)
	}
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		return fault.Infra("failed to publish status update", err)
	}
	return nil
}

// Subscribe invokes handler per update until ctx is cancelled.
func (s *RedisStore) Subscribe(ctx context.Context, channel string, handler func(*job.StatusUpdate)) error {
	pubsub := s.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fault.Infra("subscription channel closed", nil)
			}
			var update job.StatusUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				s.logger.Warn("skipping malformed status update", slog.String("error", err.Error()))
				continue
			}
			handler(&update)
		}
	}
}

// Ping verifies the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fault.Infra("redis ping failed", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fault.Infra("failed to close redis connection", err)
	}
	return nil
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)
