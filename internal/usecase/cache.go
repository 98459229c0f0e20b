package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/aerofindr/internal/logging"
)

// Cache abstracts the Redis operations used by the state cache to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// StateCache mirrors session states into a Cache so other replicas and
// clients polling after a restart can read them. It is both an Observer and
// a StateReader.
type StateCache struct {
	cache          Cache
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewStateCache constructs a state cache writing entries with the given TTL.
func NewStateCache(cache Cache, ttl time.Duration, logger *zap.Logger) *StateCache {
	return &StateCache{
		cache:          cache,
		ttl:            ttl,
		logger:         logger.Named("state_cache"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func stateKey(sessionID string) string {
	return fmt.Sprintf("lookup_state:%s", sessionID)
}

// Publish stores the serialized state under the session key.
func (c *StateCache) Publish(ctx context.Context, sessionID string, state State) error {
	serialized, err := json.Marshal(state)
	if err != nil {
		return logging.NewOperationError("cache.encode_state", sessionID, err)
	}
	return c.withRedisRetry(ctx, sessionID, "cache.set.state", func() error {
		return c.cache.Set(ctx, stateKey(sessionID), string(serialized), c.ttl)
	})
}

// Load reads a session state; a missing key is reported as not found.
func (c *StateCache) Load(ctx context.Context, sessionID string) (State, bool, error) {
	var raw string
	err := c.withRedisRetry(ctx, sessionID, "cache.get.state", func() error {
		value, err := c.cache.Get(ctx, stateKey(sessionID))
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		logging.WithOperation(c.logger, "cache.decode_state", sessionID).Warn("failed to decode cached state", zap.Error(err))
		return State{}, false, nil
	}
	return st, true, nil
}

func (c *StateCache) withRedisRetry(ctx context.Context, sessionID, operation string, fn func() error) error {
	if c.retryAttempts <= 1 {
		return logging.NewOperationError(operation, sessionID, fn())
	}

	backoff := c.initialBackoff
	opLogger := logging.WithOperation(c.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= c.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, sessionID, err)
		}

		if !isTransientError(err) || attempt == c.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
