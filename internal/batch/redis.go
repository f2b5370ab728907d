package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis checkpoint store.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Key holds the checkpoint value.
	Key string

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultRedisConfig returns defaults for the given address.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Key:     "duelmeta:checkpoint",
		Timeout: 5 * time.Second,
	}
}

// RedisStore keeps the checkpoint as one JSON value under a single key.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Key == "" {
		cfg.Key = DefaultRedisConfig("").Key
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{cfg: cfg, client: client}, nil
}

// Load reads the checkpoint value.
func (r *RedisStore) Load(ctx context.Context) (BatchState, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.cfg.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return BatchState{}, ErrNoCheckpoint
	}
	if err != nil {
		return BatchState{}, fmt.Errorf("failed to load checkpoint from Redis: %w", err)
	}

	var state BatchState
	if err := json.Unmarshal(data, &state); err != nil {
		return BatchState{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return state, nil
}

// RunID reads the run id of the stored checkpoint.
func (r *RedisStore) RunID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.cfg.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoCheckpoint
	}
	if err != nil {
		return "", fmt.Errorf("failed to load checkpoint from Redis: %w", err)
	}

	var run storedRun
	if err := json.Unmarshal(data, &run); err != nil {
		return "", fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return run.RunID, nil
}

// Save replaces the checkpoint value.
func (r *RedisStore) Save(ctx context.Context, state BatchState) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := r.client.Set(ctx, r.cfg.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint to Redis: %w", err)
	}
	return nil
}

// Delete removes the checkpoint key.
func (r *RedisStore) Delete(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.client.Del(ctx, r.cfg.Key).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint from Redis: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
