package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of Store[S].
//
// Each run is one string key holding the JSON encoded checkpoint. Save runs
// inside WATCH/MULTI so a concurrent writer aborts the transaction, which is
// reported as ErrConflict.
//
// Runs that reach a closed status (complete or cancelled) expire after the
// retention period when it is non-zero. Open runs never expire.
type RedisStore[S any] struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a store on an existing client. Keys are written as
// prefix + run ID.
func NewRedisStore[S any](client *redis.Client, prefix string, retention time.Duration) *RedisStore[S] {
	if prefix == "" {
		prefix = "csflow:run:"
	}
	return &RedisStore[S]{client: client, prefix: prefix, retention: retention}
}

func (r *RedisStore[S]) key(runID string) string {
	return r.prefix + runID
}

// Load implements Store.
func (r *RedisStore[S]) Load(ctx context.Context, runID string) (Checkpoint[S], error) {
	data, err := r.client.Get(ctx, r.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	var cp Checkpoint[S]
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Save implements Store.
func (r *RedisStore[S]) Save(ctx context.Context, cp Checkpoint[S]) error {
	if cp.RunID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}
	cp.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	var ttl time.Duration
	if cp.Status.Closed() {
		ttl = r.retention
	}

	key := r.key(cp.RunID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		var stored int64
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var head struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal(current, &head); err != nil {
				return fmt.Errorf("failed to decode stored version: %w", err)
			}
			stored = head.Version
		}

		if cp.Version != stored+1 {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	default:
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
}

// Delete implements Store.
func (r *RedisStore[S]) Delete(ctx context.Context, runID string) error {
	if err := r.client.Del(ctx, r.key(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (r *RedisStore[S]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
