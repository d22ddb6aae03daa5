package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const resultKeyPrefix = "fable:result:"

// Redis is a Redis-backed ResultCache shared across instances.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a Redis-backed result cache.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// Get returns the cached result for a book, if present.
func (r *Redis) Get(ctx context.Context, bookID string) ([]byte, bool, error) {
	val, err := r.rdb.Get(ctx, resultKeyPrefix+bookID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read result cache: %w", err)
	}
	return val, true, nil
}

// Set stores a result for a book.
func (r *Redis) Set(ctx context.Context, bookID string, data []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, resultKeyPrefix+bookID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write result cache: %w", err)
	}
	return nil
}

// InvalidateBook drops the cached result for a book.
func (r *Redis) InvalidateBook(ctx context.Context, bookID string) error {
	if err := r.rdb.Del(ctx, resultKeyPrefix+bookID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate result cache: %w", err)
	}
	return nil
}

// Verify interface
var _ ResultCache = (*Redis)(nil)
