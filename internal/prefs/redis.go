package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const prefsKeyPrefix = "fable:prefs:"

// RedisStore persists preference blobs in Redis so they survive restarts
// and are shared across instances.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed preference store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get returns the preferences for a book, or nil if none are stored.
func (s *RedisStore) Get(ctx context.Context, bookID string) (*Preferences, error) {
	val, err := s.rdb.Get(ctx, prefsKeyPrefix+bookID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	var p Preferences
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return &p, nil
}

// Set stores the preferences for a book, replacing any prior blob.
func (s *RedisStore) Set(ctx context.Context, bookID string, p Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := s.rdb.Set(ctx, prefsKeyPrefix+bookID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

// Verify interface
var _ Store = (*RedisStore)(nil)
