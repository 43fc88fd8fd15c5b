package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix    = "user:%d"
	revokedKeyPrefix = "blacklist:%s"
)

// UserTTL bounds how stale a cached account may be.
const UserTTL = 5 * time.Minute

// UserKey is the cache key for a user record.
func UserKey(userID uint) string {
	return fmt.Sprintf(userKeyPrefix, userID)
}

// Store wraps a Redis client. A Store with a nil client is a valid no-op
// cache: reads always miss and writes are dropped.
type Store struct {
	rdb *redis.Client
}

// NewStore returns a Store backed by rdb, which may be nil.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Enabled reports whether a Redis client is attached.
func (s *Store) Enabled() bool {
	return s != nil && s.rdb != nil
}

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first; on a miss (or a Redis failure) it calls fetch,
// which must populate dest, then stores dest with ttl on a best-effort basis.
func (s *Store) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if found, err := s.GetJSON(ctx, key, dest); err == nil && found {
		return nil
	}
	if err := fetch(); err != nil {
		return err
	}
	_ = s.SetJSON(ctx, key, dest, ttl)
	return nil
}

// Invalidate removes keys. Errors are ignored; entries expire on their own.
func (s *Store) Invalidate(ctx context.Context, keys ...string) {
	if !s.Enabled() || len(keys) == 0 {
		return
	}
	s.rdb.Del(ctx, keys...)
}

// InvalidateUsers drops cached user records.
func (s *Store) InvalidateUsers(ctx context.Context, userIDs ...uint) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, UserKey(id))
	}
	s.Invalidate(ctx, keys...)
}

// RevokeToken deny-lists a token id until it would have expired anyway.
func (s *Store) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if !s.Enabled() || jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, fmt.Sprintf(revokedKeyPrefix, jti), "1", ttl).Err()
}

// IsRevoked reports whether jti was deny-listed. Lookup failures report false
// so an unavailable cache does not lock every user out.
func (s *Store) IsRevoked(ctx context.Context, jti string) bool {
	if !s.Enabled() || jti == "" {
		return false
	}
	n, err := s.rdb.Exists(ctx, fmt.Sprintf(revokedKeyPrefix, jti)).Result()
	return err == nil && n > 0
}
