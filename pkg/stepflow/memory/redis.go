package memory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix is prepended to flow ids to form Redis keys.
const DefaultRedisPrefix = "stepflow:memory:"

// RedisStore persists flow memory in Redis, one string key per flow holding
// the JSON snapshot.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	owned  bool
	closed atomic.Bool
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides DefaultRedisPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL expires stored memory after d. Zero keeps it forever.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = d
	}
}

// NewRedisStore wraps an existing client. Close does not close the client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenRedisStore connects to the server named by a redis:// or rediss://
// URL and verifies the connection. Close closes the client.
func OpenRedisStore(ctx context.Context, rawURL string, opts ...RedisOption) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	s := NewRedisStore(client, opts...)
	s.owned = true
	return s, nil
}

func (s *RedisStore) key(flowID string) string {
	return s.prefix + flowID
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, flowID string) (map[string]any, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	data, err := s.client.Get(ctx, s.key(flowID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load memory for %s: %w", flowID, err)
	}
	return decode(data)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, flowID string, data map[string]any) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	encoded, err := encode(flowID, data)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(flowID), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("save memory for %s: %w", flowID, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, flowID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := s.client.Del(ctx, s.key(flowID)).Err(); err != nil {
		return fmt.Errorf("delete memory for %s: %w", flowID, err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.owned {
		return s.client.Close()
	}
	return nil
}
