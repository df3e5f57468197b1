package barrier

import (
	"context"
	"errors"
	"fmt"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "orchestra:barrier:"
	defaultMaxRetries  = 16
	defaultRedisTTL    = 7 * 24 * time.Hour
)

// RedisStore keeps barriers as JSON documents. Update is an optimistic WATCH/MULTI
// transaction retried while other arrivals win the race.
//
// Layout:
//
//	<prefix><executionID>/<nodeID> => JSON encoded Barrier, expiring after ttl of inactivity
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	maxRetries int
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL sets how long an untouched barrier survives. This is what CleanupExpired relies on.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

func WithMaxRetries(n int) RedisOption {
	return func(s *RedisStore) {
		s.maxRetries = n
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client:     client,
		prefix:     defaultRedisPrefix,
		ttl:        defaultRedisTTL,
		maxRetries: defaultMaxRetries,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	redisKey := s.key(key)

	txf := func(tx *redis.Tx) error {
		now := time.Now().UTC()

		working, found, err := s.read(ctx, tx, redisKey)
		if err != nil {
			return err
		}

		if !found {
			working = &Barrier{Key: key, CreatedAt: now}
		}

		err = fn(working)
		if err != nil {
			return err
		}

		working.UpdatedAt = now

		payload, err := gojson.Marshal(working)
		if err != nil {
			return fmt.Errorf("failed to encode barrier %s: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, s.ttl)

			return nil
		})

		return err
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return fmt.Errorf("%w: %s after %d attempts", ErrConflict, key, s.maxRetries)
}

func (s *RedisStore) read(ctx context.Context, cmd redis.Cmdable, redisKey string) (*Barrier, bool, error) {
	payload, err := cmd.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to read barrier %s: %w", redisKey, err)
	}

	var b Barrier

	err = gojson.Unmarshal(payload, &b)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode barrier %s: %w", redisKey, err)
	}

	return &b, true, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Barrier, bool, error) {
	return s.read(ctx, s.client, s.key(key))
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	err := s.client.Del(ctx, s.key(key)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete barrier %s: %w", key, err)
	}

	return nil
}

// CleanupExpired removes barriers idle for longer than maxAge. Keys also expire on their
// own after the store ttl.
func (s *RedisStore) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		b, found, err := s.read(ctx, s.client, iter.Val())
		if err != nil || !found {
			continue
		}

		if b.UpdatedAt.Before(cutoff) {
			err = s.client.Del(ctx, iter.Val()).Err()
			if err != nil {
				return removed, fmt.Errorf("failed to delete barrier %s: %w", iter.Val(), err)
			}

			removed++
		}
	}

	err := iter.Err()
	if err != nil {
		return removed, fmt.Errorf("failed to scan barriers: %w", err)
	}

	return removed, nil
}
