package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLedgerTTL = 24 * time.Hour

// Ledger remembers consumed event ids so redelivered events are skipped.
type Ledger interface {
	// Claim records eventID and reports whether this is the first claim.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Release forgets eventID so a redelivery is handled again.
	Release(ctx context.Context, eventID string) error
}

// MemoryLedger keeps claims in process. Expired claims are evicted at most once per ttl;
// until then they are ignored on lookup.
type MemoryLedger struct {
	mu      sync.Mutex
	ttl     time.Duration
	seen    map[string]time.Time
	evictAt time.Time
	now     func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}

	return &MemoryLedger{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (l *MemoryLedger) Claim(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if !now.Before(l.evictAt) {
		l.evict(now)
	}

	if at, exists := l.seen[eventID]; exists && now.Sub(at) <= l.ttl {
		return false, nil
	}

	l.seen[eventID] = now

	return true, nil
}

func (l *MemoryLedger) evict(now time.Time) {
	for id, at := range l.seen {
		if now.Sub(at) > l.ttl {
			delete(l.seen, id)
		}
	}

	l.evictAt = now.Add(l.ttl)
}

func (l *MemoryLedger) Release(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.seen, eventID)

	return nil
}

// RedisLedger shares claims between every consumer of a group.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisLedger(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}

	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) Claim(ctx context.Context, eventID string) (bool, error) {
	claimed, err := l.client.SetNX(ctx, l.prefix+eventID, time.Now().UTC().Format(time.RFC3339Nano), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", eventID, err)
	}

	return claimed, nil
}

func (l *RedisLedger) Release(ctx context.Context, eventID string) error {
	err := l.client.Del(ctx, l.prefix+eventID).Err()
	if err != nil {
		return fmt.Errorf("failed to release event %s: %w", eventID, err)
	}

	return nil
}
