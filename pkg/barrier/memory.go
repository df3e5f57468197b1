package barrier

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu       sync.Mutex
	locks    map[string]*keyLock
	barriers map[string]*Barrier
	now      func() time.Time
}

// keyLock is dropped once no Update holds or waits for it.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    make(map[string]*keyLock),
		barriers: make(map[string]*Barrier),
		now:      time.Now,
	}
}

// lock blocks until key is free and returns the matching unlock.
func (s *MemoryStore) lock(key string) func() {
	s.mu.Lock()

	lock, ok := s.locks[key]
	if !ok {
		lock = &keyLock{}
		s.locks[key] = lock
	}

	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		s.mu.Lock()
		lock.refs--

		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *MemoryStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.locks)
}

func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	unlock := s.lock(key)
	defer unlock()

	s.mu.Lock()
	current, ok := s.barriers[key]
	s.mu.Unlock()

	now := s.now().UTC()

	working := &Barrier{Key: key, CreatedAt: now}
	if ok {
		working = current.clone()
	}

	err := fn(working)
	if err != nil {
		return err
	}

	working.UpdatedAt = now

	s.mu.Lock()
	s.barriers[key] = working
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Barrier, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.barriers[key]
	if !ok {
		return nil, false, nil
	}

	return current.clone(), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.barriers, key)

	return nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-maxAge)
	removed := 0

	for key, b := range s.barriers {
		if b.UpdatedAt.Before(cutoff) {
			delete(s.barriers, key)

			removed++
		}
	}

	return removed, nil
}

func (b *Barrier) clone() *Barrier {
	clone := *b
	clone.Arrivals = make([]Arrival, 0, len(b.Arrivals))

	for _, arrival := range b.Arrivals {
		clone.Arrivals = append(clone.Arrivals, Arrival{
			NodeExecutionID: arrival.NodeExecutionID,
			Context:         arrival.Context.Clone(),
			ArrivedAt:       arrival.ArrivedAt,
		})
	}

	if b.FiredAt != nil {
		firedAt := *b.FiredAt
		clone.FiredAt = &firedAt
	}

	return &clone
}
