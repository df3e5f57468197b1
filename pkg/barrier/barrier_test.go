package barrier_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/orchestra/pkg/barrier"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arrive(id string) barrier.UpdateFunc {
	return func(b *barrier.Barrier) error {
		b.Arrivals = append(b.Arrivals, barrier.Arrival{
			NodeExecutionID: id,
			Context:         models.NewExecutionContext(),
			ArrivedAt:       time.Now(),
		})

		return nil
	}
}

func testStore(t *testing.T, store barrier.Store) {
	t.Helper()

	ctx := context.Background()

	t.Run("creates on first update", func(t *testing.T) {
		key := barrier.Key(uuid.NewString(), "join")

		_, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, store.Update(ctx, key, arrive("a")))

		got, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, key, got.Key)
		require.Len(t, got.Arrivals, 1)
		assert.Equal(t, "a", got.Arrivals[0].NodeExecutionID)
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("discards failed updates", func(t *testing.T) {
		key := barrier.Key(uuid.NewString(), "join")
		boom := errors.New("boom")

		require.NoError(t, store.Update(ctx, key, arrive("a")))

		err := store.Update(ctx, key, func(b *barrier.Barrier) error {
			b.Arrivals = nil

			return boom
		})
		require.ErrorIs(t, err, boom)

		got, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Len(t, got.Arrivals, 1)
	})

	t.Run("serializes concurrent arrivals", func(t *testing.T) {
		key := barrier.Key(uuid.NewString(), "join")

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				assert.NoError(t, store.Update(ctx, key, arrive(string(rune('a'+i)))))
			}()
		}

		wg.Wait()

		got, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Len(t, got.Arrivals, 10)
	})

	t.Run("fire and reopen", func(t *testing.T) {
		key := barrier.Key(uuid.NewString(), "join")

		require.NoError(t, store.Update(ctx, key, arrive("a")))
		require.NoError(t, store.Update(ctx, key, func(b *barrier.Barrier) error {
			b.Fire(time.Now())

			return nil
		}))

		got, _, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, got.Fired)
		assert.Empty(t, got.Arrivals)
		assert.NotNil(t, got.FiredAt)

		require.NoError(t, store.Update(ctx, key, func(b *barrier.Barrier) error {
			b.Reopen()

			return nil
		}))

		got, _, err = store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, got.Fired)
		assert.Equal(t, 1, got.Generation)
	})

	t.Run("delete", func(t *testing.T) {
		key := barrier.Key(uuid.NewString(), "join")

		require.NoError(t, store.Update(ctx, key, arrive("a")))
		require.NoError(t, store.Delete(ctx, key))

		_, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("cleanup expired", func(t *testing.T) {
		key := barrier.Key(uuid.NewString(), "join")

		require.NoError(t, store.Update(ctx, key, arrive("a")))

		removed, err := store.CleanupExpired(ctx, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, removed)

		time.Sleep(10 * time.Millisecond)

		removed, err = store.CleanupExpired(ctx, time.Millisecond)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, 1)

		_, found, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, barrier.NewMemoryStore())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := barrier.NewMemoryStore()

	require.NoError(t, store.Update(ctx, "k", arrive("a")))

	got, _, err := store.Get(ctx, "k")
	require.NoError(t, err)

	got.Arrivals = nil

	again, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, again.Arrivals, 1)
}

func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testutil.RedisAddress(t)})
	t.Cleanup(func() {
		_ = client.Close()
	})

	testStore(t, barrier.NewRedisStore(client, barrier.WithPrefix("orchestra:test:"+uuid.NewString()+":")))
}

func TestJanitor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := barrier.NewMemoryStore()
	require.NoError(t, store.Update(ctx, "k", arrive("a")))

	done := make(chan struct{})

	go func() {
		defer close(done)

		barrier.Janitor(ctx, store, 5*time.Millisecond, time.Nanosecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	require.Eventually(t, func() bool {
		_, found, _ := store.Get(ctx, "k")

		return !found
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
