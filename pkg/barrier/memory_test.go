package barrier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Arrivals must not be lost while the janitor sweeps a key that is being updated.
func TestMemoryStore_UpdatesStaySerializedDuringCleanup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := Key("exec", "join")

	const arrivals = 200

	var wg sync.WaitGroup

	stop := make(chan struct{})
	sweeper := make(chan struct{})

	go func() {
		defer close(sweeper)

		for {
			select {
			case <-stop:
				return
			default:
				_, _ = store.CleanupExpired(ctx, time.Hour)
			}
		}
	}()

	for range arrivals {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := store.Update(ctx, key, func(b *Barrier) error {
				b.Arrivals = append(b.Arrivals, Arrival{Context: models.NewExecutionContext()})

				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	close(stop)
	<-sweeper

	b, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, b.Arrivals, arrivals)
	assert.Zero(t, store.lockCount())
}
