package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_EvictsOncePerTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start

	ledger := NewMemoryLedger(time.Minute)
	ledger.now = func() time.Time { return now }

	claim := func(id string) bool {
		claimed, err := ledger.Claim(ctx, id)
		require.NoError(t, err)

		return claimed
	}

	assert.True(t, claim("a"))

	now = start.Add(30 * time.Second)
	assert.True(t, claim("b"))
	assert.False(t, claim("a"))
	assert.Len(t, ledger.seen, 2)

	// The sweep is due: "a" is gone before being claimed again, "b" is still fresh.
	now = start.Add(61 * time.Second)
	assert.True(t, claim("a"))
	assert.Len(t, ledger.seen, 2)
	assert.Equal(t, start.Add(121*time.Second), ledger.evictAt)

	// "b" expired but stays in the map until the next sweep; it still counts as new.
	now = start.Add(100 * time.Second)
	assert.Len(t, ledger.seen, 2)
	assert.True(t, claim("b"))
	assert.False(t, claim("b"))
	assert.Equal(t, start.Add(121*time.Second), ledger.evictAt)
}
