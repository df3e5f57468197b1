package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/orchestra/pkg/eventbus"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLedger(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: testutil.RedisAddress(t)})
	t.Cleanup(func() {
		_ = client.Close()
	})

	ctx := context.Background()
	ledger := eventbus.NewRedisLedger(client, "orchestra:test:ledger:", time.Minute)
	eventID := uuid.NewString()

	first, err := ledger.Claim(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := ledger.Claim(ctx, eventID)
	require.NoError(t, err)
	assert.False(t, again)

	ttl, err := client.TTL(ctx, "orchestra:test:ledger:"+eventID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, ledger.Release(ctx, eventID))

	afterRelease, err := ledger.Claim(ctx, eventID)
	require.NoError(t, err)
	assert.True(t, afterRelease)
}
