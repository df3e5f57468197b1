package cmd

import (
	"fmt"
	"strings"

	"github.com/dukex/orchestra/pkg/barrier"
	"github.com/redis/go-redis/v9"
)

// NewBarrierStore builds the join barrier table. memory:// keeps it in process, which is
// only correct when a single runtime engine runs.
func NewBarrierStore(url string) barrier.Store {
	switch {
	case url == "" || strings.HasPrefix(url, "memory://"):
		return barrier.NewMemoryStore()
	case isRedisURL(url):
		return barrier.NewRedisStore(NewRedisClient(url))
	default:
		panic("Unsupported barrier store provider: " + url)
	}
}

func NewRedisClient(url string) *redis.Client {
	options, err := redis.ParseURL(url)
	if err != nil {
		panic(fmt.Errorf("invalid Redis URL: %w", err))
	}

	return redis.NewClient(options)
}

func isRedisURL(url string) bool {
	return strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://")
}
