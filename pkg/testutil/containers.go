package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error

	postgresOnce sync.Once
	postgresURL  string
	postgresErr  error
)

// RedisAddress returns the address of a shared Redis container. Tests are skipped in
// short mode or when no container runtime is available.
func RedisAddress(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis tests in short mode")
	}

	redisOnce.Do(func() {
		redisAddr, redisErr = startRedis()
	})

	if redisErr != nil {
		t.Skipf("skipping Redis tests: %v", redisErr)
	}

	return redisAddr
}

// PostgresURL returns the connection string of a shared PostgreSQL container.
func PostgresURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL tests in short mode")
	}

	postgresOnce.Do(func() {
		postgresURL, postgresErr = startPostgres()
	})

	if postgresErr != nil {
		t.Skipf("skipping PostgreSQL tests: %v", postgresErr)
	}

	return postgresURL
}

func startRedis() (addr string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting Redis testcontainer panicked: %v", r)
		}
	}()

	container, err := testcontainers.Run(
		ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp").WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start Redis container: %w", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get Redis endpoint: %w", err)
	}

	return endpoint, nil
}

func startPostgres() (url string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting PostgreSQL testcontainer panicked: %v", r)
		}
	}()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orchestra_test"),
		postgres.WithUsername("orchestra"),
		postgres.WithPassword("orchestra"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	return container.ConnectionString(ctx, "sslmode=disable")
}
