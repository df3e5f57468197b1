// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/orchestra/pkg/channels/gochannel"
	"github.com/dukex/orchestra/pkg/channels/kafka"
	"github.com/dukex/orchestra/pkg/eventbus"
)

const ledgerPrefix = "orchestra:ledger:"

// NewEventBus connects the event bus. serviceName names the Kafka consumer group, so
// processes with different names each receive every event.
func NewEventBus(provider, serviceName string, logger *slog.Logger, opts ...eventbus.Option) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)
	opts = append([]eventbus.Option{eventbus.WithLogger(logger)}, opts...)

	switch provider {
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create Go channel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, opts...)
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.Brokers(), serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub, opts...)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}

// NewLedger builds the processed event ledger. An empty url disables deduplication.
func NewLedger(url string, ttl time.Duration) eventbus.Ledger {
	switch {
	case url == "":
		return nil
	case strings.HasPrefix(url, "memory://"):
		return eventbus.NewMemoryLedger(ttl)
	case isRedisURL(url):
		return eventbus.NewRedisLedger(NewRedisClient(url), ledgerPrefix, ttl)
	default:
		panic("Unsupported ledger provider: " + url)
	}
}
