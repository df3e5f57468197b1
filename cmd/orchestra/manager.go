package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/orchestra/pkg/barrier"
	"github.com/dukex/orchestra/pkg/eventbus"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/orchestrator"
	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/dukex/orchestra/pkg/persistence/badger"
	"github.com/dukex/orchestra/pkg/runtime"
	"github.com/gofiber/fiber/v3"
)

const (
	janitorInterval = time.Minute
	gcInterval      = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Manager runs the services of one process over a shared event bus.
type Manager struct {
	logger   *slog.Logger
	eventBus eventbus.EventBus

	orchestrator *orchestrator.Orchestrator
	persistence  persistence.Persistence
	workflows    []*models.Workflow

	engine        *runtime.Engine
	barriers      barrier.Store
	barrierMaxAge time.Duration

	api  *fiber.App
	port int
}

// Start subscribes the services and blocks until SIGINT or SIGTERM.
func (m *Manager) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if m.engine != nil {
		err := m.engine.Start(ctx, m.eventBus)
		if err != nil {
			return err
		}

		if m.barriers != nil {
			go barrier.Janitor(ctx, m.barriers, janitorInterval, m.barrierMaxAge, m.logger)
		}
	}

	if m.orchestrator != nil {
		err := m.orchestrator.Start(ctx, m.eventBus)
		if err != nil {
			return err
		}
	}

	err := m.eventBus.Subscribe(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if store, ok := m.persistence.(*badger.Persistence); ok {
		go every(ctx, gcInterval, store.RunGC)
	}

	for _, workflow := range m.workflows {
		execution, err := m.orchestrator.Orchestrate(ctx, workflow)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to orchestrate workflow", "workflow_id", workflow.ID, "error", err)

			continue
		}

		m.logger.InfoContext(ctx, "Workflow orchestrated", "workflow_id", workflow.ID, "execution_id", execution.ID)
	}

	if m.api != nil {
		go m.serve(ctx)
	}

	m.logger.InfoContext(ctx, "Orchestra started")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case <-signals:
	case <-ctx.Done():
	}

	m.logger.InfoContext(ctx, "Shutting down orchestra...")
	cancel()

	return m.shutdown()
}

func (m *Manager) serve(ctx context.Context) {
	m.logger.InfoContext(ctx, "Serving API", "port", m.port)

	err := m.api.Listen(":"+strconv.Itoa(m.port), fiber.ListenConfig{DisableStartupMessage: true})
	if err != nil {
		m.logger.ErrorContext(ctx, "API server stopped", "error", err)
	}
}

func (m *Manager) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error

	if m.api != nil {
		errs = append(errs, m.api.ShutdownWithContext(ctx))
	}

	if m.engine != nil {
		errs = append(errs, m.engine.Close())
	}

	return errors.Join(errs...)
}

func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
