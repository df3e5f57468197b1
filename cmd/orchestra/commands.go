package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/orchestra/pkg/barrier"
	"github.com/dukex/orchestra/pkg/cmd"
	"github.com/dukex/orchestra/pkg/eventbus"
	"github.com/dukex/orchestra/pkg/log"
	"github.com/dukex/orchestra/pkg/orchestrator"
	"github.com/dukex/orchestra/pkg/otelhelper"
	"github.com/dukex/orchestra/pkg/registry"
	"github.com/dukex/orchestra/pkg/runtime"
	"github.com/dukex/orchestra/pkg/web"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

type role int

const (
	roleOrchestrator role = 1 << iota
	roleRuntime
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run the orchestrator, the runtime engine and the API in one process",
		Flags:   flags(commonFlags(), orchestratorFlags(), runtimeFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			return start(ctx, command, "orchestra", roleOrchestrator|roleRuntime)
		},
	}
}

func NewOrchestratorCommand() *cli.Command {
	return &cli.Command{
		Name:  "orchestrator",
		Usage: "Run the orchestrator and the API",
		Flags: flags(commonFlags(), orchestratorFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			return start(ctx, command, "orchestra-orchestrator", roleOrchestrator)
		},
	}
}

func NewRuntimeCommand() *cli.Command {
	return &cli.Command{
		Name:  "runtime",
		Usage: "Run the component runtime engine",
		Flags: flags(commonFlags(), runtimeFlags()),
		Action: func(ctx context.Context, command *cli.Command) error {
			return start(ctx, command, "orchestra-runtime", roleRuntime)
		},
	}
}

func start(ctx context.Context, command *cli.Command, serviceName string, roles role) error {
	log.SetupWriter(os.Stderr, command.String("log-level"), command.String("log-format"))

	logger := log.WithModule(serviceName)
	logger.InfoContext(ctx, "Initializing orchestra", "service", serviceName)

	var tracer trace.Tracer

	if command.Bool("tracing") {
		t, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()

		tracer = t
	}

	eventBus := cmd.NewEventBus(command.String("event-bus"), serviceName, logger,
		ledgerOption(command)...)
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	manager := &Manager{logger: logger, eventBus: eventBus}

	var components *registry.Registry

	if roles&roleRuntime != 0 {
		store := cmd.NewBarrierStore(command.String("barrier-url"))
		reg := cmd.NewRegistry(logger, store, command.String("plugins-path"))
		components = reg

		opts := []runtime.Option{runtime.WithPoolSize(command.Int("workers"))}
		if tracer != nil {
			opts = append(opts, runtime.WithTracer(tracer))
		}

		engine, err := runtime.NewEngine(logger, reg, eventBus, opts...)
		if err != nil {
			return err
		}

		manager.engine = engine
		manager.barriers = store
		manager.barrierMaxAge = command.Duration("barrier-max-age")
	}

	if roles&roleOrchestrator != 0 {
		persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
		defer func() {
			if err := persistence.Close(context.Background()); err != nil {
				logger.Error("Failed to close persistence", "error", err)
			}
		}()

		opts, err := orchestratorOptions(command, tracer)
		if err != nil {
			return err
		}

		orch := orchestrator.New(logger, persistence, persistence, eventBus, opts...)

		manager.orchestrator = orch
		manager.persistence = persistence

		if path := command.String("workflows-path"); path != "" {
			workflows, err := cmd.LoadWorkflows(ctx, persistence, path)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Loaded workflows", "count", len(workflows), "path", path)

			if command.Bool("orchestrate") {
				manager.workflows = workflows
			}
		}

		if command.Bool("api") {
			if components == nil {
				components = cmd.NewRegistry(logger, barrier.NewMemoryStore(), "")
			}

			handlers := web.NewAPIHandlers(orch, persistence, components,
				validator.New(validator.WithRequiredStructEnabled()))

			manager.api = web.NewApp(handlers, web.WithRequestLog())
			manager.port = command.Int("port")
		}
	}

	return manager.Start(ctx)
}

func ledgerOption(command *cli.Command) []eventbus.Option {
	ledger := cmd.NewLedger(command.String("ledger-url"), command.Duration("ledger-ttl"))
	if ledger == nil {
		return nil
	}

	return []eventbus.Option{eventbus.WithLedger(ledger)}
}

func orchestratorOptions(command *cli.Command, tracer trace.Tracer) ([]orchestrator.Option, error) {
	opts := []orchestrator.Option{orchestrator.WithStateTimeout(command.Duration("state-timeout"))}

	switch policy := command.String("failure-policy"); policy {
	case "halt-branch", "":
	case "fail-execution":
		opts = append(opts, orchestrator.WithFailurePolicy(orchestrator.FailExecution))
	default:
		return nil, fmt.Errorf("unsupported failure policy %q", policy)
	}

	if tracer != nil {
		opts = append(opts, orchestrator.WithTracer(tracer))
	}

	return opts, nil
}
