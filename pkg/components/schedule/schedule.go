// Package schedule provides a START component that fires one run per cron tick.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/robfig/cron/v3"
)

type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

func (*Factory) Definition() protocol.ComponentDefinition {
	return protocol.ComponentDefinition{
		Actor:       "core",
		Domain:      "schedule",
		Name:        "Schedule",
		Description: "Starts a new run of the workflow on every tick of a cron schedule.",
		NodeTypes:   []models.NodeType{models.NodeTypeStart},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cron": map[string]any{
					"type":        "string",
					"description": "Standard cron expression or descriptor",
					"examples":    []string{"*/5 * * * *", "@hourly", "@every 30s"},
				},
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA time zone the expression is read in",
					"default":     "UTC",
				},
			},
			"required": []string{"cron"},
		},
	}
}

func (f *Factory) Create() protocol.ComponentRuntime {
	return &Component{logger: f.logger.With("component", "core:schedule")}
}

type Component struct {
	logger   *slog.Logger
	expr     string
	location *time.Location
}

func (c *Component) Configure(config map[string]any) error {
	c.expr, _ = config["cron"].(string)
	c.location = time.UTC

	if tz, ok := config["timezone"].(string); ok && tz != "" {
		location, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}

		c.location = location
	}

	return nil
}

// CanActivate validates the cron expression.
func (c *Component) CanActivate(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	_, err := cron.ParseStandard(c.expr)
	if err != nil {
		emitter.Failure(protocol.Errorf(protocol.ErrInvalidConfiguration, "invalid cron expression %q: %v", c.expr, err))

		return
	}

	emitter.Success(invocation.Context)
}

// Run emits a success per tick until ctx is done.
func (c *Component) Run(ctx context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	logger := cronLogger{c.logger.With("execution_id", invocation.WorkflowExecutionID, "cron", c.expr)}

	scheduler := cron.New(
		cron.WithLocation(c.location),
		cron.WithLogger(logger),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)

	_, err := scheduler.AddFunc(c.expr, func() {
		out := invocation.Context.Clone()
		out.Set("fired_at", time.Now().In(c.location).Format(time.RFC3339))

		emitter.Success(out)
	})
	if err != nil {
		emitter.Failure(protocol.Errorf(protocol.ErrInvalidConfiguration, "invalid cron expression %q: %v", c.expr, err))

		return
	}

	scheduler.Start()
	logger.Info("Schedule started")

	<-ctx.Done()

	<-scheduler.Stop().Done()
	logger.Info("Schedule stopped")
}

// cronLogger routes cron's logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
