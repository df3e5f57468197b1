// Package log provides a component that logs a templated message and passes the context on.
package log

import (
	"context"
	"fmt"
	"log/slog"

	logging "github.com/dukex/orchestra/pkg/log"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/template"
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
		Domain:      "log",
		Name:        "Log",
		Description: "Logs a message at a specified level. Supports templating over the context.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "The message to log. Supports templating for dynamic content.",
					"examples": []string{
						"Order {{.data.order_id}} accepted",
						"Fired at {{.data.fired_at}} for execution {{.execution.id}}",
					},
				},
				"level": map[string]any{
					"type":        "string",
					"description": "Log level for the message",
					"default":     "info",
					"enum":        []string{"debug", "info", "warn", "warning", "error"},
				},
			},
			"required": []string{"message"},
		},
	}
}

func (f *Factory) Create() protocol.ComponentRuntime {
	return &Component{logger: f.logger.With("component", "core:log")}
}

type Component struct {
	logger *slog.Logger
}

func (c *Component) Configure(config map[string]any) error {
	if level, ok := config["level"]; ok {
		if _, isString := level.(string); !isString {
			return fmt.Errorf("level must be a string, got %T", level)
		}
	}

	return nil
}

func (c *Component) CanActivate(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	emitter.Success(invocation.Context)
}

func (c *Component) Run(ctx context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	raw, _ := invocation.Config["message"].(string)

	rendered, err := template.RenderWithContext(raw, invocation.Context, scopeOf(invocation))
	if err != nil {
		emitter.Failure(protocol.Errorf(protocol.ErrComponentExecution, "failed to render message: %v", err))

		return
	}

	levelName, _ := invocation.Config["level"].(string)

	c.logger.Log(ctx, logging.ParseLevel(levelName), fmt.Sprint(rendered),
		"execution_id", invocation.WorkflowExecutionID,
		"node_id", invocation.WorkflowNodeID,
	)

	emitter.Success(invocation.Context)
}

func scopeOf(invocation protocol.Invocation) template.Scope {
	return template.Scope{
		WorkflowID:      invocation.WorkflowID,
		ExecutionID:     invocation.WorkflowExecutionID,
		NodeID:          invocation.WorkflowNodeID,
		NodeExecutionID: invocation.WorkflowNodeExecutionID,
	}
}
