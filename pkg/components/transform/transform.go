// Package transform provides a component that writes evaluated expressions into the context data.
package transform

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/orchestra/pkg/expression"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/template"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) Definition() protocol.ComponentDefinition {
	return protocol.ComponentDefinition{
		Actor:       "core",
		Domain:      "transform",
		Name:        "Transform",
		Description: "Evaluates expressions over the context and stores the results in its data.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"assign": map[string]any{
					"type":                 "object",
					"description":          "Data keys mapped to the expression computing their value.",
					"additionalProperties": map[string]any{"type": "string"},
					"examples": []map[string]any{
						{"total": "price * quantity", "vip": "total > 1000"},
					},
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Expression language",
					"default":     expression.LanguageExpr,
					"enum":        []string{expression.LanguageExpr, expression.LanguageTemplate, expression.LanguageSimple},
				},
			},
			"required": []string{"assign"},
		},
	}
}

func (*Factory) Create() protocol.ComponentRuntime {
	return Component{}
}

type Component struct{}

func (Component) Configure(config map[string]any) error {
	_, err := expression.Lookup(stringOf(config["language"]))

	return err
}

func (Component) CanActivate(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	emitter.Success(invocation.Context)
}

// Run evaluates the assignments in key order. Later assignments see earlier results.
func (Component) Run(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	evaluator, err := expression.Lookup(stringOf(invocation.Config["language"]))
	if err != nil {
		emitter.Failure(protocol.Errorf(protocol.ErrInvalidConfiguration, "%v", err))

		return
	}

	assign, _ := invocation.Config["assign"].(map[string]any)

	keys := make([]string, 0, len(assign))
	for key := range assign {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	out := invocation.Context.Clone()
	scope := template.Scope{
		WorkflowID:      invocation.WorkflowID,
		ExecutionID:     invocation.WorkflowExecutionID,
		NodeID:          invocation.WorkflowNodeID,
		NodeExecutionID: invocation.WorkflowNodeExecutionID,
	}

	for _, key := range keys {
		value, err := evaluator.Evaluate(fmt.Sprint(assign[key]), expression.ContextBindings(out, scope))
		if err != nil {
			emitter.Failure(protocol.Errorf(protocol.ErrComponentExecution, "failed to assign %s: %v", key, err))

			return
		}

		out.Set(key, value)
	}

	emitter.Success(out)
}

func stringOf(value any) string {
	s, _ := value.(string)

	return s
}
