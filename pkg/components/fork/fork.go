// Package fork provides the decision producing component of DECISION nodes.
package fork

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/orchestra/pkg/expression"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/template"
)

type Mode string

const (
	ModeInclusive Mode = "INCLUSIVE"
	ModeExclusive Mode = "EXCLUSIVE"
)

// Condition selects the child Option when Expression holds.
type Condition struct {
	Option     string
	Expression string
}

// Config is the parsed node configuration.
type Config struct {
	Conditions []Condition
	Mode       Mode
	Default    string
	Language   string
}

// ParseConfig reads conditions either as a list of {option, expression} objects, kept in
// order, or as a map evaluated in key order.
func ParseConfig(config map[string]any) (Config, error) {
	parsed := Config{Mode: ModeInclusive}

	switch conditions := config["conditions"].(type) {
	case nil:
	case map[string]any:
		keys := make([]string, 0, len(conditions))
		for key := range conditions {
			keys = append(keys, key)
		}

		slices.Sort(keys)

		for _, key := range keys {
			parsed.Conditions = append(parsed.Conditions, Condition{Option: key, Expression: fmt.Sprint(conditions[key])})
		}
	case []any:
		for i, raw := range conditions {
			entry, ok := raw.(map[string]any)
			if !ok {
				return Config{}, fmt.Errorf("condition %d must be an object, got %T", i, raw)
			}

			option, _ := entry["option"].(string)
			if option == "" {
				return Config{}, fmt.Errorf("condition %d has no option", i)
			}

			parsed.Conditions = append(parsed.Conditions, Condition{Option: option, Expression: fmt.Sprint(entry["expression"])})
		}
	default:
		return Config{}, fmt.Errorf("conditions must be a list or a map, got %T", conditions)
	}

	if mode, ok := config["forkMode"].(string); ok && mode != "" {
		parsed.Mode = Mode(mode)
		if parsed.Mode != ModeInclusive && parsed.Mode != ModeExclusive {
			return Config{}, fmt.Errorf("unsupported fork mode %q", mode)
		}
	}

	parsed.Default, _ = config["default"].(string)
	parsed.Language, _ = config["language"].(string)

	_, err := expression.Lookup(parsed.Language)
	if err != nil {
		return Config{}, err
	}

	return parsed, nil
}

type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{logger: logger}
}

func (*Factory) Definition() protocol.ComponentDefinition {
	return protocol.ComponentDefinition{
		Actor:       "core",
		Domain:      "fork",
		Name:        "Fork",
		Description: "Evaluates conditions over the context and records which children run next.",
		NodeTypes:   []models.NodeType{models.NodeTypeDecision},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"conditions": map[string]any{
					"description": "Child ids mapped to the condition selecting them, or an ordered list of {option, expression}.",
					"type":        []string{"object", "array"},
					"items": map[string]any{
						"type":     "object",
						"required": []string{"option", "expression"},
						"properties": map[string]any{
							"option":     map[string]any{"type": "string"},
							"expression": map[string]any{"type": "string"},
						},
					},
					"additionalProperties": map[string]any{"type": "string"},
				},
				"forkMode": map[string]any{
					"type":    "string",
					"default": string(ModeInclusive),
					"enum":    []string{string(ModeInclusive), string(ModeExclusive)},
				},
				"default": map[string]any{
					"type":        "string",
					"description": "Child taken when no condition holds.",
				},
				"language": map[string]any{
					"type":    "string",
					"default": expression.LanguageExpr,
				},
			},
		},
	}
}

func (f *Factory) Create() protocol.ComponentRuntime {
	return &Component{logger: f.logger.With("component", "core:fork")}
}

type Component struct {
	logger *slog.Logger
	config Config
}

func (c *Component) Configure(config map[string]any) error {
	parsed, err := ParseConfig(config)
	if err != nil {
		return err
	}

	c.config = parsed

	return nil
}

func (c *Component) CanActivate(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	emitter.Success(invocation.Context)
}

// Run evaluates the conditions in order. EXCLUSIVE stops at the first one that holds and
// leaves the rest false without evaluating them. A condition that fails to evaluate
// counts as false.
func (c *Component) Run(ctx context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	config := c.config

	evaluator, err := expression.Lookup(config.Language)
	if err != nil {
		emitter.Failure(protocol.Errorf(protocol.ErrInvalidConfiguration, "%v", err))

		return
	}

	bindings := expression.ContextBindings(invocation.Context, template.Scope{
		WorkflowID:      invocation.WorkflowID,
		ExecutionID:     invocation.WorkflowExecutionID,
		NodeID:          invocation.WorkflowNodeID,
		NodeExecutionID: invocation.WorkflowNodeExecutionID,
	})

	options := make(map[string]bool, len(config.Conditions))
	matched := false

	for _, condition := range config.Conditions {
		if matched && config.Mode == ModeExclusive {
			options[condition.Option] = false

			continue
		}

		holds, err := c.evaluate(evaluator, condition, bindings)
		if err != nil {
			c.logger.WarnContext(ctx, "Condition evaluation failed",
				"kind", protocol.KindConditionEvaluation,
				"option", condition.Option,
				"expression", condition.Expression,
				"execution_id", invocation.WorkflowExecutionID,
				"node_id", invocation.WorkflowNodeID,
				"error", err,
			)
		}

		options[condition.Option] = holds
		matched = matched || holds
	}

	if !matched {
		if _, declared := options[config.Default]; config.Default == "" || !declared {
			emitter.Failure(protocol.Errorf(protocol.ErrNoPathSelected, "%s", protocol.ErrNoPathSelected.Error()))

			return
		}

		options[config.Default] = true
	}

	out := invocation.Context.Clone()
	out.AppendDecision(models.Decision{DecisionNode: invocation.WorkflowNodeID, OptionNodes: options})

	emitter.Success(out)
}

func (c *Component) evaluate(evaluator expression.Evaluator, condition Condition, bindings map[string]any) (bool, error) {
	value, err := evaluator.Evaluate(condition.Expression, bindings)
	if err != nil {
		return false, protocol.Errorf(protocol.ErrConditionEvaluation, "%v", err)
	}

	holds, err := expression.Truthy(value)
	if err != nil {
		return false, protocol.Errorf(protocol.ErrConditionEvaluation, "%v", err)
	}

	return holds, nil
}
