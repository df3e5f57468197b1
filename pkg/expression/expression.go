// Package expression evaluates condition and assignment expressions against context data.
package expression

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/template"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const (
	LanguageExpr     = "expr"
	LanguageTemplate = "template"
	LanguageSimple   = "simple"
)

// Evaluator computes the value of expression over bindings.
type Evaluator interface {
	Evaluate(expression string, bindings map[string]any) (any, error)
}

var (
	engines = map[string]Evaluator{
		LanguageExpr:     NewExprEvaluator(),
		LanguageTemplate: TemplateEvaluator{},
		LanguageSimple:   SimpleEvaluator{},
	}
	enginesMu sync.RWMutex
)

// Lookup returns the evaluator registered for language. Empty selects expr.
func Lookup(language string) (Evaluator, error) {
	if language == "" {
		language = LanguageExpr
	}

	enginesMu.RLock()
	defer enginesMu.RUnlock()

	evaluator, ok := engines[strings.ToLower(language)]
	if !ok {
		return nil, fmt.Errorf("unsupported expression language %q", language)
	}

	return evaluator, nil
}

// Register adds or replaces an evaluator.
func Register(language string, evaluator Evaluator) {
	enginesMu.Lock()
	defer enginesMu.Unlock()

	engines[strings.ToLower(language)] = evaluator
}

// ContextBindings exposes the context data keys at the top level, next to the template
// bindings. Data keys never shadow data, decisions, env or execution.
func ContextBindings(executionCtx *models.ExecutionContext, scope template.Scope) map[string]any {
	bindings := template.Bindings(executionCtx, scope)

	if executionCtx != nil {
		for key, value := range executionCtx.Data {
			if _, reserved := bindings[key]; !reserved {
				bindings[key] = value
			}
		}
	}

	return bindings
}

// Truthy coerces an evaluation result into a condition outcome.
func Truthy(value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if v == "" {
			return false, nil
		}

		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", v, err)
		}

		return result, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

// ExprEvaluator runs expr-lang programs, compiled once per expression.
type ExprEvaluator struct {
	programs sync.Map
}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{}
}

func (e *ExprEvaluator) Evaluate(expression string, bindings map[string]any) (any, error) {
	program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}

	if bindings == nil {
		bindings = map[string]any{}
	}

	result, err := expr.Run(program, bindings)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %q: %w", expression, err)
	}

	return result, nil
}

func (e *ExprEvaluator) compile(expression string) (*vm.Program, error) {
	if cached, ok := e.programs.Load(expression); ok {
		return cached.(*vm.Program), nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", expression, err)
	}

	e.programs.Store(expression, program)

	return program, nil
}

// TemplateEvaluator renders text/template expressions with bindings as the dot.
type TemplateEvaluator struct{}

func (TemplateEvaluator) Evaluate(expression string, bindings map[string]any) (any, error) {
	return template.Render(expression, bindings)
}

// SimpleEvaluator resolves a dotted path into bindings, or a literal when nothing matches.
type SimpleEvaluator struct{}

func (SimpleEvaluator) Evaluate(expression string, bindings map[string]any) (any, error) {
	expression = strings.TrimSpace(expression)

	negate := strings.HasPrefix(expression, "!")
	if negate {
		expression = strings.TrimSpace(expression[1:])
	}

	value, found := lookupPath(bindings, expression)
	if !found {
		value = expression
	}

	if !negate {
		return value, nil
	}

	truthy, err := Truthy(value)
	if err != nil {
		return nil, err
	}

	return !truthy, nil
}

func lookupPath(bindings map[string]any, path string) (any, bool) {
	var current any = bindings

	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
