package fork_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/orchestra/pkg/components/fork"
	"github.com/dukex/orchestra/pkg/expression"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEvaluator struct {
	calls []string
}

func (c *countingEvaluator) Evaluate(expr string, _ map[string]any) (any, error) {
	c.calls = append(c.calls, expr)

	return expr == "yes", nil
}

func run(t *testing.T, config map[string]any, data map[string]any) *testutil.Emitter {
	t.Helper()

	component := fork.NewFactory(slog.New(slog.NewTextHandler(io.Discard, nil))).Create()
	require.NoError(t, component.Configure(config))

	ctx := models.NewExecutionContext()
	for k, v := range data {
		ctx.Set(k, v)
	}

	em := &testutil.Emitter{}
	component.Run(context.Background(), protocol.Invocation{
		WorkflowNodeID: "fork",
		NodeType:       models.NodeTypeDecision,
		Config:         config,
		Context:        ctx,
	}, em)

	return em
}

func decisionOf(t *testing.T, em *testutil.Emitter) map[string]bool {
	t.Helper()

	require.Len(t, em.Successes(), 1)

	decision, ok := em.Successes()[0].LastDecisionFor("fork")
	require.True(t, ok)

	return decision.OptionNodes
}

func TestFork_ValueBasedDecision(t *testing.T) {
	em := run(t, map[string]any{
		"conditions": map[string]any{"X": "val > 10", "Y": "val <= 10"},
	}, map[string]any{"val": 15})

	assert.Equal(t, map[string]bool{"X": true, "Y": false}, decisionOf(t, em))
}

func TestFork_InclusiveSelectsEveryMatch(t *testing.T) {
	em := run(t, map[string]any{
		"conditions": map[string]any{"a": "val > 1", "b": "val > 2", "c": "val > 100"},
	}, map[string]any{"val": 5})

	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": false}, decisionOf(t, em))
}

func TestFork_ExclusiveShortCircuits(t *testing.T) {
	evaluator := &countingEvaluator{}
	expression.Register("counting", evaluator)

	em := run(t, map[string]any{
		"forkMode": "EXCLUSIVE",
		"language": "counting",
		"conditions": []any{
			map[string]any{"option": "first", "expression": "no"},
			map[string]any{"option": "second", "expression": "yes"},
			map[string]any{"option": "third", "expression": "yes"},
		},
	}, nil)

	options := decisionOf(t, em)
	assert.Equal(t, map[string]bool{"first": false, "second": true, "third": false}, options)
	assert.Equal(t, []string{"no", "yes"}, evaluator.calls)

	selected := 0
	for _, v := range options {
		if v {
			selected++
		}
	}

	assert.LessOrEqual(t, selected, 1)
}

func TestFork_EvaluationErrorCountsAsFalse(t *testing.T) {
	em := run(t, map[string]any{
		"conditions": []any{
			map[string]any{"option": "broken", "expression": "val >"},
			map[string]any{"option": "ok", "expression": "true"},
		},
	}, map[string]any{"val": 1})

	assert.Equal(t, map[string]bool{"broken": false, "ok": true}, decisionOf(t, em))
}

func TestFork_DefaultPath(t *testing.T) {
	em := run(t, map[string]any{
		"conditions": map[string]any{"a": "val > 10", "b": "val > 20"},
		"default":    "b",
	}, map[string]any{"val": 1})

	assert.Equal(t, map[string]bool{"a": false, "b": true}, decisionOf(t, em))
}

func TestFork_NoPathSelected(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{"no default", map[string]any{"conditions": map[string]any{"a": "false"}}},
		{"undeclared default", map[string]any{"conditions": map[string]any{"a": "false"}, "default": "z"}},
		{"no conditions", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := run(t, tt.config, nil)

			assert.Empty(t, em.Successes())
			require.Len(t, em.Failures(), 1)
			require.ErrorIs(t, em.Failures()[0], protocol.ErrNoPathSelected)
			assert.Equal(t, "no condition met and no default path defined", em.Failures()[0].Error())
		})
	}
}

func TestFork_DoesNotTouchIncomingContext(t *testing.T) {
	component := fork.NewFactory(slog.Default()).Create()
	config := map[string]any{"conditions": map[string]any{"a": "true"}}
	require.NoError(t, component.Configure(config))

	ctx := models.NewExecutionContext()
	em := &testutil.Emitter{}
	component.Run(context.Background(), protocol.Invocation{WorkflowNodeID: "fork", Config: config, Context: ctx}, em)

	assert.Empty(t, ctx.Decisions)
	assert.Len(t, em.Successes()[0].Decisions, 1)
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []map[string]any{
		{"conditions": "nope"},
		{"conditions": []any{"nope"}},
		{"conditions": []any{map[string]any{"expression": "true"}}},
		{"forkMode": "SOMETIMES"},
		{"language": "cobol"},
	}

	for _, config := range tests {
		_, err := fork.ParseConfig(config)
		assert.Error(t, err, config)
	}
}
