package transform_test

import (
	"context"
	"testing"

	"github.com/dukex/orchestra/pkg/components/transform"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, config map[string]any, ctx *models.ExecutionContext) *testutil.Emitter {
	t.Helper()

	component := transform.NewFactory().Create()
	require.NoError(t, component.Configure(config))

	em := &testutil.Emitter{}
	component.Run(context.Background(), protocol.Invocation{Config: config, Context: ctx}, em)

	return em
}

func TestComponent_Assigns(t *testing.T) {
	ctx := models.NewExecutionContext()
	ctx.Set("price", 10)
	ctx.Set("quantity", 3)

	em := run(t, map[string]any{
		"assign": map[string]any{
			"a_total": "price * quantity",
			"b_vip":   "a_total > 20",
		},
	}, ctx)

	require.Len(t, em.Successes(), 1)
	out := em.Successes()[0]
	assert.Equal(t, 30, out.Data["a_total"])
	assert.Equal(t, true, out.Data["b_vip"])
	assert.NotContains(t, ctx.Data, "a_total")
}

func TestComponent_EvaluationError(t *testing.T) {
	em := run(t, map[string]any{"assign": map[string]any{"x": "1 +"}}, models.NewExecutionContext())

	require.Len(t, em.Failures(), 1)
	assert.ErrorIs(t, em.Failures()[0], protocol.ErrComponentExecution)
}

func TestComponent_UnknownLanguage(t *testing.T) {
	component := transform.NewFactory().Create()

	require.Error(t, component.Configure(map[string]any{"language": "cobol"}))
}
