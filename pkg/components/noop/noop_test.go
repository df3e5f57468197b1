package noop_test

import (
	"context"
	"testing"

	"github.com/dukex/orchestra/pkg/components/noop"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponent(t *testing.T) {
	factory := noop.NewFactory()
	assert.Equal(t, protocol.DefaultComponent, factory.Definition().Key())

	component := factory.Create()
	require.NoError(t, component.Configure(nil))

	ctx := models.NewExecutionContext()
	ctx.Set("k", "v")
	inv := protocol.Invocation{Context: ctx}

	em := &testutil.Emitter{}
	component.CanActivate(context.Background(), inv, em)
	component.Run(context.Background(), inv, em)

	require.Len(t, em.Successes(), 2)
	assert.Same(t, ctx, em.Successes()[1])
	assert.Empty(t, em.Failures())
}
