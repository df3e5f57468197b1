package log_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	logcomponent "github.com/dukex/orchestra/pkg/components/log"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponent_Run(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	component := logcomponent.NewFactory(logger).Create()

	config := map[string]any{"message": "order {{.data.order}} in {{.execution.id}}", "level": "warn"}
	require.NoError(t, component.Configure(config))

	ctx := models.NewExecutionContext()
	ctx.Set("order", "A-1")

	em := &testutil.Emitter{}
	component.Run(context.Background(), protocol.Invocation{
		WorkflowExecutionID: "exec-1",
		WorkflowNodeID:      "log",
		Config:              config,
		Context:             ctx,
	}, em)

	require.Len(t, em.Successes(), 1)
	assert.Same(t, ctx, em.Successes()[0])
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "order A-1 in exec-1")
}

func TestComponent_RenderFailure(t *testing.T) {
	component := logcomponent.NewFactory(slog.Default()).Create()

	em := &testutil.Emitter{}
	component.Run(context.Background(), protocol.Invocation{
		Config:  map[string]any{"message": "{{.data.order"},
		Context: models.NewExecutionContext(),
	}, em)

	require.Len(t, em.Failures(), 1)
	assert.ErrorIs(t, em.Failures()[0], protocol.ErrComponentExecution)
}

func TestComponent_ConfigureRejectsNonStringLevel(t *testing.T) {
	component := logcomponent.NewFactory(slog.Default()).Create()

	require.Error(t, component.Configure(map[string]any{"level": 3}))
}
