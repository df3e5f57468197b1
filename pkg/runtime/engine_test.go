package runtime_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/orchestra/pkg/eventbus"
	"github.com/dukex/orchestra/pkg/events"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/dukex/orchestra/pkg/registry"
	"github.com/dukex/orchestra/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	keys   []string
	events []eventbus.Event
}

func (c *capture) Publish(_ context.Context, key string, event eventbus.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.keys = append(c.keys, key)
	c.events = append(c.events, event)

	return nil
}

func (c *capture) snapshot() []eventbus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]eventbus.Event(nil), c.events...)
}

type funcComponent struct {
	activate func(protocol.Invocation, protocol.Emitter)
	run      func(context.Context, protocol.Invocation, protocol.Emitter)
}

func (f *funcComponent) Configure(map[string]any) error {
	return nil
}

func (f *funcComponent) CanActivate(_ context.Context, inv protocol.Invocation, em protocol.Emitter) {
	f.activate(inv, em)
}

func (f *funcComponent) Run(ctx context.Context, inv protocol.Invocation, em protocol.Emitter) {
	f.run(ctx, inv, em)
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, component protocol.ComponentRuntime, nodeTypes ...models.NodeType) (*runtime.Engine, *capture) {
	t.Helper()

	reg := registry.NewRegistry(quiet())
	reg.Register(protocol.ComponentDefinition{Actor: "test", Domain: "component", NodeTypes: nodeTypes}, component)

	pub := &capture{}

	engine, err := runtime.NewEngine(quiet(), reg, pub, runtime.WithPoolSize(4), runtime.WithReleaseTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = engine.Close()
	})

	return engine, pub
}

func target(component string) events.Target {
	return events.Target{
		WorkflowID:              "wf",
		WorkflowExecutionID:     "exec",
		WorkflowNodeID:          "node",
		WorkflowNodeExecutionID: "node-exec",
		Component:               component,
	}
}

func contextWith(key string, value any) *models.ExecutionContext {
	ctx := models.NewExecutionContext()
	ctx.Set(key, value)

	return ctx
}

func TestEngine_ActivateSuccess(t *testing.T) {
	engine, pub := newEngine(t, &funcComponent{
		activate: func(inv protocol.Invocation, em protocol.Emitter) {
			out := inv.Context.Clone()
			out.Set("activated", inv.WorkflowNodeID)
			em.Success(out)
		},
	})

	req := events.NewActivationRequest(target("test:component"), models.NodeTypeTask, nil, contextWith("in", 1), nil)
	require.NoError(t, engine.ActivateComponent(context.Background(), req))

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	resp, ok := pub.snapshot()[0].(*events.ActivationResponse)
	require.True(t, ok)
	assert.False(t, resp.Failed())
	assert.Equal(t, req.ID, resp.CausationID)
	assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	assert.Equal(t, events.OriginRuntimeEngine, resp.Origin)
	assert.Equal(t, "node", resp.Context.Data["activated"])
	assert.Equal(t, "exec", pub.keys[0])
}

func TestEngine_ComponentNotFound(t *testing.T) {
	engine, pub := newEngine(t, &funcComponent{})

	req := events.NewActivationRequest(target("test:missing"), models.NodeTypeTask, nil, nil, nil)
	require.NoError(t, engine.ActivateComponent(context.Background(), req))

	published := pub.snapshot()
	require.Len(t, published, 1)

	resp, ok := published[0].(*events.ActivationResponse)
	require.True(t, ok)
	require.True(t, resp.Failed())
	assert.Equal(t, protocol.KindComponentNotFound, resp.Error.Kind)
	assert.ErrorIs(t, resp.Err(), protocol.ErrComponentNotFound)
}

func TestEngine_IncompatibleNodeType(t *testing.T) {
	engine, pub := newEngine(t, &funcComponent{}, models.NodeTypeDecision)

	req := events.NewInvocationRequest(target("test:component"), models.NodeTypeTask, nil, nil, nil)
	require.NoError(t, engine.InvokeComponent(context.Background(), req))

	resp, ok := pub.snapshot()[0].(*events.InvocationResponse)
	require.True(t, ok)
	assert.Equal(t, protocol.KindIncompatibleNodeType, resp.Error.Kind)
}

func TestEngine_PanicBecomesFailure(t *testing.T) {
	engine, pub := newEngine(t, &funcComponent{
		run: func(context.Context, protocol.Invocation, protocol.Emitter) {
			panic("kaboom")
		},
	})

	req := events.NewInvocationRequest(target("test:component"), models.NodeTypeTask, nil, contextWith("in", 1), nil)
	require.NoError(t, engine.InvokeComponent(context.Background(), req))

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	resp, ok := pub.snapshot()[0].(*events.InvocationResponse)
	require.True(t, ok)
	require.True(t, resp.Failed())
	assert.Equal(t, protocol.KindComponentExecution, resp.Error.Kind)
	assert.Contains(t, resp.Error.Message, "kaboom")
	assert.InDelta(t, 1, resp.Context.Data["in"], 0)
}

func TestEngine_OneShotInvocation(t *testing.T) {
	engine, pub := newEngine(t, &funcComponent{
		run: func(_ context.Context, inv protocol.Invocation, em protocol.Emitter) {
			em.Absorb("other-exec")
			em.Success(inv.Context)
			em.Failure(errors.New("ignored"))
			em.Success(inv.Context)
		},
	})

	req := events.NewInvocationRequest(target("test:component"), models.NodeTypeTask, nil, nil, nil)
	require.NoError(t, engine.InvokeComponent(context.Background(), req))

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return len(pub.snapshot()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	resp, ok := pub.snapshot()[0].(*events.InvocationResponse)
	require.True(t, ok)
	assert.False(t, resp.Failed())
	assert.Equal(t, []string{"other-exec"}, resp.Absorbed)
}

func TestEngine_StartInvocationRepeats(t *testing.T) {
	engine, pub := newEngine(t, &funcComponent{
		run: func(_ context.Context, inv protocol.Invocation, em protocol.Emitter) {
			for i := range 3 {
				em.Success(contextWith("tick", i))
			}
		},
	})

	req := events.NewInvocationRequest(target("test:component"), models.NodeTypeStart, nil, nil, nil)
	require.NoError(t, engine.InvokeComponent(context.Background(), req))

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 3 }, time.Second, 5*time.Millisecond)

	ids := map[string]bool{}
	for _, event := range pub.snapshot() {
		resp, ok := event.(*events.InvocationResponse)
		require.True(t, ok)
		ids[resp.ID] = true
		assert.Equal(t, req.CorrelationID, resp.CorrelationID)
	}

	assert.Len(t, ids, 3)
}

func TestEngine_CloseCancelsRunningComponents(t *testing.T) {
	stopped := make(chan struct{})

	engine, _ := newEngine(t, &funcComponent{
		run: func(ctx context.Context, _ protocol.Invocation, _ protocol.Emitter) {
			<-ctx.Done()
			close(stopped)
		},
	})

	req := events.NewInvocationRequest(target("test:component"), models.NodeTypeStart, nil, nil, nil)
	require.NoError(t, engine.InvokeComponent(context.Background(), req))

	require.NoError(t, engine.Close())

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("component was not cancelled")
	}
}

func TestEngine_SaturatedPoolAnswersWithoutBlocking(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	reg := registry.NewRegistry(quiet())
	reg.Register(protocol.ComponentDefinition{Actor: "test", Domain: "component"}, &funcComponent{
		run: func(ctx context.Context, _ protocol.Invocation, _ protocol.Emitter) {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
		},
	})

	pub := &capture{}
	engine, err := runtime.NewEngine(quiet(), reg, pub, runtime.WithPoolSize(1), runtime.WithReleaseTimeout(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = engine.Close()
	})
	t.Cleanup(func() {
		close(release)
	})

	first := events.NewInvocationRequest(target("test:component"), models.NodeTypeStart, nil, nil, nil)
	require.NoError(t, engine.InvokeComponent(context.Background(), first))
	<-started

	done := make(chan error, 1)
	second := events.NewInvocationRequest(target("test:component"), models.NodeTypeTask, nil, nil, nil)
	go func() {
		done <- engine.InvokeComponent(context.Background(), second)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("invocation blocked on a saturated pool")
	}

	published := pub.snapshot()
	require.Len(t, published, 1)

	resp, ok := published[0].(*events.InvocationResponse)
	require.True(t, ok)
	require.True(t, resp.Failed())
	assert.Equal(t, second.CorrelationID, resp.CorrelationID)
	assert.Equal(t, protocol.KindComponentExecution, resp.Error.Kind)
	assert.ErrorIs(t, resp.Err(), protocol.ErrComponentExecution)
}
