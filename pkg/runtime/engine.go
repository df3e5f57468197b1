// Package runtime runs components on behalf of the orchestrator. Requests arrive over the
// event bus and every outcome travels back as a response event.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/orchestra/pkg/eventbus"
	"github.com/dukex/orchestra/pkg/events"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/otelhelper"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPoolSize       = 256
	defaultReleaseTimeout = 10 * time.Second
)

// Components resolves component keys to configured runtimes.
type Components interface {
	Get(key string, config map[string]any) (protocol.ComponentRuntime, bool, error)
	Definition(key string) (protocol.ComponentDefinition, bool)
}

type Engine struct {
	logger     *slog.Logger
	components Components
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer

	poolSize       int
	releaseTimeout time.Duration
	pool           *ants.Pool

	// runCtx outlives the bus callbacks so long running START components keep going
	// after the request message is acked.
	runCtx context.Context
	cancel context.CancelFunc
}

type Option func(*Engine)

func WithPoolSize(size int) Option {
	return func(e *Engine) {
		e.poolSize = size
	}
}

func WithReleaseTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.releaseTimeout = timeout
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func NewEngine(logger *slog.Logger, components Components, publisher eventbus.EventPublisher, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:         logger.With("module", "runtime-engine"),
		components:     components,
		publisher:      publisher,
		tracer:         otelhelper.Tracer("orchestra/runtime"),
		poolSize:       defaultPoolSize,
		releaseTimeout: defaultReleaseTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	pool, err := ants.NewPool(e.poolSize, ants.WithNonblocking(true), ants.WithPanicHandler(func(p any) {
		e.logger.Error("Component worker panicked outside the engine boundary", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	e.pool = pool
	e.runCtx, e.cancel = context.WithCancel(context.Background())

	return e, nil
}

// Start registers the request handlers. The caller subscribes the bus.
func (e *Engine) Start(ctx context.Context, subscriber eventbus.EventSubscriber) error {
	e.logger.InfoContext(ctx, "Starting runtime engine", "pool_size", e.poolSize)

	err := subscriber.Handle(events.ActivationRequestedEvent, e.handleActivationRequest)
	if err != nil {
		return err
	}

	return subscriber.Handle(events.InvocationRequestedEvent, e.handleInvocationRequest)
}

// Close stops long running components and waits for in-flight work up to the release timeout.
func (e *Engine) Close() error {
	e.cancel()

	return e.pool.ReleaseTimeout(e.releaseTimeout)
}

func (e *Engine) handleActivationRequest(ctx context.Context, event any) error {
	req, ok := event.(*events.ActivationRequest)
	if !ok {
		e.logger.ErrorContext(ctx, "Invalid event type for ActivationRequest")

		return nil
	}

	return e.ActivateComponent(ctx, req)
}

func (e *Engine) handleInvocationRequest(ctx context.Context, event any) error {
	req, ok := event.(*events.InvocationRequest)
	if !ok {
		e.logger.ErrorContext(ctx, "Invalid event type for InvocationRequest")

		return nil
	}

	return e.InvokeComponent(ctx, req)
}

// ActivateComponent schedules CanActivate for the requested node. It returns once the work
// is queued; the outcome is published as an ActivationResponse.
func (e *Engine) ActivateComponent(ctx context.Context, req *events.ActivationRequest) error {
	logger := e.logger.With(
		"event_id", req.ID,
		"execution_id", req.WorkflowExecutionID,
		"node_id", req.WorkflowNodeID,
		"component", req.Component,
	)

	publish := func(pubCtx context.Context, out *models.ExecutionContext, err error, _ []string) error {
		return e.publisher.Publish(pubCtx, req.WorkflowExecutionID, events.RespondToActivation(req, out, err))
	}

	runtime, err := e.resolve(req.Component, req.NodeType, req.Config)
	if err != nil {
		logger.WarnContext(ctx, "Rejecting activation", "error", err)

		return publish(ctx, nil, err, nil)
	}

	invocation := invocationOf(req.Target, req.NodeType, req.Config, req.Context)
	em := newEmitter(logger, false, publish)

	return e.submit(ctx, logger, publish, func() {
		e.execute(logger, "runtime.activate", req.BaseEvent, req.NodeType, em, func(spanCtx context.Context) {
			runtime.CanActivate(spanCtx, invocation, em)
		})
	})
}

// InvokeComponent schedules Run for the requested node. START nodes may answer many times.
func (e *Engine) InvokeComponent(ctx context.Context, req *events.InvocationRequest) error {
	logger := e.logger.With(
		"event_id", req.ID,
		"execution_id", req.WorkflowExecutionID,
		"node_id", req.WorkflowNodeID,
		"component", req.Component,
	)

	publish := func(pubCtx context.Context, out *models.ExecutionContext, err error, absorbed []string) error {
		return e.publisher.Publish(pubCtx, req.WorkflowExecutionID, events.RespondToInvocation(req, out, err, absorbed))
	}

	runtime, err := e.resolve(req.Component, req.NodeType, req.Config)
	if err != nil {
		logger.WarnContext(ctx, "Rejecting invocation", "error", err)

		return publish(ctx, nil, err, nil)
	}

	invocation := invocationOf(req.Target, req.NodeType, req.Config, req.Context)
	em := newEmitter(logger, req.NodeType == models.NodeTypeStart, publish)

	return e.submit(ctx, logger, publish, func() {
		e.execute(logger, "runtime.invoke", req.BaseEvent, req.NodeType, em, func(spanCtx context.Context) {
			runtime.Run(spanCtx, invocation, em)
		})
	})
}

func (e *Engine) resolve(key string, nodeType models.NodeType, config map[string]any) (protocol.ComponentRuntime, error) {
	if key == "" {
		key = protocol.DefaultComponent
	}

	definition, found := e.components.Definition(key)
	if !found {
		return nil, protocol.Errorf(protocol.ErrComponentNotFound, "component %s is not registered", key)
	}

	if !definition.Supports(nodeType) {
		return nil, protocol.Errorf(protocol.ErrIncompatibleNodeType, "component %s does not run %s nodes", key, nodeType)
	}

	runtime, found, err := e.components.Get(key, config)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, protocol.Errorf(protocol.ErrComponentNotFound, "component %s is not registered", key)
	}

	return runtime, nil
}

// submit never blocks the bus goroutine. A saturated pool answers the request with a
// ComponentExecutionError instead of waiting for a worker.
func (e *Engine) submit(
	ctx context.Context,
	logger *slog.Logger,
	publish func(context.Context, *models.ExecutionContext, error, []string) error,
	task func(),
) error {
	err := e.pool.Submit(task)
	if errors.Is(err, ants.ErrPoolOverload) {
		logger.WarnContext(ctx, "Worker pool exhausted", "pool_size", e.poolSize, "running", e.pool.Running())

		return publish(ctx, nil, protocol.Errorf(protocol.ErrComponentExecution, "worker pool exhausted: %v", err), nil)
	}

	if err != nil {
		return fmt.Errorf("failed to schedule component work: %w", err)
	}

	return nil
}

func (e *Engine) execute(
	logger *slog.Logger,
	spanName string,
	base events.BaseEvent,
	nodeType models.NodeType,
	em *emitter,
	call func(ctx context.Context),
) {
	attrs := append(otelhelper.EventAttributes(base), attribute.String(otelhelper.NodeTypeKey, string(nodeType)))

	spanCtx, span := otelhelper.StartSpan(e.runCtx, e.tracer, spanName, attrs...)
	defer span.End()

	em.bind(spanCtx, span)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Component panicked", "panic", r)
			em.Failure(protocol.Errorf(protocol.ErrComponentExecution, "component panicked: %v", r))
		}
	}()

	call(spanCtx)
}

func invocationOf(target events.Target, nodeType models.NodeType, config map[string]any, ctx *models.ExecutionContext) protocol.Invocation {
	if ctx == nil {
		ctx = models.NewExecutionContext()
	}

	if config == nil {
		config = map[string]any{}
	}

	component := target.Component
	if component == "" {
		component = protocol.DefaultComponent
	}

	return protocol.Invocation{
		WorkflowID:              target.WorkflowID,
		WorkflowExecutionID:     target.WorkflowExecutionID,
		WorkflowNodeID:          target.WorkflowNodeID,
		WorkflowNodeExecutionID: target.WorkflowNodeExecutionID,
		NodeType:                nodeType,
		Component:               component,
		Config:                  config,
		Context:                 ctx,
	}
}
