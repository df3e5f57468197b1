// Package join provides the barrier component that waits for converging branches.
//
// Every arrival for the same (execution, node) pair lands in one barrier. The barrier
// fires once when the awaited branches have been seen, succeeding with the merged
// context and absorbing the node executions of the other parked arrivals. Arrivals that
// do not fire the barrier emit nothing and stay parked.
package join

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dario.cat/mergo"
	"github.com/dukex/orchestra/pkg/barrier"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
)

var errUnchanged = errors.New("barrier left unchanged")

type Factory struct {
	logger *slog.Logger
	store  barrier.Store
}

func NewFactory(logger *slog.Logger, store barrier.Store) *Factory {
	return &Factory{logger: logger, store: store}
}

func (*Factory) Definition() protocol.ComponentDefinition {
	return protocol.ComponentDefinition{
		Actor:       "core",
		Domain:      "join",
		Name:        "Join",
		Description: "Waits for the awaited branches and continues once with their merged context.",
		NodeTypes:   []models.NodeType{models.NodeTypeTask},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"await": map[string]any{
					"type":        "array",
					"description": "Node ids the barrier waits for.",
					"minItems":    1,
					"items":       map[string]any{"type": "string"},
				},
				"waitMode": map[string]any{
					"type":    "string",
					"default": string(WaitAll),
					"enum":    []string{string(WaitAll), string(WaitAny), string(WaitThreshold)},
				},
				"threshold": map[string]any{
					"type":        "integer",
					"description": "Distinct awaited nodes needed in THRESHOLD mode.",
					"minimum":     1,
				},
				"mergeStrategy": map[string]any{
					"type":    "string",
					"default": string(PickLast),
					"enum":    []string{string(PickFirst), string(PickLast)},
				},
				"lateArrival": map[string]any{
					"type":    "string",
					"default": string(LateDrop),
					"enum":    []string{string(LateDrop), string(LateRenew), string(LateError)},
				},
				"deepMerge": map[string]any{
					"type":        "boolean",
					"description": "Merge object values written by several branches key by key.",
					"default":     false,
				},
			},
			"required": []string{"await"},
		},
	}
}

func (f *Factory) Create() protocol.ComponentRuntime {
	return &Component{
		logger: f.logger.With("component", "core:join"),
		store:  f.store,
		now:    time.Now,
	}
}

type Component struct {
	logger *slog.Logger
	store  barrier.Store
	config Config
	now    func() time.Time
}

func (c *Component) Configure(config map[string]any) error {
	parsed, err := ParseConfig(config)
	if err != nil {
		return err
	}

	c.config = parsed

	return nil
}

// CanActivate accepts arrivals whose ancestry reaches an awaited node.
func (c *Component) CanActivate(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	if invocation.WorkflowExecutionID == "" || invocation.WorkflowNodeID == "" {
		emitter.Failure(protocol.Errorf(protocol.ErrJoinMisconfigured, "arrival without execution or node id"))

		return
	}

	upstream := invocation.Context.Graph().Upstream()

	for _, key := range c.config.Await {
		if upstream[key] {
			emitter.Success(invocation.Context)

			return
		}
	}

	emitter.Failure(protocol.Errorf(protocol.ErrArrivalNotAwaited, "arrival at %s reaches none of %v", invocation.WorkflowNodeID, c.config.Await))
}

type outcome struct {
	fired    bool
	late     bool
	merged   *models.ExecutionContext
	absorbed []string
}

func (c *Component) Run(ctx context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	if invocation.WorkflowExecutionID == "" || invocation.WorkflowNodeID == "" {
		emitter.Failure(protocol.Errorf(protocol.ErrJoinMisconfigured, "arrival without execution or node id"))

		return
	}

	key := barrier.Key(invocation.WorkflowExecutionID, invocation.WorkflowNodeID)
	logger := c.logger.With("barrier", key, "node_execution_id", invocation.WorkflowNodeExecutionID)

	var result outcome

	err := c.store.Update(ctx, key, func(b *barrier.Barrier) error {
		result = outcome{}

		return c.arrive(b, invocation, &result)
	})

	switch {
	case errors.Is(err, errUnchanged):
	case err != nil:
		emitter.Failure(protocol.Errorf(protocol.ErrComponentExecution, "barrier %s: %v", key, err))

		return
	}

	switch {
	case result.late && c.config.LateArrival == LateError:
		emitter.Failure(protocol.Errorf(protocol.ErrLateArrival, "barrier %s already fired", key))
	case result.late:
		logger.DebugContext(ctx, "Dropping late arrival")
	case result.fired:
		logger.DebugContext(ctx, "Barrier fired", "absorbed", len(result.absorbed))
		emitter.Absorb(result.absorbed...)
		emitter.Success(result.merged)
	default:
		logger.DebugContext(ctx, "Arrival parked")
	}
}

func (c *Component) arrive(b *barrier.Barrier, invocation protocol.Invocation, result *outcome) error {
	if b.Fired {
		if c.config.LateArrival != LateRenew {
			result.late = true

			return errUnchanged
		}

		b.Reopen()
	}

	arrival := barrier.Arrival{
		NodeExecutionID: invocation.WorkflowNodeExecutionID,
		Context:         invocation.Context.Clone(),
		ArrivedAt:       c.now().UTC(),
	}

	replaced := false

	for i := range b.Arrivals {
		if b.Arrivals[i].NodeExecutionID == arrival.NodeExecutionID {
			b.Arrivals[i] = arrival
			replaced = true
		}
	}

	if !replaced {
		b.Arrivals = append(b.Arrivals, arrival)
	}

	seen := make(map[string]bool)
	for _, buffered := range b.Arrivals {
		for id := range buffered.Context.Graph().Upstream() {
			seen[id] = true
		}
	}

	if !c.config.Satisfied(seen) {
		return nil
	}

	merged, err := merge(b.Arrivals, c.config)
	if err != nil {
		return err
	}

	for _, buffered := range b.Arrivals {
		if buffered.NodeExecutionID != arrival.NodeExecutionID {
			result.absorbed = append(result.absorbed, buffered.NodeExecutionID)
		}
	}

	result.fired = true
	result.merged = merged

	b.Fire(c.now().UTC())

	return nil
}

// merge folds the buffered contexts in arrival order. Nested objects are merged key by
// key, other values follow the strategy.
// merge resolves every top-level data key by the strategy: PICK_FIRST keeps the first
// writer's value, PICK_LAST the last one. With deepMerge, map values written by several
// arrivals are merged key by key in the same precedence instead.
func merge(arrivals []barrier.Arrival, config Config) (*models.ExecutionContext, error) {
	merged := models.NewExecutionContext()

	for _, arrival := range arrivals {
		err := mergeData(merged.Data, arrival.Context.Data, config)
		if err != nil {
			return nil, err
		}

		merged.Decisions = append(merged.Decisions, arrival.Context.Decisions...)
		merged.GraphNodes = append(merged.GraphNodes, arrival.Context.GraphNodes...)
	}

	return merged, nil
}

func mergeData(dst, src map[string]any, config Config) error {
	for key, value := range src {
		current, exists := dst[key]
		if !exists {
			dst[key] = value

			continue
		}

		currentMap, currentIsMap := current.(map[string]any)
		valueMap, valueIsMap := value.(map[string]any)

		if config.DeepMerge && currentIsMap && valueIsMap {
			nested, err := mergeNested(currentMap, valueMap, config.MergeStrategy)
			if err != nil {
				return err
			}

			dst[key] = nested

			continue
		}

		if config.MergeStrategy == PickLast {
			dst[key] = value
		}
	}

	return nil
}

func mergeNested(current, value map[string]any, strategy MergeStrategy) (map[string]any, error) {
	out := make(map[string]any, len(current)+len(value))

	err := mergo.Merge(&out, current)
	if err != nil {
		return nil, err
	}

	options := []func(*mergo.Config){}
	if strategy == PickLast {
		options = append(options, mergo.WithOverride)
	}

	err = mergo.Merge(&out, value, options...)
	if err != nil {
		return nil, err
	}

	return out, nil
}
