package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type publishFunc func(ctx context.Context, out *models.ExecutionContext, err error, absorbed []string) error

// emitter turns component callbacks into response events. Unless repeatable only the
// first outcome is published.
type emitter struct {
	logger     *slog.Logger
	repeatable bool
	publish    publishFunc

	mu       sync.Mutex
	ctx      context.Context
	span     trace.Span
	emitted  int
	absorbed []string
}

func newEmitter(logger *slog.Logger, repeatable bool, publish publishFunc) *emitter {
	return &emitter{
		logger:     logger,
		repeatable: repeatable,
		publish:    publish,
		ctx:        context.Background(),
	}
}

func (em *emitter) bind(ctx context.Context, span trace.Span) {
	em.mu.Lock()
	defer em.mu.Unlock()

	em.ctx = ctx
	em.span = span
}

func (em *emitter) Absorb(nodeExecutionIDs ...string) {
	em.mu.Lock()
	defer em.mu.Unlock()

	em.absorbed = append(em.absorbed, nodeExecutionIDs...)
}

func (em *emitter) Success(ctx *models.ExecutionContext) {
	em.emit(ctx, nil)
}

func (em *emitter) Failure(err error) {
	em.emit(nil, err)
}

func (em *emitter) emit(out *models.ExecutionContext, err error) {
	em.mu.Lock()

	if em.emitted > 0 && !em.repeatable {
		em.mu.Unlock()
		em.logger.Warn("Ignoring repeated component outcome", "error", err)

		return
	}

	em.emitted++
	absorbed := em.absorbed
	em.absorbed = nil
	ctx := em.ctx
	span := em.span

	em.mu.Unlock()

	if span != nil {
		if err != nil {
			otelhelper.SetError(span, err)
		} else {
			span.SetAttributes(attribute.String(otelhelper.OutcomeKey, "success"))
		}
	}

	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}

	publishErr := em.publish(ctx, out, err, absorbed)
	if publishErr != nil {
		em.logger.Error("Failed to publish component outcome", "error", publishErr)
	}
}
