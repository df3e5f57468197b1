package testutil

import (
	"sync"

	"github.com/dukex/orchestra/pkg/models"
)

// Emitter records component outcomes.
type Emitter struct {
	mu        sync.Mutex
	successes []*models.ExecutionContext
	failures  []error
	absorbed  []string
}

func (e *Emitter) Success(ctx *models.ExecutionContext) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.successes = append(e.successes, ctx)
}

func (e *Emitter) Failure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.failures = append(e.failures, err)
}

func (e *Emitter) Absorb(ids ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.absorbed = append(e.absorbed, ids...)
}

func (e *Emitter) Successes() []*models.ExecutionContext {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*models.ExecutionContext(nil), e.successes...)
}

func (e *Emitter) Failures() []error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]error(nil), e.failures...)
}

func (e *Emitter) Absorbed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.absorbed...)
}

// Emitted counts every outcome.
func (e *Emitter) Emitted() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.successes) + len(e.failures)
}
