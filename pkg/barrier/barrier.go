// Package barrier stores the pending arrivals of join barriers.
package barrier

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/orchestra/pkg/models"
)

var ErrConflict = errors.New("barrier was modified concurrently")

// Arrival is one context that reached a barrier.
type Arrival struct {
	NodeExecutionID string                   `json:"node_execution_id"`
	Context         *models.ExecutionContext `json:"context"`
	ArrivedAt       time.Time                `json:"arrived_at"`
}

// Barrier is the state of one barrier instance. A fired barrier keeps no arrivals and
// remembers that it fired so later arrivals can be told apart from fresh ones.
type Barrier struct {
	Key        string     `json:"key"`
	Generation int        `json:"generation"`
	Arrivals   []Arrival  `json:"arrivals"`
	Fired      bool       `json:"fired"`
	FiredAt    *time.Time `json:"fired_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Fire clears the arrivals and marks the instance fired.
func (b *Barrier) Fire(at time.Time) {
	b.Arrivals = nil
	b.Fired = true
	b.FiredAt = &at
}

// Reopen starts a new instance under the same key.
func (b *Barrier) Reopen() {
	b.Generation++
	b.Arrivals = nil
	b.Fired = false
	b.FiredAt = nil
}

// UpdateFunc mutates a barrier inside the store's atomic region. It may run more than
// once for one Update call and must derive everything it reports from b.
type UpdateFunc func(b *Barrier) error

// Store is the shared barrier table. Update runs fn atomically per key and persists the
// result when fn returns nil.
type Store interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Get(ctx context.Context, key string) (*Barrier, bool, error)
	Delete(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error)
}

// Key identifies the barrier of a join node within one execution.
func Key(executionID, nodeID string) string {
	return executionID + "/" + nodeID
}
