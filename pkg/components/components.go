// Package components registers the built-in components.
package components

import (
	"log/slog"

	"github.com/dukex/orchestra/pkg/barrier"
	"github.com/dukex/orchestra/pkg/components/fork"
	"github.com/dukex/orchestra/pkg/components/join"
	logcomponent "github.com/dukex/orchestra/pkg/components/log"
	"github.com/dukex/orchestra/pkg/components/noop"
	"github.com/dukex/orchestra/pkg/components/schedule"
	"github.com/dukex/orchestra/pkg/components/transform"
	"github.com/dukex/orchestra/pkg/components/wait"
	"github.com/dukex/orchestra/pkg/registry"
)

// RegisterDefaults registers every core:* component. store backs the join barriers.
func RegisterDefaults(reg *registry.Registry, logger *slog.Logger, store barrier.Store) {
	reg.RegisterPlugin(noop.NewFactory())
	reg.RegisterPlugin(fork.NewFactory(logger))
	reg.RegisterPlugin(join.NewFactory(logger, store))
	reg.RegisterPlugin(logcomponent.NewFactory(logger))
	reg.RegisterPlugin(transform.NewFactory())
	reg.RegisterPlugin(schedule.NewFactory(logger))
	reg.RegisterPlugin(wait.NewFactory())
}
