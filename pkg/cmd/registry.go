package cmd

import (
	"log/slog"

	"github.com/dukex/orchestra/pkg/barrier"
	"github.com/dukex/orchestra/pkg/components"
	"github.com/dukex/orchestra/pkg/registry"
)

// NewRegistry registers the core components and the plugins found below pluginsPath.
func NewRegistry(log *slog.Logger, store barrier.Store, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)

	components.RegisterDefaults(reg, log, store)

	if pluginsPath != "" {
		err := reg.LoadPlugins(pluginsPath)
		if err != nil {
			panic(err)
		}
	}

	return reg
}
