// Package noop provides the component nodes run when they declare none.
package noop

import (
	"context"

	"github.com/dukex/orchestra/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) Definition() protocol.ComponentDefinition {
	return protocol.ComponentDefinition{
		Actor:       "core",
		Domain:      "noop",
		Name:        "No-op",
		Description: "Passes the incoming context through unchanged.",
	}
}

func (*Factory) Create() protocol.ComponentRuntime {
	return Component{}
}

type Component struct{}

func (Component) Configure(map[string]any) error {
	return nil
}

func (Component) CanActivate(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	emitter.Success(invocation.Context)
}

func (Component) Run(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	emitter.Success(invocation.Context)
}
