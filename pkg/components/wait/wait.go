// Package wait provides the component of WAIT nodes. The orchestrator parks the node after
// activation and only invokes it once an external signal resumes it.
package wait

import (
	"context"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (*Factory) Definition() protocol.ComponentDefinition {
	return protocol.ComponentDefinition{
		Actor:       "core",
		Domain:      "wait",
		Name:        "Wait",
		Description: "Parks the node until it is resumed with external data.",
		NodeTypes:   []models.NodeType{models.NodeTypeWait},
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

// Run receives the context with the resumed data already merged.
func (Component) Run(_ context.Context, invocation protocol.Invocation, emitter protocol.Emitter) {
	emitter.Success(invocation.Context)
}
