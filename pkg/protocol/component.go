// Package protocol defines the contract between the runtime engine and pluggable components.
package protocol

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/orchestra/pkg/models"
)

// DefaultComponent runs for nodes that declare no component.
const DefaultComponent = "core:noop"

// Invocation is everything a component gets to know about the node it runs for.
type Invocation struct {
	WorkflowID              string
	WorkflowExecutionID     string
	WorkflowNodeID          string
	WorkflowNodeExecutionID string
	NodeType                models.NodeType
	Component               string
	Config                  map[string]any
	Context                 *models.ExecutionContext
}

// Emitter carries a component outcome back to the engine. Calling neither Success nor
// Failure leaves the node execution parked.
type Emitter interface {
	Success(ctx *models.ExecutionContext)
	Failure(err error)
	// Absorb names parked node executions of the same execution that the next Success settles.
	Absorb(nodeExecutionIDs ...string)
}

type ComponentRuntime interface {
	Configure(config map[string]any) error
	CanActivate(ctx context.Context, invocation Invocation, emitter Emitter)
	Run(ctx context.Context, invocation Invocation, emitter Emitter)
}

type ComponentFactory interface {
	Create() ComponentRuntime
}

// FactoryFunc adapts a constructor to ComponentFactory.
type FactoryFunc func() ComponentRuntime

func (f FactoryFunc) Create() ComponentRuntime {
	return f()
}

// ComponentDefinition is the registration metadata of a component.
type ComponentDefinition struct {
	Actor       string            `json:"actor"`
	Domain      string            `json:"domain"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	NodeTypes   []models.NodeType `json:"node_types,omitempty"`
	Schema      map[string]any    `json:"schema,omitempty"`
}

func (d ComponentDefinition) Key() string {
	return d.Actor + ":" + d.Domain
}

// Supports reports whether the component may run for nodes of type t. No declared node
// types means every type.
func (d ComponentDefinition) Supports(t models.NodeType) bool {
	return len(d.NodeTypes) == 0 || slices.Contains(d.NodeTypes, t)
}

// ParseKey splits an actor:domain component key.
func ParseKey(key string) (string, string, error) {
	actor, domain, ok := strings.Cut(key, ":")
	if !ok || actor == "" || domain == "" {
		return "", "", fmt.Errorf("invalid component key %q, expected actor:domain", key)
	}

	return actor, domain, nil
}
