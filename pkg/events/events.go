// Package events defines the request/response events exchanged between the orchestrator
// and the component runtime engine.
package events

import (
	"time"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/google/uuid"
)

type EventType string

const Topic = "orchestra.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"
const EventIDMetadataKey = "event_id"

const (
	ActivationRequestedEvent EventType = "component.activation.requested"
	ActivationRespondedEvent EventType = "component.activation.responded"
	InvocationRequestedEvent EventType = "component.invocation.requested"
	InvocationRespondedEvent EventType = "component.invocation.responded"
)

type Origin string

const (
	OriginOrchestrator  Origin = "ORCHESTRATOR"
	OriginRuntimeEngine Origin = "RUNTIME_ENGINE"
)

// Target identifies the node execution an event is about.
type Target struct {
	WorkflowID              string `json:"workflow_id"`
	WorkflowExecutionID     string `json:"workflow_execution_id"`
	WorkflowNodeID          string `json:"workflow_node_id"`
	WorkflowNodeExecutionID string `json:"workflow_node_execution_id"`
	Component               string `json:"component"`
}

type BaseEvent struct {
	ID            string                   `json:"event_id"`
	Type          EventType                `json:"type"`
	Timestamp     time.Time                `json:"timestamp"`
	CorrelationID string                   `json:"correlation_id"`
	CausationID   string                   `json:"causation_id,omitempty"`
	Origin        Origin                   `json:"origin"`
	Context       *models.ExecutionContext `json:"context"`
	Error         *models.ErrorPayload     `json:"error"`
	ProcessedDate *time.Time               `json:"processed_date"`

	Target
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// NewBaseEvent stamps a new event. The correlation id is inherited from cause, when
// there is one, and the causation id points at it.
func NewBaseEvent(eventType EventType, origin Origin, target Target, cause *BaseEvent) BaseEvent {
	base := BaseEvent{
		ID:        newID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Origin:    origin,
		Target:    target,
	}

	if cause != nil {
		base.CorrelationID = cause.CorrelationID
		base.CausationID = cause.ID
	}

	if base.CorrelationID == "" {
		base.CorrelationID = newID()
	}

	return base
}

// Renew returns a copy with a fresh id and timestamp. Correlation fields are kept and the
// processed mark is cleared.
func Renew(base BaseEvent) BaseEvent {
	base.ID = newID()
	base.Timestamp = time.Now().UTC()
	base.ProcessedDate = nil

	return base
}

// MarkProcessed returns a copy carrying the time it was consumed.
func MarkProcessed(base BaseEvent, at time.Time) BaseEvent {
	at = at.UTC()
	base.ProcessedDate = &at

	return base
}

func (b BaseEvent) EventID() string {
	return b.ID
}

func (b BaseEvent) Base() BaseEvent {
	return b
}

func (b BaseEvent) Processed() bool {
	return b.ProcessedDate != nil
}

// Err rebuilds the carried error, if any.
func (b BaseEvent) Err() error {
	return protocol.FromPayload(b.Error)
}

func (b BaseEvent) Failed() bool {
	return b.Error != nil
}

type ActivationRequest struct {
	BaseEvent

	NodeType models.NodeType `json:"node_type"`
	Config   map[string]any  `json:"config,omitempty"`
}

func (ActivationRequest) GetType() EventType {
	return ActivationRequestedEvent
}

type ActivationResponse struct {
	BaseEvent
}

func (ActivationResponse) GetType() EventType {
	return ActivationRespondedEvent
}

type InvocationRequest struct {
	BaseEvent

	NodeType models.NodeType `json:"node_type"`
	Config   map[string]any  `json:"config,omitempty"`
}

func (InvocationRequest) GetType() EventType {
	return InvocationRequestedEvent
}

type InvocationResponse struct {
	BaseEvent

	Absorbed []string `json:"absorbed,omitempty"`
}

func (InvocationResponse) GetType() EventType {
	return InvocationRespondedEvent
}

func NewActivationRequest(
	target Target,
	nodeType models.NodeType,
	config map[string]any,
	ctx *models.ExecutionContext,
	cause *BaseEvent,
) *ActivationRequest {
	base := NewBaseEvent(ActivationRequestedEvent, OriginOrchestrator, target, cause)
	base.Context = ctx

	return &ActivationRequest{BaseEvent: base, NodeType: nodeType, Config: config}
}

func NewInvocationRequest(
	target Target,
	nodeType models.NodeType,
	config map[string]any,
	ctx *models.ExecutionContext,
	cause *BaseEvent,
) *InvocationRequest {
	base := NewBaseEvent(InvocationRequestedEvent, OriginOrchestrator, target, cause)
	base.Context = ctx

	return &InvocationRequest{BaseEvent: base, NodeType: nodeType, Config: config}
}

// RespondToActivation builds the response to req. A nil ctx echoes the request context.
func RespondToActivation(req *ActivationRequest, ctx *models.ExecutionContext, err error) *ActivationResponse {
	base := NewBaseEvent(ActivationRespondedEvent, OriginRuntimeEngine, req.Target, &req.BaseEvent)
	base.Context = responseContext(req.Context, ctx)
	base.Error = protocol.ToPayload(err)

	return &ActivationResponse{BaseEvent: base}
}

// RespondToInvocation builds the response to req. A nil ctx echoes the request context.
func RespondToInvocation(
	req *InvocationRequest,
	ctx *models.ExecutionContext,
	err error,
	absorbed []string,
) *InvocationResponse {
	base := NewBaseEvent(InvocationRespondedEvent, OriginRuntimeEngine, req.Target, &req.BaseEvent)
	base.Context = responseContext(req.Context, ctx)
	base.Error = protocol.ToPayload(err)

	return &InvocationResponse{BaseEvent: base, Absorbed: absorbed}
}

func responseContext(requested, emitted *models.ExecutionContext) *models.ExecutionContext {
	if emitted != nil {
		return emitted
	}

	if requested != nil {
		return requested
	}

	return models.NewExecutionContext()
}
