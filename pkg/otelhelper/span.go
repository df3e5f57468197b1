package otelhelper

import (
	"github.com/dukex/orchestra/pkg/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed and records err with attrs.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// EventAttributes describes the node execution an event is about.
func EventAttributes(base events.BaseEvent) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(EventIDKey, base.ID),
		attribute.String(CorrelationIDKey, base.CorrelationID),
		attribute.String(WorkflowIDKey, base.WorkflowID),
		attribute.String(ExecutionIDKey, base.WorkflowExecutionID),
		attribute.String(NodeIDKey, base.WorkflowNodeID),
		attribute.String(NodeExecutionIDKey, base.WorkflowNodeExecutionID),
		attribute.String(ComponentKey, base.Component),
	}
}
