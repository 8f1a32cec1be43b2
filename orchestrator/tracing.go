package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/collection-planner/orchestrator"

// startSpan opens a child span for one optimization step, tagged with the
// plan it concerns.
func startSpan(ctx context.Context, name, planID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(attribute.String("plan_id", planID)))
}

// endSpan records err when non-nil and closes the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
