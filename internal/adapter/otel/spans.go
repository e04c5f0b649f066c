package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sddflow"

// StartTaskSpan starts a span for one task execution.
func StartTaskSpan(ctx context.Context, feature, taskID, agent string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task",
		trace.WithAttributes(
			attribute.String("feature.id", feature),
			attribute.String("task.id", taskID),
			attribute.String("task.agent", agent),
		),
	)
}

// StartRouteSpan starts a span for a policy gate evaluation.
func StartRouteSpan(ctx context.Context, feature, phase string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "route",
		trace.WithAttributes(
			attribute.String("feature.id", feature),
			attribute.String("route.phase", phase),
		),
	)
}

// StartQueueSpan starts a span for a human queue operation.
func StartQueueSpan(ctx context.Context, feature, queueID, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "queue."+op,
		trace.WithAttributes(
			attribute.String("feature.id", feature),
			attribute.String("queue.id", queueID),
		),
	)
}
