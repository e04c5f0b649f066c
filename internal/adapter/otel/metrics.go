package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "sddflow"

// Metrics holds all sddflow metric instruments.
type Metrics struct {
	TasksStarted     metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	RoutesEvaluated  metric.Int64Counter
	QueueTransitions metric.Int64Counter
	TaskDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksStarted, err = meter.Int64Counter("sddflow.tasks.started",
		metric.WithDescription("Number of tasks started"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("sddflow.tasks.completed",
		metric.WithDescription("Number of tasks completed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("sddflow.tasks.failed",
		metric.WithDescription("Number of tasks failed"))
	if err != nil {
		return nil, err
	}

	m.RoutesEvaluated, err = meter.Int64Counter("sddflow.routes.evaluated",
		metric.WithDescription("Number of policy gate evaluations by route"))
	if err != nil {
		return nil, err
	}

	m.QueueTransitions, err = meter.Int64Counter("sddflow.queue.transitions",
		metric.WithDescription("Number of human queue transitions by status"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("sddflow.task.duration_seconds",
		metric.WithDescription("Task execution duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTask records the outcome and duration of one task execution.
func (m *Metrics) RecordTask(ctx context.Context, agent string, success bool, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("agent", agent))
	if success {
		m.TasksCompleted.Add(ctx, 1, attrs)
	} else {
		m.TasksFailed.Add(ctx, 1, attrs)
	}
	m.TaskDuration.Record(ctx, seconds, attrs)
}

// RecordStart counts a task start.
func (m *Metrics) RecordStart(ctx context.Context, agent string) {
	if m == nil {
		return
	}
	m.TasksStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

// RecordRoute counts a policy gate decision.
func (m *Metrics) RecordRoute(ctx context.Context, phase, route string) {
	if m == nil {
		return
	}
	m.RoutesEvaluated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("route", route),
	))
}

// RecordQueue counts a human queue transition.
func (m *Metrics) RecordQueue(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.QueueTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
