package logger

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	featureKey contextKey = iota
	taskIDKey
	requestIDKey
)

// WithFeature returns a context whose log records carry the feature directory.
func WithFeature(ctx context.Context, feature string) context.Context {
	return context.WithValue(ctx, featureKey, feature)
}

// WithTaskID returns a context whose log records carry the task id.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// Feature extracts the feature from the context, or "".
func Feature(ctx context.Context) string {
	v, _ := ctx.Value(featureKey).(string)
	return v
}

// TaskID extracts the task id from the context, or "".
func TaskID(ctx context.Context) string {
	v, _ := ctx.Value(taskIDKey).(string)
	return v
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns slog.Default with the context's feature and task id
// attached, for call sites that have no injected logger.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if f := Feature(ctx); f != "" {
		l = l.With("feature", f)
	}
	if id := TaskID(ctx); id != "" {
		l = l.With("task_id", id)
	}
	return l
}

// contextHandler adds the context values above to every record logged
// through the *Context methods.
type contextHandler struct {
	inner slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if f := Feature(ctx); f != "" {
		rec.AddAttrs(slog.String("feature", f))
	}
	if id := TaskID(ctx); id != "" {
		rec.AddAttrs(slog.String("task_id", id))
	}
	if id := RequestID(ctx); id != "" {
		rec.AddAttrs(slog.String("request_id", id))
	}
	return h.inner.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{inner: h.inner.WithGroup(name)}
}
