package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops a logger.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler hands records to background writers so that long runs with
// chatty task output never stall on a slow terminal or pipe.
//
// When the buffer is full, records below slog.LevelWarn are dropped and
// counted. Warnings and errors wait for room instead.
type AsyncHandler struct {
	inner slog.Handler
	*asyncState
}

// pending pairs a record with the derived handler that must write it, so
// attrs added through With survive the hop to the worker.
type pending struct {
	h   slog.Handler
	rec slog.Record
}

type asyncState struct {
	ch      chan pending
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
	root    slog.Handler
}

// NewAsyncHandler starts workers draining a buffer of chanSize records.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	st := &asyncState{ch: make(chan pending, chanSize), root: inner}
	for range max(workers, 1) {
		st.wg.Add(1)
		go st.drain()
	}
	return &AsyncHandler{inner: inner, asyncState: st}
}

func (s *asyncState) drain() {
	defer s.wg.Done()
	for p := range s.ch {
		_ = p.h.Handle(context.Background(), p.rec)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle queues the record.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	p := pending{h: h.inner, rec: rec}
	if rec.Level >= slog.LevelWarn {
		select {
		case h.ch <- p:
		case <-ctx.Done():
			h.dropped.Add(1)
		}
		return nil
	}
	select {
	case h.ch <- p:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the buffer and workers.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), asyncState: h.asyncState}
}

// WithGroup returns a handler sharing the buffer and workers.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), asyncState: h.asyncState}
}

// DroppedCount returns how many records were discarded.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close drains queued records and reports drops through the root handler.
// It is safe to call more than once.
func (h *AsyncHandler) Close() {
	h.once.Do(func() {
		close(h.ch)
		h.wg.Wait()
		if n := h.dropped.Load(); n > 0 {
			rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async logger dropped records", 0)
			rec.AddAttrs(slog.Int64("dropped", n))
			_ = h.root.Handle(context.Background(), rec)
		}
	})
}
