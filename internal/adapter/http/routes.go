package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/sddflow/internal/adapter/otel"
)

// MountRoutes registers the API routes on r.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})

		r.Get("/features", h.ListFeatures)
		r.Route("/features/{feature}", func(r chi.Router) {
			r.Get("/status", h.GetStatus)

			r.Get("/queue", h.ListQueue)
			r.Post("/queue", h.EnqueueReview)
			r.Get("/queue/{id}", h.GetQueueItem)
			r.Post("/queue/{id}/ack", h.AckQueueItem)
			r.Post("/queue/{id}/resolve", h.ResolveQueueItem)
		})

		r.Get("/metrics", h.AuditMetrics)
	})
}

// RouterOptions configures the optional endpoints of NewRouter.
type RouterOptions struct {
	CORSOrigin string
	// Events serves GET /ws when set.
	Events http.HandlerFunc
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// NewRouter builds the complete handler of "sddflow serve".
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, Logger, otel.HTTPMiddleware("sddflow"))
	if opts.CORSOrigin != "" {
		r.Use(CORS(opts.CORSOrigin))
	}

	MountRoutes(r, h)
	if opts.Events != nil {
		r.Get("/ws", opts.Events)
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}
