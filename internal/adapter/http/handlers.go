package http

import (
	"net/http"

	"github.com/Strob0t/sddflow/internal/domain/humanqueue"
	"github.com/Strob0t/sddflow/internal/logger"
	"github.com/Strob0t/sddflow/internal/service"
)

// Version is reported by GET /api/v1/.
const Version = "0.1.0"

// Handlers serves the features of one workspace.
type Handlers struct {
	Workspace *service.Workspace
	Audit     *service.AuditService
}

// EnqueueRequest asks for a human review of a phase.
type EnqueueRequest struct {
	Phase  string `json:"phase"`
	Reason string `json:"reason"`
}

// AckRequest assigns a reviewer.
type AckRequest struct {
	Reviewer string `json:"reviewer"`
}

// ResolveRequest records a human decision.
type ResolveRequest struct {
	Decision string `json:"decision"`
	Reviewer string `json:"reviewer"`
	Summary  string `json:"summary"`
}

// EnqueueResponse reports the queued item and whether it is new.
type EnqueueResponse struct {
	Item    *humanqueue.Item `json:"item"`
	Created bool             `json:"created"`
}

// feature opens the feature named in the URL and tags the request context.
func (h *Handlers) feature(w http.ResponseWriter, r *http.Request) (*service.Feature, *http.Request, bool) {
	name := urlParam(r, "feature")
	f, err := h.Workspace.Feature(r.Context(), name)
	if err != nil {
		writeDomainError(w, r, err)
		return nil, r, false
	}
	return f, r.WithContext(logger.WithFeature(r.Context(), f.Store.Name())), true
}

// ListFeatures handles GET /api/v1/features.
func (h *Handlers) ListFeatures(w http.ResponseWriter, r *http.Request) {
	names, err := h.Workspace.Features()
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// GetStatus handles GET /api/v1/features/{feature}/status.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	f, r, ok := h.feature(w, r)
	if !ok {
		return
	}
	report, err := service.Status(r.Context(), f.Store)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListQueue handles GET /api/v1/features/{feature}/queue?status=PENDING.
func (h *Handlers) ListQueue(w http.ResponseWriter, r *http.Request) {
	f, r, ok := h.feature(w, r)
	if !ok {
		return
	}
	items, err := f.Queue.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	summaries := make([]humanqueue.Summary, 0, len(items))
	for _, it := range items {
		summaries = append(summaries, it.Summary())
	}
	writeJSON(w, http.StatusOK, summaries)
}

// GetQueueItem handles GET /api/v1/features/{feature}/queue/{id}.
func (h *Handlers) GetQueueItem(w http.ResponseWriter, r *http.Request) {
	f, r, ok := h.feature(w, r)
	if !ok {
		return
	}
	it, err := f.Queue.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// EnqueueReview handles POST /api/v1/features/{feature}/queue.
func (h *Handlers) EnqueueReview(w http.ResponseWriter, r *http.Request) {
	f, r, ok := h.feature(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[EnqueueRequest](w, r)
	if !ok || !requireField(w, req.Phase, "phase") {
		return
	}
	it, created, err := f.Queue.RequestReview(r.Context(), req.Phase, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, EnqueueResponse{Item: it, Created: created})
}

// AckQueueItem handles POST /api/v1/features/{feature}/queue/{id}/ack.
func (h *Handlers) AckQueueItem(w http.ResponseWriter, r *http.Request) {
	f, r, ok := h.feature(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[AckRequest](w, r)
	if !ok || !requireField(w, req.Reviewer, "reviewer") {
		return
	}
	it, err := f.Queue.Ack(r.Context(), urlParam(r, "id"), req.Reviewer)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// ResolveQueueItem handles POST /api/v1/features/{feature}/queue/{id}/resolve.
func (h *Handlers) ResolveQueueItem(w http.ResponseWriter, r *http.Request) {
	f, r, ok := h.feature(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[ResolveRequest](w, r)
	if !ok || !requireField(w, req.Decision, "decision") || !requireField(w, req.Reviewer, "reviewer") {
		return
	}
	it, err := f.Queue.Resolve(r.Context(), urlParam(r, "id"), req.Decision, req.Reviewer, req.Summary)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// AuditMetrics handles GET /api/v1/metrics.
func (h *Handlers) AuditMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.Audit.ComputeRoot(r.Context(), h.Workspace.Root())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
