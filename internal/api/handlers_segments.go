package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/pkg/httputil"
)

type segmentRequest struct {
	Name    string              `json:"name"`
	Filters []domain.FilterSpec `json:"filters"`
}

// segmentID reads the {id} path parameter, answering 400 when it is not a
// segment id.
func segmentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid segment id")
		return "", false
	}
	return id.String(), true
}

func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	segs, err := h.audience.ListSegments(r.Context(), scopeFrom(r.Context()).tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if segs == nil {
		segs = []*domain.Segment{}
	}
	httputil.OK(w, segs)
}

func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	seg, err := h.audience.CreateSegment(r.Context(), scopeFrom(r.Context()).tenantID, req.Name, req.Filters)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, seg)
}

func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	seg, err := h.audience.GetSegment(r.Context(), scopeFrom(r.Context()).tenantID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, seg)
}

func (h *Handlers) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	var req segmentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	seg, err := h.audience.UpdateSegment(r.Context(), scopeFrom(r.Context()).tenantID, id, req.Name, req.Filters)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, seg)
}

func (h *Handlers) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	if err := h.audience.DeleteSegment(r.Context(), scopeFrom(r.Context()).tenantID, id); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}
