package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/pkg/httputil"
	"github.com/ignite/audience-core/internal/service/requests"
)

type revertFinalizeRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type dedicatedIPRequest struct {
	Enable bool   `json:"enable"`
	Reason string `json:"reason" validate:"max=2000"`
}

// CreateRevertFinalize opens a request for support to reopen the tenant's
// finalized contact list.
func (h *Handlers) CreateRevertFinalize(w http.ResponseWriter, r *http.Request) {
	var req revertFinalizeRequest
	if !decodeValid(w, r, &req) {
		return
	}
	created, err := h.requests.CreateRevertFinalize(r.Context(), scopeFrom(r.Context()).tenantID, req.Reason)
	writeCreatedRequest(w, created, err)
}

// CreateDedicatedIP opens a request to enable or disable a dedicated IP.
func (h *Handlers) CreateDedicatedIP(w http.ResponseWriter, r *http.Request) {
	var req dedicatedIPRequest
	if !decodeValid(w, r, &req) {
		return
	}
	created, err := h.requests.CreateDedicatedIP(r.Context(), scopeFrom(r.Context()).tenantID, req.Enable, req.Reason)
	writeCreatedRequest(w, created, err)
}

// writeCreatedRequest answers 201 on success. A stored request whose
// notification failed is still returned, with the failure in the error
// envelope.
func writeCreatedRequest(w http.ResponseWriter, created *domain.CustomerRequest, err error) {
	switch {
	case err == nil:
		httputil.Created(w, created)
	case created != nil && errors.Is(err, requests.ErrNotificationFailed):
		log.Warn("request notification failed", "request_id", created.ID, "error", err)
		httputil.CodedError(w, http.StatusBadGateway, "NOTIFICATION_FAILED", err.Error(), created)
	default:
		writeError(w, err)
	}
}

// CancelRequest cancels the tenant's outstanding request of the given type.
func (h *Handlers) CancelRequest(w http.ResponseWriter, r *http.Request) {
	t := domain.RequestType(chi.URLParam(r, "type"))
	if err := h.requests.Cancel(r.Context(), scopeFrom(r.Context()).tenantID, t); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// MarkRequestInProgress records that support picked up the request.
func (h *Handlers) MarkRequestInProgress(w http.ResponseWriter, r *http.Request) {
	t := domain.RequestType(chi.URLParam(r, "type"))
	if err := h.requests.MarkInProgress(r.Context(), scopeFrom(r.Context()).tenantID, t); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}
