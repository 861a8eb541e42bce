package api

import (
	"net/http"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/pkg/httputil"
	"github.com/ignite/audience-core/internal/storage"
)

const (
	defaultMembersLimit = 100
	maxMembersLimit     = 1000
	maxUploadMemory     = 32 << 20
)

type filtersRequest struct {
	Filters []domain.FilterSpec `json:"filters"`
}

// CountFilters returns one count per filter plus the combined segment count.
func (h *Handlers) CountFilters(w http.ResponseWriter, r *http.Request) {
	var req filtersRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	counts, err := h.audience.CountFilters(r.Context(), scopeFrom(r.Context()).tenantID, req.Filters)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, counts)
}

type membersRequest struct {
	Filters []domain.FilterSpec `json:"filters"`
	Limit   int                 `json:"limit" validate:"gte=0,lte=1000"`
	Offset  int                 `json:"offset" validate:"gte=0"`
}

// ListMembers pages through the contacts selected by a filter combination.
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if !decodeValid(w, r, &req) {
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultMembersLimit
	}
	if limit > maxMembersLimit {
		limit = maxMembersLimit
	}
	members, err := h.audience.Members(r.Context(), scopeFrom(r.Context()).tenantID, req.Filters, limit, req.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if members == nil {
		members = []*domain.Contact{}
	}
	httputil.OK(w, members)
}

type createContactRequest struct {
	Attributes domain.Attributes `json:"attributes" validate:"required,min=1"`
}

// CreateContact adds one contact, linking it to an existing contact with the
// same primary-key value.
func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req createContactRequest
	if !decodeValid(w, r, &req) {
		return
	}
	c, err := h.lifecycle.CreateContact(r.Context(), scopeFrom(r.Context()).tenantID, req.Attributes)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, c)
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid"`
}

// DeleteContacts soft-deletes the listed contacts.
func (h *Handlers) DeleteContacts(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeValid(w, r, &req) {
		return
	}
	n, err := h.lifecycle.Delete(r.Context(), scopeFrom(r.Context()).tenantID, req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, countResponse{Count: n})
}

// DeleteAllContacts soft-deletes every active contact. Primary users only.
func (h *Handlers) DeleteAllContacts(w http.ResponseWriter, r *http.Request) {
	s := scopeFrom(r.Context())
	n, err := h.lifecycle.DeleteAll(r.Context(), s.tenantID, s.actor)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, countResponse{Count: n})
}

// RestoreContacts reactivates manually deleted contacts.
func (h *Handlers) RestoreContacts(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeValid(w, r, &req) {
		return
	}
	n, err := h.lifecycle.RestoreContacts(r.Context(), scopeFrom(r.Context()).tenantID, req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, countResponse{Count: n})
}

type criteriaRequest struct {
	Criteria []domain.SelectionCriterion `json:"criteria"`
}

// FilterDelete removes contacts outside the criteria and keeps the criteria
// for future imports.
func (h *Handlers) FilterDelete(w http.ResponseWriter, r *http.Request) {
	var req criteriaRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	n, err := h.lifecycle.FilterDelete(r.Context(), scopeFrom(r.Context()).tenantID, req.Criteria)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, countResponse{Count: n})
}

// RevertFilterDelete restores filter-deleted contacts. An empty criteria
// list reverts every filter delete.
func (h *Handlers) RevertFilterDelete(w http.ResponseWriter, r *http.Request) {
	var req criteriaRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	n, err := h.lifecycle.RevertFilterDelete(r.Context(), scopeFrom(r.Context()).tenantID, req.Criteria)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, countResponse{Count: n})
}

// ReadDuplicates lists contacts waiting for duplicate resolution.
func (h *Handlers) ReadDuplicates(w http.ResponseWriter, r *http.Request) {
	dups, err := h.lifecycle.ReadDuplicates(r.Context(), scopeFrom(r.Context()).tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if dups == nil {
		dups = []*domain.Contact{}
	}
	httputil.OK(w, dups)
}

type resolveContact struct {
	ID         string            `json:"id" validate:"required,uuid"`
	Attributes domain.Attributes `json:"attributes"`
}

type resolveRequest struct {
	IsSaveNewContact bool             `json:"isSaveNewContact"`
	Contacts         []resolveContact `json:"contacts" validate:"dive"`
}

// ResolveDuplicates keeps the supplied contacts, or settles every pending
// pair at once when none are supplied.
func (h *Handlers) ResolveDuplicates(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeValid(w, r, &req) {
		return
	}
	var keep []domain.ContactInput
	for _, c := range req.Contacts {
		keep = append(keep, domain.ContactInput{ID: c.ID, Attributes: c.Attributes})
	}
	n, err := h.lifecycle.ResolveDuplicates(r.Context(), scopeFrom(r.Context()).tenantID, req.IsSaveNewContact, keep)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, countResponse{Count: n})
}

type primaryKeyRequest struct {
	PrimaryKey string `json:"primaryKey" validate:"required"`
}

// UpdatePrimaryKey changes the dedup key and queues deduplication. Progress
// is reported to the calling user.
func (h *Handlers) UpdatePrimaryKey(w http.ResponseWriter, r *http.Request) {
	s := scopeFrom(r.Context())
	if !requireUser(w, s) {
		return
	}
	var req primaryKeyRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if err := h.lifecycle.UpdatePrimaryKey(r.Context(), s.tenantID, s.actor.UserID, req.PrimaryKey); err != nil {
		writeError(w, err)
		return
	}
	httputil.Accepted(w, req)
}

// DeletePrimaryKey removes the dedup key.
func (h *Handlers) DeletePrimaryKey(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.DeletePrimaryKey(r.Context(), scopeFrom(r.Context()).tenantID); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// Finalize locks in the tenant's contact list.
func (h *Handlers) Finalize(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Finalize(r.Context(), scopeFrom(r.Context()).tenantID); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

type uploadResponse struct {
	ObjectKey string `json:"objectKey"`
}

// UploadContacts stores a multipart CSV ("file" field) and returns the
// object key to import.
func (h *Handlers) UploadContacts(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		httputil.BadRequest(w, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "file field is required")
		return
	}
	defer file.Close()

	key := storage.UploadKey(scopeFrom(r.Context()).tenantID, header.Filename)
	if err := h.uploads.Put(r.Context(), key, file); err != nil {
		writeError(w, err)
		return
	}
	log.Info("contacts uploaded", "company_id", scopeFrom(r.Context()).tenantID, "object_key", key, "bytes", header.Size)
	httputil.Created(w, uploadResponse{ObjectKey: key})
}

type importRequest struct {
	ObjectKey string `json:"objectKey" validate:"required"`
}

// ImportContacts queues the import of an uploaded CSV.
func (h *Handlers) ImportContacts(w http.ResponseWriter, r *http.Request) {
	s := scopeFrom(r.Context())
	if !requireUser(w, s) {
		return
	}
	var req importRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if err := h.lifecycle.SubmitImport(r.Context(), s.tenantID, s.actor.UserID, req.ObjectKey); err != nil {
		writeError(w, err)
		return
	}
	httputil.Accepted(w, req)
}
