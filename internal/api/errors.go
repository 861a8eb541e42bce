package api

import (
	"errors"
	"net/http"

	"github.com/ignite/audience-core/internal/pkg/httputil"
	"github.com/ignite/audience-core/internal/segmentation"
	"github.com/ignite/audience-core/internal/service/audience"
	"github.com/ignite/audience-core/internal/service/contacts"
	"github.com/ignite/audience-core/internal/service/dedup"
	"github.com/ignite/audience-core/internal/service/lifecycle"
	"github.com/ignite/audience-core/internal/service/requests"
	"github.com/ignite/audience-core/internal/storage"
	"github.com/ignite/audience-core/internal/worker"
)

var badRequest = []error{
	contacts.ErrInvalidTenantID,
	segmentation.ErrInvalidFilter,
	worker.ErrInvalidCSV,
	lifecycle.ErrDuplicatesPending,
	lifecycle.ErrPrimaryKeyMissing,
	lifecycle.ErrRevertRequestPending,
	lifecycle.ErrObjectKeyRequired,
	audience.ErrContactsNotFinalized,
	audience.ErrNameRequired,
	requests.ErrRequestPending,
	requests.ErrInvalidType,
	dedup.ErrPrimaryKeyRequired,
	storage.ErrInvalidKey,
}

var notFound = []error{
	lifecycle.ErrAlreadyDeleted,
	contacts.ErrNotFound,
	contacts.ErrCompanyNotFound,
	audience.ErrSegmentNotFound,
	requests.ErrNotFound,
	storage.ErrNotFound,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeError translates service sentinels into HTTP responses. Anything
// unrecognised is a 500 with the cause logged and hidden.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case isAny(err, badRequest):
		httputil.BadRequest(w, err.Error())
	case isAny(err, notFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, lifecycle.ErrForbidden):
		httputil.Forbidden(w, err.Error())
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrQueueClosed):
		httputil.Error(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, requests.ErrNotificationFailed):
		httputil.Error(w, http.StatusBadGateway, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
