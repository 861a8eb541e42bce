package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/audience-core/internal/pkg/httputil"
	"github.com/ignite/audience-core/internal/pkg/logger"
	"github.com/ignite/audience-core/internal/service/audience"
	"github.com/ignite/audience-core/internal/service/lifecycle"
	"github.com/ignite/audience-core/internal/service/requests"
	"github.com/ignite/audience-core/internal/storage"
)

var (
	log      = logger.Named("api")
	validate = validator.New()
)

// ProgressSource opens a subscription on a user's progress channel.
type ProgressSource interface {
	Subscribe(ctx context.Context, userID string) *redis.PubSub
}

// Handlers contains all HTTP handlers
type Handlers struct {
	audience  *audience.Service
	lifecycle *lifecycle.Service
	requests  *requests.Service
	uploads   storage.Store
	progress  ProgressSource
}

// NewHandlers wires the handlers to the services. uploads and progress may
// be nil, in which case their endpoints answer 503.
func NewHandlers(a *audience.Service, l *lifecycle.Service, rq *requests.Service, uploads storage.Store, progress ProgressSource) *Handlers {
	return &Handlers{audience: a, lifecycle: l, requests: rq, uploads: uploads, progress: progress}
}

// decodeValid decodes the body into dst and runs its validate tags.
func decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !httputil.Decode(w, r, dst) {
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httputil.BadRequest(w, err.Error())
		return false
	}
	return true
}

type countResponse struct {
	Count int64 `json:"count"`
}
