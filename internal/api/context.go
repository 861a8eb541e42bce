package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/pkg/httputil"
)

// Identity headers set by the gateway in front of this service.
const (
	headerCompany = "X-Company-ID"
	headerUser    = "X-User-ID"
	headerRole    = "X-User-Role"
)

type requestScope struct {
	tenantID string
	actor    domain.Actor
}

type scopeKey struct{}

// requireActor reads the tenant and acting user from the identity headers.
// Requests without a tenant are rejected.
func requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(headerCompany))
		if tenantID == "" {
			httputil.BadRequest(w, headerCompany+" header is required")
			return
		}
		role := domain.UserRole(strings.ToUpper(strings.TrimSpace(r.Header.Get(headerRole))))
		if role != domain.RolePrimary {
			role = domain.RoleMember
		}
		scope := requestScope{
			tenantID: tenantID,
			actor:    domain.Actor{UserID: strings.TrimSpace(r.Header.Get(headerUser)), Role: role},
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), scopeKey{}, scope)))
	})
}

func scopeFrom(ctx context.Context) requestScope {
	s, _ := ctx.Value(scopeKey{}).(requestScope)
	return s
}

// requireUser writes a 400 and returns false when no user is attached.
// Background jobs report progress to this user.
func requireUser(w http.ResponseWriter, s requestScope) bool {
	if s.actor.UserID == "" {
		httputil.BadRequest(w, headerUser+" header is required")
		return false
	}
	return true
}
