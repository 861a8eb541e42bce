package requests

import (
	"context"

	"github.com/ignite/audience-core/internal/domain"
)

// Repository defines the data access contract for customer requests.
type Repository interface {
	// FindOutstanding returns the PENDING or IN_PROGRESS request of the given
	// type, or nil when there is none.
	FindOutstanding(ctx context.Context, tenantID string, t domain.RequestType) (*domain.CustomerRequest, error)

	Create(ctx context.Context, r *domain.CustomerRequest) error

	// UpdateStatus returns ErrNotFound if the request does not exist.
	UpdateStatus(ctx context.Context, tenantID, id string, status domain.RequestStatus) error
}

// CompanyReader loads tenant settings for notifications.
type CompanyReader interface {
	Get(ctx context.Context, id string) (*domain.Company, error)
}

// Mailer sends a single email.
type Mailer interface {
	SendEmail(ctx context.Context, from, to, subject, content, contentType string) error
}

// Renderer renders a named notification template to a subject and HTML body.
type Renderer interface {
	Render(name string, bindings map[string]any) (subject, body string, err error)
}
