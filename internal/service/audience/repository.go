package audience

import (
	"context"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/segmentation"
)

// ContactCounter is the read side of the contact store used for counting.
type ContactCounter interface {
	CountActive(ctx context.Context, tenantID string, p segmentation.Predicate) (int64, error)
	FindActive(ctx context.Context, tenantID string, p segmentation.Predicate, limit, offset int) ([]*domain.Contact, error)
}

// CompanyReader loads tenant settings.
type CompanyReader interface {
	Get(ctx context.Context, id string) (*domain.Company, error)
}

// SegmentRepository defines the data access contract for saved segments.
type SegmentRepository interface {
	Create(ctx context.Context, s *domain.Segment) error
	// Get returns ErrSegmentNotFound when the segment does not exist for the tenant.
	Get(ctx context.Context, tenantID, id string) (*domain.Segment, error)
	List(ctx context.Context, tenantID string) ([]*domain.Segment, error)
	Update(ctx context.Context, s *domain.Segment) error
	Delete(ctx context.Context, tenantID, id string) error
}
