package dedup

import (
	"context"

	"github.com/ignite/audience-core/internal/domain"
)

// Repository is the slice of the contact store deduplication needs.
type Repository interface {
	ListActive(ctx context.Context, tenantID string) ([]*domain.Contact, error)
	ApplyDedup(ctx context.Context, tenantID string, updates []domain.DedupUpdate) error
}
