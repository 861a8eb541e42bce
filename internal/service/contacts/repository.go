package contacts

import (
	"context"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/segmentation"
)

// Repository is the data access contract for a tenant's contacts.
type Repository interface {
	// Insert stores new contacts. IDs and timestamps are assigned when empty.
	Insert(ctx context.Context, contacts []*domain.Contact) error

	// ListActive returns every ACTIVE contact of the tenant, oldest first.
	ListActive(ctx context.Context, tenantID string) ([]*domain.Contact, error)

	// CountActive counts ACTIVE contacts matching p.
	CountActive(ctx context.Context, tenantID string, p segmentation.Predicate) (int64, error)

	// FindActive pages through ACTIVE contacts matching p. A limit of 0
	// returns every match.
	FindActive(ctx context.Context, tenantID string, p segmentation.Predicate, limit, offset int) ([]*domain.Contact, error)

	// ApplyDedup writes a deduplication plan atomically.
	ApplyDedup(ctx context.Context, tenantID string, updates []domain.DedupUpdate) error

	// ListDuplicates returns ACTIVE contacts linked to an ACTIVE canonical
	// contact. Links to inactive contacts are ignored.
	ListDuplicates(ctx context.Context, tenantID string) ([]*domain.Contact, error)

	// DeleteByIDs soft-deletes the listed ACTIVE contacts, clearing their
	// duplicate link. Returns the number of contacts changed.
	DeleteByIDs(ctx context.Context, tenantID string, ids []string, reason domain.DeletionReason) (int64, error)

	// DeleteWhere soft-deletes ACTIVE contacts without a deletion reason that
	// match p.
	DeleteWhere(ctx context.Context, tenantID string, p segmentation.Predicate, reason domain.DeletionReason) (int64, error)

	// RestoreByIDs reactivates the listed contacts deleted with action.
	RestoreByIDs(ctx context.Context, tenantID string, ids []string, action domain.DeletionAction) (int64, error)

	// RestoreFiltered reactivates FILTER-deleted contacts whose stored
	// criteria overlap any of criteria; nil criteria restores all of them.
	RestoreFiltered(ctx context.Context, tenantID string, criteria []domain.SelectionCriterion) (int64, error)

	// RestoreByPrimaryKey reactivates contacts suppressed by deduplication
	// on the given primary key.
	RestoreByPrimaryKey(ctx context.Context, tenantID, primaryKey string) (int64, error)

	// ClearDuplicateLinks removes every existingContactId of the tenant.
	ClearDuplicateLinks(ctx context.Context, tenantID string) (int64, error)

	// UpdateAttributes merges attrs into an ACTIVE contact and clears its
	// duplicate link. Returns ErrNotFound if no ACTIVE contact has the id.
	UpdateAttributes(ctx context.Context, tenantID, id string, attrs domain.Attributes) error
}

// CompanyRepository is the data access contract for tenant settings.
type CompanyRepository interface {
	// Get returns the company or ErrCompanyNotFound.
	Get(ctx context.Context, id string) (*domain.Company, error)

	SetPrimaryKey(ctx context.Context, id string, key *string) error
	SetContactFinalize(ctx context.Context, id string, finalized bool) error
	SetSelectionCriteria(ctx context.Context, id string, criteria []domain.SelectionCriterion) error
	SetMarkingDuplicates(ctx context.Context, id string, marking bool) error
}
