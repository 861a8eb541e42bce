package campaign

import (
	"context"

	"github.com/ignite/audience-core/internal/domain"
)

// Repository defines the data access contract for campaigns.
type Repository interface {
	// ListRerunnable returns the tenant's ACTIVE ongoing campaigns.
	ListRerunnable(ctx context.Context, tenantID string) ([]*domain.Campaign, error)
}

// Runner pushes newly added contacts through a campaign.
type Runner interface {
	RunCampaign(ctx context.Context, c *domain.Campaign) error
}
