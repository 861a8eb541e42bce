package memory

import (
	"context"
	"sync"

	"github.com/ignite/audience-core/internal/domain"
)

// CampaignRepo lists campaigns for post-import re-runs.
type CampaignRepo struct {
	mu        sync.RWMutex
	campaigns []*domain.Campaign
}

// NewCampaignRepo creates a campaign store seeded with the given campaigns.
func NewCampaignRepo(seed ...*domain.Campaign) *CampaignRepo {
	return &CampaignRepo{campaigns: seed}
}

func (r *CampaignRepo) ListRerunnable(_ context.Context, tenantID string) ([]*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Campaign
	for _, c := range r.campaigns {
		if c.CompanyID == tenantID && c.Rerunnable() {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}
