package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "ACTIVE"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

// Campaign is the slice of a campaign the audience core needs: enough to
// decide whether an import should re-run it.
type Campaign struct {
	ID        string         `json:"id" db:"id"`
	CompanyID string         `json:"companyId" db:"company_id"`
	Name      string         `json:"name" db:"name"`
	SegmentID *string        `json:"segmentId" db:"segment_id"`
	Status    CampaignStatus `json:"status" db:"status"`
	IsOngoing bool           `json:"isOngoing" db:"is_ongoing"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time      `json:"updatedAt" db:"updated_at"`
}

// Rerunnable returns true when new contacts should be pushed to the campaign.
func (c *Campaign) Rerunnable() bool {
	return c.Status == CampaignActive && c.IsOngoing
}
