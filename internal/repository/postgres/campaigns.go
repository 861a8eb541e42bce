package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/audience-core/internal/domain"
)

// CampaignRepo reads the campaigns an import re-runs.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

// ListRerunnable returns the tenant's ACTIVE ongoing campaigns.
func (r *CampaignRepo) ListRerunnable(ctx context.Context, tenantID string) ([]*domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, company_id, name, segment_id, status, is_ongoing, created_at, updated_at
		FROM campaigns
		WHERE company_id = $1 AND status = 'ACTIVE' AND is_ongoing
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list rerunnable campaigns: %w", err)
	}
	defer rows.Close()

	var out []*domain.Campaign
	for rows.Next() {
		var (
			c       domain.Campaign
			segment sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &segment, &c.Status, &c.IsOngoing, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		if segment.Valid {
			c.SegmentID = &segment.String
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
