package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/service/audience"
)

// SegmentRepo implements audience.SegmentRepository against PostgreSQL.
// Filters are stored as JSONB; audience sizes are never persisted.
type SegmentRepo struct{ db *sql.DB }

// NewSegmentRepo creates a Postgres-backed segment repository.
func NewSegmentRepo(db *sql.DB) *SegmentRepo { return &SegmentRepo{db: db} }

func scanSegment(s rowScanner) (*domain.Segment, error) {
	var (
		seg     domain.Segment
		filters []byte
	)
	if err := s.Scan(&seg.ID, &seg.CompanyID, &seg.Name, &filters, &seg.CreatedAt, &seg.UpdatedAt); err != nil {
		return nil, err
	}
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &seg.Filters); err != nil {
			return nil, fmt.Errorf("decode filters of segment %s: %w", seg.ID, err)
		}
	}
	return &seg, nil
}

func (r *SegmentRepo) Create(ctx context.Context, s *domain.Segment) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	filters, err := json.Marshal(s.Filters)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO segments (id, company_id, name, filters, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`, s.ID, s.CompanyID, s.Name, filters).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	return nil
}

func (r *SegmentRepo) Get(ctx context.Context, tenantID, id string) (*domain.Segment, error) {
	seg, err := scanSegment(r.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, filters, created_at, updated_at
		FROM segments
		WHERE id = $1 AND company_id = $2
	`, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, audience.ErrSegmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

func (r *SegmentRepo) List(ctx context.Context, tenantID string) ([]*domain.Segment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, company_id, name, filters, created_at, updated_at
		FROM segments
		WHERE company_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (r *SegmentRepo) Update(ctx context.Context, s *domain.Segment) error {
	filters, err := json.Marshal(s.Filters)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE segments SET name = $1, filters = $2, updated_at = NOW()
		WHERE id = $3 AND company_id = $4
	`, s.Name, filters, s.ID, s.CompanyID)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return audience.ErrSegmentNotFound
	}
	return nil
}

func (r *SegmentRepo) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM segments WHERE id = $1 AND company_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete segment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return audience.ErrSegmentNotFound
	}
	return nil
}

var _ audience.SegmentRepository = (*SegmentRepo)(nil)
