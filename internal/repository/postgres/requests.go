package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/service/requests"
)

// RequestRepo implements requests.Repository against PostgreSQL. A partial
// unique index on (company_id, type) over outstanding rows backs the
// single-slot rule.
type RequestRepo struct{ db *sql.DB }

// NewRequestRepo creates a Postgres-backed customer request repository.
func NewRequestRepo(db *sql.DB) *RequestRepo { return &RequestRepo{db: db} }

func (r *RequestRepo) FindOutstanding(ctx context.Context, tenantID string, t domain.RequestType) (*domain.CustomerRequest, error) {
	req := &domain.CustomerRequest{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, company_id, type, request_status, COALESCE(reason,''), created_at, updated_at
		FROM customer_requests
		WHERE company_id = $1 AND type = $2 AND request_status IN ('PENDING','IN_PROGRESS')
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID, t).Scan(&req.ID, &req.TenantID, &req.Type, &req.Status, &req.Reason, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find outstanding request: %w", err)
	}
	return req, nil
}

// uniqueViolation is the SQLSTATE raised when a second outstanding request
// of the same type races past FindOutstanding.
const uniqueViolation = "23505"

func (r *RequestRepo) Create(ctx context.Context, req *domain.CustomerRequest) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO customer_requests (id, company_id, type, request_status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`, req.ID, req.TenantID, req.Type, req.Status, req.Reason).Scan(&req.CreatedAt, &req.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return requests.ErrRequestPending
	}
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (r *RequestRepo) UpdateStatus(ctx context.Context, tenantID, id string, status domain.RequestStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE customer_requests SET request_status = $1, updated_at = NOW()
		WHERE id = $2 AND company_id = $3
	`, status, id, tenantID)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return requests.ErrNotFound
	}
	return nil
}

var _ requests.Repository = (*RequestRepo)(nil)
