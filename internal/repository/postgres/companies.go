package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/service/contacts"
)

// CompanyRepo implements contacts.CompanyRepository against PostgreSQL.
type CompanyRepo struct{ db *sql.DB }

// NewCompanyRepo creates a Postgres-backed company repository.
func NewCompanyRepo(db *sql.DB) *CompanyRepo { return &CompanyRepo{db: db} }

func (r *CompanyRepo) Get(ctx context.Context, id string) (*domain.Company, error) {
	var (
		c        domain.Company
		key      sql.NullString
		criteria []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, contacts_primary_key, is_contact_finalize,
		       contact_selection_criteria, is_marking_duplicates,
		       COALESCE(billing_customer_id,''), contact_limit,
		       COALESCE(support_email,''), created_at, updated_at
		FROM companies
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.Name, &key, &c.IsContactFinalize,
		&criteria, &c.IsMarkingDuplicates,
		&c.BillingCustomerID, &c.ContactLimit,
		&c.SupportEmail, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, contacts.ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	if key.Valid {
		c.ContactsPrimaryKey = &key.String
	}
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &c.ContactSelectionCriteria); err != nil {
			return nil, fmt.Errorf("decode selection criteria: %w", err)
		}
	}
	return &c, nil
}

func (r *CompanyRepo) set(ctx context.Context, id, column string, value interface{}) error {
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE companies SET %s = $1, updated_at = NOW() WHERE id = $2", column),
		value, id)
	if err != nil {
		return fmt.Errorf("update company %s: %w", column, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return contacts.ErrCompanyNotFound
	}
	return nil
}

func (r *CompanyRepo) SetPrimaryKey(ctx context.Context, id string, key *string) error {
	return r.set(ctx, id, "contacts_primary_key", nullString(key))
}

func (r *CompanyRepo) SetContactFinalize(ctx context.Context, id string, finalized bool) error {
	return r.set(ctx, id, "is_contact_finalize", finalized)
}

func (r *CompanyRepo) SetSelectionCriteria(ctx context.Context, id string, criteria []domain.SelectionCriterion) error {
	var value interface{}
	if len(criteria) > 0 {
		b, err := json.Marshal(criteria)
		if err != nil {
			return err
		}
		value = b
	}
	return r.set(ctx, id, "contact_selection_criteria", value)
}

func (r *CompanyRepo) SetMarkingDuplicates(ctx context.Context, id string, marking bool) error {
	return r.set(ctx, id, "is_marking_duplicates", marking)
}

var _ contacts.CompanyRepository = (*CompanyRepo)(nil)
