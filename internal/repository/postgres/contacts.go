package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/segmentation"
	"github.com/ignite/audience-core/internal/service/contacts"
)

// insertChunk bounds rows per INSERT; each row binds six parameters.
const insertChunk = 1000

const contactColumns = `id, company_id, status, existing_contact_id, deletion_reason,
	attributes, created_at, updated_at`

// ContactRepo implements contacts.Repository against PostgreSQL. Attributes
// and deletion reasons are stored as JSONB.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(s rowScanner) (*domain.Contact, error) {
	var (
		c        domain.Contact
		existing sql.NullString
		reason   []byte
		attrs    []byte
	)
	if err := s.Scan(&c.ID, &c.TenantID, &c.Status, &existing, &reason, &attrs, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if existing.Valid {
		c.ExistingContactID = &existing.String
	}
	if len(reason) > 0 {
		c.DeletionReason = &domain.DeletionReason{}
		if err := json.Unmarshal(reason, c.DeletionReason); err != nil {
			return nil, fmt.Errorf("decode deletion reason of %s: %w", c.ID, err)
		}
	}
	c.Attributes = domain.Attributes{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (r *ContactRepo) queryContacts(ctx context.Context, q string, args ...interface{}) ([]*domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func (r *ContactRepo) Insert(ctx context.Context, batch []*domain.Contact) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(batch); start += insertChunk {
		end := start + insertChunk
		if end > len(batch) {
			end = len(batch)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		idx := 1
		for _, c := range batch[start:end] {
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			if c.Status == "" {
				c.Status = domain.ContactActive
			}
			if c.Attributes == nil {
				c.Attributes = domain.Attributes{}
			}
			attrs, err := json.Marshal(c.Attributes)
			if err != nil {
				return fmt.Errorf("encode attributes: %w", err)
			}
			values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, COALESCE($%d, NOW()), NOW())",
				idx, idx+1, idx+2, idx+3, idx+4, idx+5))
			var created interface{}
			if !c.CreatedAt.IsZero() {
				created = c.CreatedAt
			}
			args = append(args, c.ID, c.TenantID, c.Status, nullString(c.ExistingContactID), attrs, created)
			idx += 6
		}
		q := `INSERT INTO company_contacts
			(id, company_id, status, existing_contact_id, attributes, created_at, updated_at)
		VALUES ` + strings.Join(values, ", ")
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert contacts: %w", err)
		}
	}
	return tx.Commit()
}

func (r *ContactRepo) ListActive(ctx context.Context, tenantID string) ([]*domain.Contact, error) {
	out, err := r.queryContacts(ctx, `
		SELECT `+contactColumns+`
		FROM company_contacts
		WHERE company_id = $1 AND status = 'ACTIVE'
		ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list active contacts: %w", err)
	}
	return out, nil
}

func (r *ContactRepo) CountActive(ctx context.Context, tenantID string, p segmentation.Predicate) (int64, error) {
	q, args, err := segmentation.NewQueryBuilder(tenantID).BuildCountQuery(p)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

func (r *ContactRepo) FindActive(ctx context.Context, tenantID string, p segmentation.Predicate, limit, offset int) ([]*domain.Contact, error) {
	q, args, err := segmentation.NewQueryBuilder(tenantID).BuildSelectQuery(p, limit, offset)
	if err != nil {
		return nil, err
	}
	out, err := r.queryContacts(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find contacts: %w", err)
	}
	return out, nil
}

// ApplyDedup writes every update in one transaction so a failed pass leaves
// the previous state intact.
func (r *ContactRepo) ApplyDedup(ctx context.Context, tenantID string, updates []domain.DedupUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dedup: %w", err)
	}
	defer tx.Rollback()

	var links, linkTargets, unlinks, suppress []string
	var suppressKey string
	for _, u := range updates {
		switch u.Action {
		case domain.DedupLink:
			links = append(links, u.ContactID)
			linkTargets = append(linkTargets, u.CanonicalID)
		case domain.DedupUnlink:
			unlinks = append(unlinks, u.ContactID)
		case domain.DedupSuppress:
			suppress = append(suppress, u.ContactID)
			suppressKey = u.PrimaryKey
		}
	}

	if len(unlinks) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE company_contacts SET existing_contact_id = NULL, updated_at = NOW()
			WHERE company_id = $1 AND id = ANY($2)
		`, tenantID, pq.Array(unlinks)); err != nil {
			return fmt.Errorf("unlink canonical contacts: %w", err)
		}
	}
	if len(links) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE company_contacts c SET existing_contact_id = l.canonical, updated_at = NOW()
			FROM unnest($2::uuid[], $3::uuid[]) AS l(id, canonical)
			WHERE c.company_id = $1 AND c.id = l.id
		`, tenantID, pq.Array(links), pq.Array(linkTargets)); err != nil {
			return fmt.Errorf("link duplicates: %w", err)
		}
	}
	if len(suppress) > 0 {
		reason, err := json.Marshal(domain.DeletionReason{Action: domain.DeletionPrimaryKey, PrimaryKey: suppressKey})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE company_contacts
			SET status = 'DELETED', existing_contact_id = NULL, deletion_reason = $3, updated_at = NOW()
			WHERE company_id = $1 AND id = ANY($2)
		`, tenantID, pq.Array(suppress), reason); err != nil {
			return fmt.Errorf("suppress duplicates: %w", err)
		}
	}
	return tx.Commit()
}

func (r *ContactRepo) ListDuplicates(ctx context.Context, tenantID string) ([]*domain.Contact, error) {
	out, err := r.queryContacts(ctx, `
		SELECT `+prefixed("c")+`
		FROM company_contacts c
		JOIN company_contacts canon
		  ON canon.id = c.existing_contact_id
		 AND canon.company_id = c.company_id
		 AND canon.status = 'ACTIVE'
		WHERE c.company_id = $1 AND c.status = 'ACTIVE'
		ORDER BY c.created_at, c.id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list duplicates: %w", err)
	}
	return out, nil
}

func prefixed(alias string) string {
	cols := strings.Split(contactColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}

func (r *ContactRepo) exec(ctx context.Context, op, q string, args ...interface{}) (int64, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *ContactRepo) DeleteByIDs(ctx context.Context, tenantID string, ids []string, reason domain.DeletionReason) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	b, err := json.Marshal(reason)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, "delete contacts", `
		UPDATE company_contacts
		SET status = 'DELETED', existing_contact_id = NULL, deletion_reason = $3, updated_at = NOW()
		WHERE company_id = $1 AND id = ANY($2) AND status = 'ACTIVE'
	`, tenantID, pq.Array(ids), b)
}

func (r *ContactRepo) DeleteWhere(ctx context.Context, tenantID string, p segmentation.Predicate, reason domain.DeletionReason) (int64, error) {
	b, err := json.Marshal(reason)
	if err != nil {
		return 0, err
	}
	q, args, err := segmentation.NewQueryBuilder(tenantID).BuildSoftDeleteQuery(p, b)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, "delete matching contacts", q, args...)
}

func (r *ContactRepo) RestoreByIDs(ctx context.Context, tenantID string, ids []string, action domain.DeletionAction) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.exec(ctx, "restore contacts", `
		UPDATE company_contacts
		SET status = 'ACTIVE', deletion_reason = NULL, updated_at = NOW()
		WHERE company_id = $1 AND id = ANY($2) AND status = 'DELETED'
		  AND deletion_reason->>'action' = $3
	`, tenantID, pq.Array(ids), string(action))
}

// RestoreFiltered matches a stored criterion that names the same key and
// shares at least one value with any given criterion.
func (r *ContactRepo) RestoreFiltered(ctx context.Context, tenantID string, criteria []domain.SelectionCriterion) (int64, error) {
	if criteria == nil {
		return r.exec(ctx, "restore filtered contacts", `
			UPDATE company_contacts
			SET status = 'ACTIVE', deletion_reason = NULL, updated_at = NOW()
			WHERE company_id = $1 AND status = 'DELETED'
			  AND deletion_reason->>'action' = 'FILTER'
		`, tenantID)
	}
	given, err := json.Marshal(criteria)
	if err != nil {
		return 0, err
	}
	return r.exec(ctx, "restore filtered contacts", `
		UPDATE company_contacts
		SET status = 'ACTIVE', deletion_reason = NULL, updated_at = NOW()
		WHERE company_id = $1 AND status = 'DELETED'
		  AND deletion_reason->>'action' = 'FILTER'
		  AND EXISTS (
		    SELECT 1
		    FROM jsonb_array_elements(deletion_reason->'filters') AS stored,
		         jsonb_array_elements($2::jsonb) AS given
		    WHERE stored->>'filterKey' = given->>'filterKey'
		      AND EXISTS (
		        SELECT 1 FROM jsonb_array_elements_text(stored->'filterValues') AS sv
		        WHERE given->'filterValues' ? sv
		      )
		  )
	`, tenantID, given)
}

func (r *ContactRepo) RestoreByPrimaryKey(ctx context.Context, tenantID, primaryKey string) (int64, error) {
	return r.exec(ctx, "restore deduplicated contacts", `
		UPDATE company_contacts
		SET status = 'ACTIVE', deletion_reason = NULL, updated_at = NOW()
		WHERE company_id = $1 AND status = 'DELETED'
		  AND deletion_reason->>'action' = 'PRIMARY_KEY'
		  AND deletion_reason->>'primaryKey' = $2
	`, tenantID, primaryKey)
}

func (r *ContactRepo) ClearDuplicateLinks(ctx context.Context, tenantID string) (int64, error) {
	return r.exec(ctx, "clear duplicate links", `
		UPDATE company_contacts SET existing_contact_id = NULL, updated_at = NOW()
		WHERE company_id = $1 AND existing_contact_id IS NOT NULL
	`, tenantID)
}

// UpdateAttributes merges attrs into the contact and clears its duplicate
// link. An empty or nil attrs only clears the link.
func (r *ContactRepo) UpdateAttributes(ctx context.Context, tenantID, id string, attrs domain.Attributes) error {
	if attrs == nil {
		attrs = domain.Attributes{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	n, err := r.exec(ctx, "update contact", `
		UPDATE company_contacts
		SET attributes = attributes || $3::jsonb, existing_contact_id = NULL, updated_at = NOW()
		WHERE company_id = $1 AND id = $2 AND status = 'ACTIVE'
	`, tenantID, id, b)
	if err != nil {
		return err
	}
	if n == 0 {
		return contacts.ErrNotFound
	}
	return nil
}

var _ contacts.Repository = (*ContactRepo)(nil)
