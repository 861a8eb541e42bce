package segmentation

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// QueryBuilder builds SQL queries from predicates. Attribute access goes
// through the attr_text, attr_number and attr_timestamp SQL functions
// (migrations/0002_attr_functions.sql) so the database applies the same
// coercions as Predicate.Match.
type QueryBuilder struct {
	baseTable  string
	args       []interface{}
	argCounter int
	tenantID   string
}

// NewQueryBuilder creates a new QueryBuilder scoped to one tenant.
func NewQueryBuilder(tenantID string) *QueryBuilder {
	return &QueryBuilder{
		baseTable:  "company_contacts",
		args:       make([]interface{}, 0),
		argCounter: 1,
		tenantID:   tenantID,
	}
}

// nextArg returns the next argument placeholder
func (qb *QueryBuilder) nextArg(value interface{}) string {
	qb.args = append(qb.args, value)
	placeholder := fmt.Sprintf("$%d", qb.argCounter)
	qb.argCounter++
	return placeholder
}

func (qb *QueryBuilder) reset() {
	qb.args = make([]interface{}, 0)
	qb.argCounter = 1
}

// where returns the tenant and status baseline plus the predicate.
func (qb *QueryBuilder) where(p Predicate) (string, error) {
	conds := []string{
		fmt.Sprintf("c.company_id = %s", qb.nextArg(qb.tenantID)),
		"c.status = 'ACTIVE'",
	}
	sql, err := qb.Predicate(p)
	if err != nil {
		return "", err
	}
	if sql != "TRUE" {
		conds = append(conds, "("+sql+")")
	}
	return strings.Join(conds, "\n  AND "), nil
}

// BuildCountQuery builds a COUNT over the tenant's ACTIVE contacts matching p.
func (qb *QueryBuilder) BuildCountQuery(p Predicate) (string, []interface{}, error) {
	qb.reset()
	where, err := qb.where(p)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s c\nWHERE %s", qb.baseTable, where)
	return query, qb.args, nil
}

// BuildSelectQuery builds a paged SELECT of the tenant's ACTIVE contacts
// matching p, oldest first.
func (qb *QueryBuilder) BuildSelectQuery(p Predicate, limit, offset int) (string, []interface{}, error) {
	qb.reset()
	where, err := qb.where(p)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf(`SELECT c.id, c.company_id, c.status, c.existing_contact_id, c.deletion_reason,
	c.attributes, c.created_at, c.updated_at
FROM %s c
WHERE %s
ORDER BY c.created_at, c.id`, qb.baseTable, where)
	if limit > 0 {
		query += fmt.Sprintf("\nLIMIT %s OFFSET %s", qb.nextArg(limit), qb.nextArg(offset))
	}
	return query, qb.args, nil
}

// BuildSoftDeleteQuery builds an UPDATE that soft-deletes the tenant's
// ACTIVE, reason-less contacts matching p. reason is the JSON-encoded
// deletion reason.
func (qb *QueryBuilder) BuildSoftDeleteQuery(p Predicate, reason []byte) (string, []interface{}, error) {
	qb.reset()
	where, err := qb.where(p)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf(`UPDATE %s AS c
SET status = 'DELETED', existing_contact_id = NULL, deletion_reason = %s, updated_at = NOW()
WHERE %s
  AND c.deletion_reason IS NULL`, qb.baseTable, qb.nextArg(reason), where)
	return query, qb.args, nil
}

// Predicate renders p as a boolean SQL expression over alias c.
func (qb *QueryBuilder) Predicate(p Predicate) (string, error) {
	switch p := p.(type) {
	case All:
		return "TRUE", nil
	case None:
		return "FALSE", nil

	case Eq:
		if p.Numeric {
			return fmt.Sprintf("%s = %s", qb.number(p.Key), qb.nextArg(p.Num)), nil
		}
		return fmt.Sprintf("%s = %s", qb.trimmed(p.Key), qb.nextArg(p.Text)), nil
	case Ne:
		if p.Numeric {
			return fmt.Sprintf("%s <> %s", qb.number(p.Key), qb.nextArg(p.Num)), nil
		}
		return fmt.Sprintf("%s IS DISTINCT FROM %s", qb.trimmed(p.Key), qb.nextArg(p.Text)), nil
	case Gt:
		if p.Numeric {
			return fmt.Sprintf("%s > %s", qb.integer(p.Key), qb.nextArg(p.Num)), nil
		}
		return fmt.Sprintf("%s > %s COLLATE \"C\"", qb.text(p.Key), qb.nextArg(p.Text)), nil
	case Lt:
		if p.Numeric {
			return fmt.Sprintf("%s < %s", qb.integer(p.Key), qb.nextArg(p.Num)), nil
		}
		return fmt.Sprintf("%s < %s COLLATE \"C\"", qb.text(p.Key), qb.nextArg(p.Text)), nil
	case Between:
		return qb.between(p), nil

	case Contains:
		return fmt.Sprintf("%s ILIKE %s", qb.text(p.Key), qb.nextArg(likePattern(p.Text))), nil
	case NotContains:
		return fmt.Sprintf("NOT COALESCE(%s ILIKE %s, FALSE)", qb.text(p.Key), qb.nextArg(likePattern(p.Text))), nil

	case IsTimestamp:
		return fmt.Sprintf("%s IS NOT NULL", qb.timestamp(p.Key)), nil
	case IsNotTimestamp:
		return fmt.Sprintf("%s IS NULL", qb.timestamp(p.Key)), nil
	case TimestampBefore:
		return fmt.Sprintf("%s < %s", qb.timestamp(p.Key), qb.nextArg(p.At)), nil
	case TimestampAfter:
		return fmt.Sprintf("%s > %s", qb.timestamp(p.Key), qb.nextArg(p.At)), nil
	case TimestampBetween:
		field := qb.timestamp(p.Key)
		return fmt.Sprintf("%s BETWEEN %s AND %s", field, qb.nextArg(p.From), qb.nextArg(p.To)), nil

	case In:
		if len(p.Values) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s = ANY(%s)", qb.text(p.Key), qb.nextArg(pq.Array(p.Values))), nil

	case Not:
		inner, err := qb.Predicate(p.P)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT COALESCE((%s), FALSE)", inner), nil
	case And:
		return qb.group(p, " AND ", "TRUE")
	case Or:
		return qb.group(p, " OR ", "FALSE")
	}
	return "", fmt.Errorf("unsupported predicate %T", p)
}

func (qb *QueryBuilder) group(preds []Predicate, op, empty string) (string, error) {
	if len(preds) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(preds))
	for _, q := range preds {
		sql, err := qb.Predicate(q)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+sql+")")
	}
	return strings.Join(parts, op), nil
}

func (qb *QueryBuilder) between(p Between) string {
	var field string
	var from, to interface{}
	collate := ""
	if p.Numeric {
		field = qb.integer(p.Key)
		if p.FromNum != nil {
			from = *p.FromNum
		}
		if p.ToNum != nil {
			to = *p.ToNum
		}
	} else {
		field = qb.text(p.Key)
		collate = ` COLLATE "C"`
		if p.FromText != nil {
			from = *p.FromText
		}
		if p.ToText != nil {
			to = *p.ToText
		}
	}

	parts := []string{}
	if !p.Numeric {
		parts = append(parts, field+" IS NOT NULL")
	}
	if from != nil {
		parts = append(parts, fmt.Sprintf("%s >= %s%s", field, qb.nextArg(from), collate))
	}
	if to != nil {
		parts = append(parts, fmt.Sprintf("%s <= %s%s", field, qb.nextArg(to), collate))
	}
	if len(parts) == 0 {
		return "TRUE"
	}
	return strings.Join(parts, " AND ")
}

func (qb *QueryBuilder) attr(key string) string {
	return fmt.Sprintf("c.attributes -> %s", qb.nextArg(key))
}

func (qb *QueryBuilder) text(key string) string {
	return fmt.Sprintf("attr_text(%s)", qb.attr(key))
}

func (qb *QueryBuilder) trimmed(key string) string {
	return fmt.Sprintf("btrim(attr_text(%s), E' \\t\\r\\n')", qb.attr(key))
}

func (qb *QueryBuilder) number(key string) string {
	return fmt.Sprintf("attr_number(%s)", qb.attr(key))
}

func (qb *QueryBuilder) integer(key string) string {
	return fmt.Sprintf("COALESCE(trunc(attr_number(%s)), 0)", qb.attr(key))
}

func (qb *QueryBuilder) timestamp(key string) string {
	return fmt.Sprintf("attr_timestamp(%s)", qb.attr(key))
}

// likePattern escapes LIKE metacharacters and wraps s for a substring match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
