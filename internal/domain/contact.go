package domain

import "time"

// ContactStatus is the soft-delete state of a contact.
type ContactStatus string

const (
	ContactActive  ContactStatus = "ACTIVE"
	ContactDeleted ContactStatus = "DELETED"
)

// DeletionAction records which transition moved a contact to DELETED.
type DeletionAction string

const (
	DeletionManual             DeletionAction = "MANUAL_DELETE"
	DeletionPrimaryKey         DeletionAction = "PRIMARY_KEY"
	DeletionFilter             DeletionAction = "FILTER"
	DeletionDuplicationResolve DeletionAction = "DUPLICATION_RESOLVE"
)

// SelectionCriterion keeps contacts whose FilterKey value is one of
// FilterValues. Used for company selection criteria and filter deletes.
type SelectionCriterion struct {
	FilterKey    string   `json:"filterKey" validate:"required"`
	FilterValues []string `json:"filterValues" validate:"required,min=1"`
}

// Matches reports whether attrs satisfies the criterion.
func (c SelectionCriterion) Matches(attrs Attributes) bool {
	v, ok := attrs.Get(c.FilterKey)
	if !ok {
		return false
	}
	s := v.String()
	for _, want := range c.FilterValues {
		if want == s {
			return true
		}
	}
	return false
}

// Overlaps reports whether two criteria name the same key and share a value.
func (c SelectionCriterion) Overlaps(o SelectionCriterion) bool {
	if c.FilterKey != o.FilterKey {
		return false
	}
	for _, a := range c.FilterValues {
		for _, b := range o.FilterValues {
			if a == b {
				return true
			}
		}
	}
	return false
}

// MatchesAll reports whether attrs satisfies every criterion.
func MatchesAll(criteria []SelectionCriterion, attrs Attributes) bool {
	for _, c := range criteria {
		if !c.Matches(attrs) {
			return false
		}
	}
	return true
}

// DeletionReason is set on every DELETED contact and empty on ACTIVE ones.
type DeletionReason struct {
	Action     DeletionAction       `json:"action"`
	PrimaryKey string               `json:"primaryKey,omitempty"`
	Filters    []SelectionCriterion `json:"filters,omitempty"`
}

// Contact is one row of a tenant's contact list.
type Contact struct {
	ID                string          `json:"id" db:"id"`
	TenantID          string          `json:"companyId" db:"company_id"`
	Status            ContactStatus   `json:"status" db:"status"`
	ExistingContactID *string         `json:"existingContactId,omitempty" db:"existing_contact_id"`
	DeletionReason    *DeletionReason `json:"deletionReason,omitempty" db:"deletion_reason"`
	Attributes        Attributes      `json:"attributes" db:"attributes"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsActive returns true for ACTIVE contacts.
func (c *Contact) IsActive() bool { return c.Status == ContactActive }

// IsDuplicate returns true when the contact is linked to a canonical contact.
func (c *Contact) IsDuplicate() bool { return c.ExistingContactID != nil }

// ContactInput is a contact payload supplied by a caller (manual create,
// duplicate resolution).
type ContactInput struct {
	ID         string     `json:"id,omitempty"`
	Attributes Attributes `json:"attributes"`
}
