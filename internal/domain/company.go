package domain

import "time"

// Company is the tenant that owns contacts, segments and campaigns. Only the
// fields the audience core reads or writes are modelled here.
type Company struct {
	ID                       string               `json:"id" db:"id"`
	Name                     string               `json:"name" db:"name"`
	ContactsPrimaryKey       *string              `json:"contactsPrimaryKey" db:"contacts_primary_key"`
	IsContactFinalize        bool                 `json:"isContactFinalize" db:"is_contact_finalize"`
	ContactSelectionCriteria []SelectionCriterion `json:"contactSelectionCriteria" db:"contact_selection_criteria"`
	IsMarkingDuplicates      bool                 `json:"isMarkingDuplicates" db:"is_marking_duplicates"`
	BillingCustomerID        string               `json:"billingCustomerId" db:"billing_customer_id"`
	ContactLimit             int                  `json:"contactLimit" db:"contact_limit"`
	SupportEmail             string               `json:"supportEmail" db:"support_email"`
	CreatedAt                time.Time            `json:"createdAt" db:"created_at"`
	UpdatedAt                time.Time            `json:"updatedAt" db:"updated_at"`
}

// PrimaryKey returns the configured primary key or "".
func (c *Company) PrimaryKey() string {
	if c.ContactsPrimaryKey == nil {
		return ""
	}
	return *c.ContactsPrimaryKey
}

// UserRole is the capability level of the user acting on a tenant.
type UserRole string

const (
	RolePrimary UserRole = "PRIMARY"
	RoleMember  UserRole = "MEMBER"
)

// Actor identifies the user behind a request.
type Actor struct {
	UserID string   `json:"userId"`
	Role   UserRole `json:"role"`
}

// IsPrimary returns true for the tenant's primary user.
func (a Actor) IsPrimary() bool { return a.Role == RolePrimary }
