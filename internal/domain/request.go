package domain

import "time"

// RequestType enumerates customer requests handled by support staff.
type RequestType string

const (
	RequestDedicatedIPEnabled  RequestType = "DEDICATED_IP_ENABLED"
	RequestDedicatedIPDisabled RequestType = "DEDICATED_IP_DISABLED"
	RequestRevertFinalize      RequestType = "REVERT_FINALIZE_CONTACT_REQUEST"
)

// Valid returns true for known request types.
func (t RequestType) Valid() bool {
	switch t {
	case RequestDedicatedIPEnabled, RequestDedicatedIPDisabled, RequestRevertFinalize:
		return true
	}
	return false
}

// RequestStatus is the state of a customer request.
type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestInProgress RequestStatus = "IN_PROGRESS"
	RequestCancelled  RequestStatus = "CANCELLED"
)

// IsOutstanding returns true while support has not closed the request.
func (s RequestStatus) IsOutstanding() bool {
	return s == RequestPending || s == RequestInProgress
}

// CustomerRequest is a single-slot request per (tenant, type).
type CustomerRequest struct {
	ID        string        `json:"id" db:"id"`
	TenantID  string        `json:"companyId" db:"company_id"`
	Type      RequestType   `json:"type" db:"type"`
	Status    RequestStatus `json:"requestStatus" db:"request_status"`
	Reason    string        `json:"reason" db:"reason"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time     `json:"updatedAt" db:"updated_at"`
}
