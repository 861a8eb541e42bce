package contacts

import "errors"

// Sentinel errors for the contact store.
var (
	ErrNotFound        = errors.New("contact not found")
	ErrCompanyNotFound = errors.New("company not found")
	ErrInvalidTenantID = errors.New("invalid tenant id")
)
