package contacts

import (
	"fmt"

	"github.com/google/uuid"
)

// ParseTenantID validates a tenant id before any store access.
func ParseTenantID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTenantID, id)
	}
	return u.String(), nil
}
