package audience

import "errors"

// Sentinel errors for the audience service layer.
var (
	ErrSegmentNotFound      = errors.New("segment not found")
	ErrContactsNotFinalized = errors.New("contacts must be finalized before creating segments")
	ErrNameRequired         = errors.New("segment name is required")
)
