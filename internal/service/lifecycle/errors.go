package lifecycle

import "errors"

// Sentinel errors for the lifecycle service layer.
var (
	ErrDuplicatesPending    = errors.New("duplicate contacts must be resolved first")
	ErrPrimaryKeyMissing    = errors.New("contacts primary key is not configured")
	ErrRevertRequestPending = errors.New("a revert finalize request is pending")
	ErrAlreadyDeleted       = errors.New("contacts not found or already updated")
	ErrForbidden            = errors.New("only the primary user can delete all contacts")
	ErrObjectKeyRequired    = errors.New("upload object key is required")
)
