package dedup

import "errors"

// Sentinel errors for the dedup service layer.
var (
	ErrPrimaryKeyRequired = errors.New("primary key is required for deduplication")
)
