package requests

import "errors"

// Sentinel errors for the requests service layer.
var (
	ErrNotFound           = errors.New("request not found")
	ErrRequestPending     = errors.New("a request of this type is already pending")
	ErrInvalidType        = errors.New("invalid request type")
	ErrNotificationFailed = errors.New("request stored but notification failed")
)
