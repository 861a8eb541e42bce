package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrRunRejected = errors.New("campaign run rejected")
	ErrNoBaseURL   = errors.New("campaign runner base url is required")
)
