package models

import "errors"

// Custom errors
var (
	ErrInvalidOdds       = errors.New("invalid odds")
	ErrMalformedResponse = errors.New("malformed response")
	ErrNoRunners         = errors.New("no runner data available")
)
