package auth

import (
	"errors"
	"fmt"
)

// ErrAuthFailure is matched by every terminal authentication failure
var ErrAuthFailure = errors.New("authentication failed")

// AuthenticationError represents an authentication failure for one credential
type AuthenticationError struct {
	Credential string
	Message    string
	Cause      error
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(credential, message string, cause error) *AuthenticationError {
	return &AuthenticationError{
		Credential: credential,
		Message:    message,
		Cause:      cause,
	}
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication error for %s: %s: %v", e.Credential, e.Message, e.Cause)
	}
	return fmt.Sprintf("authentication error for %s: %s", e.Credential, e.Message)
}

// Unwrap exposes both ErrAuthFailure and the underlying cause to errors.Is and errors.As
func (e *AuthenticationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrAuthFailure}
	}
	return []error{ErrAuthFailure, e.Cause}
}
