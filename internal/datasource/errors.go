package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FetchErrorKind classifies a failed outbound call
type FetchErrorKind string

const (
	// KindTimeout means the per-call timeout expired
	KindTimeout FetchErrorKind = "timeout"
	// KindNetworkUnavailable means the request never produced a response
	KindNetworkUnavailable FetchErrorKind = "network_unavailable"
	// KindHTTPStatus means the provider answered with a 4xx or 5xx status
	KindHTTPStatus FetchErrorKind = "http_status"
)

// FetchError is returned by RateLimitedHTTPClient.Execute
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	URL        string
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		if e.Body != "" {
			return fmt.Sprintf("%s: http status %d: %s", e.URL, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s: http status %d", e.URL, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.URL, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsAuthRejected reports whether err is a 401 or 403 response
func IsAuthRejected(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindHTTPStatus {
		return false
	}
	return fe.StatusCode == http.StatusUnauthorized || fe.StatusCode == http.StatusForbidden
}

// IsTransient reports whether err is a timeout or network failure
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == KindTimeout || fe.Kind == KindNetworkUnavailable
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// DataSourceError represents errors from data source operations
type DataSourceError struct {
	Source  string // Data source name
	Code    string // Error code (e.g., "invalid_data")
	Message string
	Err     error
}

func (e DataSourceError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

func (e DataSourceError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
)

// NewDataSourceError creates a new data source error
func NewDataSourceError(source, code, message string, err error) DataSourceError {
	return DataSourceError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// codeForFetchError maps a fetch failure to a data source error code
func codeForFetchError(err error) string {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return ErrCodeNetworkError
	}
	switch {
	case IsAuthRejected(err):
		return ErrCodeAuthenticationFailed
	case fe.Kind == KindHTTPStatus && fe.StatusCode == http.StatusNotFound:
		return ErrCodeNotFound
	case fe.Kind == KindHTTPStatus:
		return ErrCodeServerError
	default:
		return ErrCodeNetworkError
	}
}
