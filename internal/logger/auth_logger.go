// Package logger provides authentication audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuthLogger provides dedicated logging for session token lifecycle events.
type AuthLogger struct {
	*logrus.Entry
}

// NewAuthLogger creates a new auth logger.
func NewAuthLogger(baseLogger *logrus.Logger) *AuthLogger {
	return &AuthLogger{
		Entry: Component(baseLogger, "auth"),
	}
}

// LogTokenIssued logs a newly cached token. The token value is never logged.
func (al *AuthLogger) LogTokenIssued(credential, mode string, expiresAt time.Time) {
	al.WithFields(logrus.Fields{
		"credential": credential,
		"auth_mode":  mode,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	}).Info("Session token issued")
}

// LogTokenInvalidated logs a token dropped after a rejected call or expiry.
func (al *AuthLogger) LogTokenInvalidated(credential, reason string) {
	al.WithFields(logrus.Fields{
		"credential": credential,
		"reason":     reason,
	}).Warn("Session token invalidated")
}

// LogAuthFailure logs a terminal authentication failure.
func (al *AuthLogger) LogAuthFailure(credential string, err error) {
	al.WithFields(logrus.Fields{
		"credential": credential,
	}).WithError(err).Error("Authentication failed")
}
