// Package audit records security-relevant events as structured log lines.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"capgate.org/internal/auth"
	"capgate.org/internal/obs"
)

// Events emitted by the HTTP layer.
const (
	EventSignup       = "auth.signup"
	EventSignin       = "auth.signin"
	EventSigninFailed = "auth.signin.failed"
	EventOAuth        = "auth.oauth"
	EventKeyIssued    = "auth.key.issued"
	EventRolesSeeded  = "auth.roles.seeded"
)

type requestIDKey struct{}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID = strings.TrimSpace(requestID); requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

// LogEvent writes one audit line. Identity and request id are taken from
// ctx. Events ending in ".failed" are logged at warn level.
// fields must never carry passwords, hashes or token strings.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}

	details := make(map[string]any, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	entry := obs.Logger().WithFields(logrus.Fields{
		"type":    "audit",
		"event":   event,
		"details": details,
	})
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = entry.WithField("request_id", rid)
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		entry = entry.WithFields(logrus.Fields{
			"user_id":    identity.UserID,
			"token_type": string(identity.TokenType),
		})
	}

	if strings.HasSuffix(event, ".failed") {
		entry.Warn("audit")
	} else {
		entry.Info("audit")
	}
	return nil
}
