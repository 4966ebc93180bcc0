package auth

import "errors"

// Credential and token failures. These are terminal for the request and must
// reach untrusted callers only as "unauthorized" or "forbidden".
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUnknownRole        = errors.New("auth: unknown role")
	ErrMissingToken       = errors.New("auth: missing token")
	ErrMalformedToken     = errors.New("auth: malformed token")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenReused        = errors.New("auth: token reused")
)

// Infrastructure failures, surfaced as server errors.
var (
	ErrStorageUnavailable = errors.New("auth: storage unavailable")
	ErrConfiguration      = errors.New("auth: configuration error")
	ErrHashing            = errors.New("auth: hashing failed")
)

// Store-level conditions returned by credential store adapters.
var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
)

// IsInfrastructure reports whether err is a server-side failure rather than
// a credential or authorization failure.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrHashing)
}

// IsTokenError reports whether err describes a rejected bearer token.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenReused)
}

// Kind returns a short label for err suitable for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrUnknownRole):
		return "unknown_role"
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenReused):
		return "token_reused"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrHashing):
		return "hashing"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
