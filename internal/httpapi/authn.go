package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"capgate.org/internal/auth"
	"capgate.org/internal/obs"
)

const (
	authHeader  = "Authorization"
	tokenHeader = "token"
	authCookie  = "auth"
	bearer      = "Bearer "
	basic       = "Basic "

	bearerChallenge = `Bearer realm="capgate"`
)

// credentialsFromRequest reads a bearer token or basic credentials from the
// Authorization header, falling back to the auth cookie.
func credentialsFromRequest(r *http.Request) (auth.Credentials, error) {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	switch {
	case header == "":
	case hasPrefixFold(header, bearer):
		token := strings.TrimSpace(header[len(bearer):])
		if token == "" {
			return nil, auth.ErrMissingToken
		}
		return auth.BearerCredentials{Token: token}, nil
	case hasPrefixFold(header, basic):
		user, pass, ok := r.BasicAuth()
		if !ok {
			return nil, auth.ErrInvalidCredentials
		}
		return auth.BasicCredentials{Username: user, Password: pass}, nil
	default:
		return nil, auth.ErrMalformedToken
	}
	if c, err := r.Cookie(authCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return auth.BearerCredentials{Token: c.Value}, nil
	}
	return nil, auth.ErrMissingToken
}

// Authenticate resolves the request's credentials into an identity and
// threads it through the request context. Basic credentials start a fresh
// session whose token is returned in the token header.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, err := credentialsFromRequest(r)
		if err != nil {
			respondAuthError(w, r, err)
			return
		}
		session, err := a.authn.Authenticate(r.Context(), creds)
		if err != nil {
			respondAuthError(w, r, err)
			return
		}
		if _, isBasic := creds.(auth.BasicCredentials); isBasic {
			w.Header().Set(tokenHeader, session.Token)
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), session.Identity)))
	})
}

// RequireCapability rejects requests whose identity lacks capability.
func RequireCapability(capability auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", bearerChallenge)
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			decision := auth.Authorize(identity, capability)
			obs.RecordAuthorization(string(capability), decision.String())
			if decision != auth.Allow {
				w.Header().Set("WWW-Authenticate", bearerChallenge+`, error="insufficient_scope"`)
				writeError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CapabilityForMethod returns the capability a model route requires for
// method. Reads are public.
func CapabilityForMethod(method string) (auth.Capability, bool) {
	switch method {
	case http.MethodPost:
		return auth.CapabilityCreate, true
	case http.MethodPut, http.MethodPatch:
		return auth.CapabilityUpdate, true
	case http.MethodDelete:
		return auth.CapabilityDelete, true
	}
	return "", false
}

// GuardByMethod authenticates and authorizes writes to next; reads pass through.
func (a *API) GuardByMethod(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, protected := CapabilityForMethod(r.Method)
		if !protected {
			next.ServeHTTP(w, r)
			return
		}
		a.Authenticate(RequireCapability(required)(next)).ServeHTTP(w, r)
	})
}

// respondAuthError logs the detailed kind and sends a generic response.
func respondAuthError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.Kind(err)
	obs.Logger().WithFields(logrus.Fields{
		"request_id": RequestIDFromContext(r.Context()),
		"path":       r.URL.Path,
		"kind":       kind,
	}).Warn("authentication failed")

	switch {
	case errors.Is(err, auth.ErrStorageUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	case auth.IsInfrastructure(err):
		writeError(w, r, http.StatusInternalServerError, "authentication error")
	case errors.Is(err, auth.ErrUnknownRole):
		writeError(w, r, http.StatusForbidden, "forbidden")
	default:
		w.Header().Set("WWW-Authenticate", bearerChallenge)
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
