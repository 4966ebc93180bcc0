package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"capgate.org/internal/audit"
	"capgate.org/internal/auth"
)

const oauthStateCookie = "oauth_state"

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type sessionResponse struct {
	Token        string   `json:"token"`
	UserID       string   `json:"user_id"`
	Capabilities []string `json:"capabilities"`
}

func newSessionResponse(s auth.Session) sessionResponse {
	return sessionResponse{
		Token:        s.Token,
		UserID:       s.Identity.UserID,
		Capabilities: auth.CapabilityStrings(s.Identity.Capabilities),
	}
}

// setSession exposes token both as a response header and as the auth cookie.
func (a *API) setSession(w http.ResponseWriter, r *http.Request, token string) {
	w.Header().Set(tokenHeader, token)
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(a.authn.Tokens().TTL() / time.Second),
	})
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.authn.Register(r.Context(), auth.Registration{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "username and password are required")
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "user already exists")
		default:
			respondAuthError(w, r, err)
		}
		return
	}
	ctx := auth.ContextWithIdentity(r.Context(), session.Identity)
	_ = audit.LogEvent(ctx, audit.EventSignup, map[string]any{
		"username": session.User.Username,
		"role":     string(session.User.Role),
	})
	a.setSession(w, r, session.Token)
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="capgate"`)
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	session, err := a.authn.AuthenticateBasic(r.Context(), username, password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), audit.EventSigninFailed, map[string]any{
			"username": username,
			"kind":     auth.Kind(err),
		})
		respondAuthError(w, r, err)
		return
	}
	ctx := auth.ContextWithIdentity(r.Context(), session.Identity)
	_ = audit.LogEvent(ctx, audit.EventSignin, map[string]any{"username": session.User.Username})
	a.setSession(w, r, session.Token)
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// handleOAuth redirects to the provider when no code is present and
// completes sign-in on the callback.
func (a *API) handleOAuth(w http.ResponseWriter, r *http.Request) {
	if a.oauth == nil {
		writeError(w, r, http.StatusNotFound, "oauth is not configured")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		state := uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     oauthStateCookie,
			Value:    state,
			Path:     "/oauth",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int((10 * time.Minute) / time.Second),
		})
		http.Redirect(w, r, a.oauth.AuthCodeURL(state), http.StatusFound)
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		respondAuthError(w, r, auth.ErrInvalidCredentials)
		return
	}

	email, err := a.oauth.ResolveEmail(r.Context(), code)
	if err != nil {
		respondAuthError(w, r, err)
		return
	}
	session, err := a.authn.AuthenticateOAuth(r.Context(), email)
	if err != nil {
		respondAuthError(w, r, err)
		return
	}
	ctx := auth.ContextWithIdentity(r.Context(), session.Identity)
	_ = audit.LogEvent(ctx, audit.EventOAuth, map[string]any{"email": session.User.Email})
	a.setSession(w, r, session.Token)
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (a *API) handleIssueKey(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondAuthError(w, r, auth.ErrMissingToken)
		return
	}
	key, err := a.authn.IssueKey(r.Context(), identity)
	if err != nil {
		respondAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventKeyIssued, map[string]any{
		"capabilities": auth.CapabilityStrings(identity.Capabilities),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token": key,
		"type":  string(auth.TokenTypeKey),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondAuthError(w, r, auth.ErrMissingToken)
		return
	}
	user, err := a.authn.Lookup(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		respondAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           user.ID,
		"username":     user.Username,
		"email":        user.Email,
		"role":         string(user.Role),
		"token_type":   string(identity.TokenType),
		"capabilities": auth.CapabilityStrings(identity.Capabilities),
	})
}

func (a *API) handleSeedRoles(w http.ResponseWriter, r *http.Request) {
	report, err := a.authn.Registry().Seed(r.Context(), a.roles)
	if err != nil {
		respondAuthError(w, r, err)
		return
	}
	created := roleNames(report.Created)
	skipped := roleNames(report.Skipped)
	_ = audit.LogEvent(r.Context(), audit.EventRolesSeeded, map[string]any{
		"created": created,
		"skipped": skipped,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"created": created,
		"skipped": skipped,
	})
}

func roleNames(in []auth.RoleName) []string {
	out := make([]string, len(in))
	for i, n := range in {
		out[i] = string(n)
	}
	return out
}
