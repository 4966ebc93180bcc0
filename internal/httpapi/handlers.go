package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"capgate.org/internal/auth"
	"capgate.org/internal/obs"
)

const serviceName = "capgate-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// EmailResolver completes the OAuth handshake and yields a verified email.
type EmailResolver interface {
	AuthCodeURL(state string) string
	ResolveEmail(ctx context.Context, code string) (string, error)
}

// Options wires the API to its collaborators. Authenticator is required.
type Options struct {
	Authenticator *auth.Authenticator
	Readiness     readinessChecker
	OAuth         EmailResolver
	// Roles are seeded by POST /roles/seed; nil selects auth.DefaultRoles.
	Roles map[auth.RoleName][]auth.Capability
	// Models, when set, is mounted at /api/v1/ behind GuardByMethod.
	Models  http.Handler
	Version string

	SigninRatePerSec int
	SigninBurst      int
	MaxBodyBytes     int64
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	authn     *auth.Authenticator
	readiness readinessChecker
	oauth     EmailResolver
	roles     map[auth.RoleName][]auth.Capability
	version   string

	ratePerSec int
	rateBurst  int
	maxBody    int64
}

func New(opts Options) (*API, error) {
	if opts.Authenticator == nil {
		return nil, errors.New("httpapi: authenticator is required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		authn:      opts.Authenticator,
		readiness:  opts.Readiness,
		oauth:      opts.OAuth,
		roles:      opts.Roles,
		version:    opts.Version,
		ratePerSec: opts.SigninRatePerSec,
		rateBurst:  opts.SigninBurst,
		maxBody:    opts.MaxBodyBytes,
	}
	if a.roles == nil {
		a.roles = auth.DefaultRoles()
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 5
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 10
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.Handle("POST /signup", RateLimit(http.HandlerFunc(a.handleSignup), a.rateBurst, a.ratePerSec))
	a.mux.Handle("POST /signin", RateLimit(http.HandlerFunc(a.handleSignin), a.rateBurst, a.ratePerSec))
	a.mux.HandleFunc("GET /oauth", a.handleOAuth)

	a.mux.Handle("POST /keys", a.Authenticate(http.HandlerFunc(a.handleIssueKey)))
	a.mux.Handle("GET /me", a.Authenticate(http.HandlerFunc(a.handleMe)))
	a.mux.Handle("POST /roles/seed", a.Authenticate(RequireCapability(auth.CapabilityCreate)(http.HandlerFunc(a.handleSeedRoles))))

	if opts.Models != nil {
		a.mux.Handle("/api/v1/", a.GuardByMethod(opts.Models))
	}
	return a, nil
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.readiness != nil {
		if err := a.readiness.Check(r.Context()); err != nil {
			obs.SetReady(false)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
			})
			return
		}
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
