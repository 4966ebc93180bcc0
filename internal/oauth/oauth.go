// Package oauth exchanges an authorization code with an OpenID Connect
// provider and returns the verified email it vouches for.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"capgate.org/internal/auth"
	"capgate.org/internal/config"
)

var (
	ErrMissingCode      = errors.New("oauth: missing authorization code")
	ErrNoIDToken        = errors.New("oauth: token response has no id_token")
	ErrEmailNotVerified = errors.New("oauth: email not verified by provider")
)

// Resolver turns authorization codes into verified email addresses.
type Resolver struct {
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// New discovers the provider at cfg.IssuerURL.
func New(ctx context.Context, cfg config.OAuthConfig) (*Resolver, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "email"},
	}
	return NewWithVerifier(oauthCfg, provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})), nil
}

// NewWithVerifier builds a Resolver from preconfigured parts.
func NewWithVerifier(cfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *Resolver {
	return &Resolver{oauth2: cfg, verifier: verifier}
}

// AuthCodeURL returns the provider consent URL carrying state.
func (r *Resolver) AuthCodeURL(state string) string {
	return r.oauth2.AuthCodeURL(state)
}

type emailClaims struct {
	Email         string       `json:"email"`
	EmailVerified verifiedFlag `json:"email_verified"`
}

// verifiedFlag accepts both JSON booleans and the string form some
// providers emit.
type verifiedFlag bool

func (v *verifiedFlag) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case bool:
		*v = verifiedFlag(x)
	case string:
		*v = verifiedFlag(strings.EqualFold(x, "true"))
	default:
		*v = false
	}
	return nil
}

// ResolveEmail exchanges code and returns the email from the verified ID token.
// Rejections by the provider wrap auth.ErrInvalidCredentials.
func (r *Resolver) ResolveEmail(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: %w", auth.ErrInvalidCredentials, ErrMissingCode)
	}
	token, err := r.oauth2.Exchange(ctx, code)
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return "", fmt.Errorf("%w: code exchange rejected: %v", auth.ErrInvalidCredentials, err)
		}
		return "", fmt.Errorf("exchange code: %w", err)
	}
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", fmt.Errorf("%w: %w", auth.ErrInvalidCredentials, ErrNoIDToken)
	}
	idToken, err := r.verifier.Verify(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("%w: verify id token: %v", auth.ErrInvalidCredentials, err)
	}
	var claims emailClaims
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("%w: decode id token claims: %v", auth.ErrInvalidCredentials, err)
	}
	if claims.Email == "" || !bool(claims.EmailVerified) {
		return "", fmt.Errorf("%w: %w", auth.ErrInvalidCredentials, ErrEmailNotVerified)
	}
	return claims.Email, nil
}
