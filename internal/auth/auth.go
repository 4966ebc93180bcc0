// Package auth implements credential verification, token issuance and
// capability-based authorization.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"capgate.org/internal/ids"
)

// Credentials is one of BearerCredentials, BasicCredentials or OAuthCredentials.
type Credentials interface {
	kind() string
}

// BearerCredentials is a previously issued signed token.
type BearerCredentials struct {
	Token string
}

// BasicCredentials is a username and plaintext password.
type BasicCredentials struct {
	Username string
	Password string
}

// OAuthCredentials is an email address already verified by an OAuth provider.
type OAuthCredentials struct {
	Email string
}

func (BearerCredentials) kind() string { return "bearer" }
func (BasicCredentials) kind() string  { return "basic" }
func (OAuthCredentials) kind() string  { return "oauth" }

// Authenticator resolves credentials into a verified identity.
type Authenticator struct {
	users    UserStore
	registry *Registry
	tokens   *TokenService
	hasher   *Hasher
}

// NewAuthenticator wires an Authenticator from its collaborators.
func NewAuthenticator(users UserStore, registry *Registry, tokens *TokenService, hasher *Hasher) (*Authenticator, error) {
	switch {
	case users == nil:
		return nil, fmt.Errorf("%w: user store is required", ErrConfiguration)
	case registry == nil:
		return nil, fmt.Errorf("%w: role registry is required", ErrConfiguration)
	case tokens == nil:
		return nil, fmt.Errorf("%w: token service is required", ErrConfiguration)
	case hasher == nil:
		return nil, fmt.Errorf("%w: password hasher is required", ErrConfiguration)
	}
	return &Authenticator{users: users, registry: registry, tokens: tokens, hasher: hasher}, nil
}

// Tokens exposes the token service for collaborators that only verify.
func (a *Authenticator) Tokens() *TokenService { return a.tokens }

// Registry exposes the role registry.
func (a *Authenticator) Registry() *Registry { return a.registry }

// Authenticate dispatches on the credential kind. Bearer sessions carry the
// presented token; the other kinds carry a freshly issued one.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (Session, error) {
	switch c := creds.(type) {
	case BearerCredentials:
		identity, err := a.AuthenticateBearer(ctx, c.Token)
		if err != nil {
			return Session{}, err
		}
		return Session{Identity: identity, Token: strings.TrimSpace(c.Token)}, nil
	case BasicCredentials:
		return a.AuthenticateBasic(ctx, c.Username, c.Password)
	case OAuthCredentials:
		return a.AuthenticateOAuth(ctx, c.Email)
	case nil:
		return Session{}, ErrMissingToken
	default:
		return Session{}, fmt.Errorf("%w: unsupported credentials %s", ErrInvalidCredentials, creds.kind())
	}
}

// AuthenticateBearer verifies token and returns the capability snapshot it
// carries without consulting the store.
func (a *Authenticator) AuthenticateBearer(_ context.Context, token string) (Identity, error) {
	return a.tokens.Verify(token)
}

// AuthenticateBasic checks username and password against the store and
// issues a session token with the role's current capabilities.
func (a *Authenticator) AuthenticateBasic(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := a.users.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.hasher.VerifyDecoy(password)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, storageError(err)
	}
	if !a.hasher.Verify(password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	return a.startSession(ctx, user)
}

// AuthenticateOAuth finds the user owning a provider-verified email,
// creating one with the default role and an unusable password on first login.
func (a *Authenticator) AuthenticateOAuth(ctx context.Context, email string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Session{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := a.users.FindOrCreateUserByEmail(ctx, email, func() (User, error) {
		placeholder, err := a.hasher.Unusable()
		if err != nil {
			return User{}, err
		}
		return User{
			Username:     oauthUsername(),
			PasswordHash: placeholder,
			Email:        email,
			Role:         DefaultRole,
		}, nil
	})
	if err != nil {
		if errors.Is(err, ErrHashing) || errors.Is(err, ErrAlreadyExists) {
			return Session{}, err
		}
		return Session{}, storageError(err)
	}
	return a.startSession(ctx, user)
}

// Registration describes a new account created through signup.
type Registration struct {
	Username string
	Password string
	Email    string
	Role     RoleName
}

// Register creates a user with a hashed password and starts its session.
func (a *Authenticator) Register(ctx context.Context, reg Registration) (Session, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = normalizeEmail(reg.Email)
	if reg.Username == "" {
		return Session{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if reg.Password == "" {
		return Session{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if reg.Role == "" {
		reg.Role = DefaultRole
	}
	if !reg.Role.Valid() {
		return Session{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, reg.Role)
	}

	hash, err := a.hasher.Hash(reg.Password)
	if err != nil {
		return Session{}, err
	}
	user, err := a.users.CreateUser(ctx, User{
		Username:     reg.Username,
		PasswordHash: hash,
		Email:        reg.Email,
		Role:         reg.Role,
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrInvalidInput) {
			return Session{}, err
		}
		return Session{}, storageError(err)
	}
	return a.startSession(ctx, user)
}

// Lookup returns the stored user with userID.
func (a *Authenticator) Lookup(ctx context.Context, userID string) (User, error) {
	user, err := a.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, err
		}
		return User{}, storageError(err)
	}
	return user, nil
}

// IssueKey returns a non-expiring key token carrying identity's capabilities.
func (a *Authenticator) IssueKey(_ context.Context, identity Identity) (string, error) {
	if identity.UserID == "" {
		return "", ErrMissingToken
	}
	return a.tokens.Issue(identity.UserID, identity.Capabilities, AsKey())
}

func (a *Authenticator) startSession(ctx context.Context, user User) (Session, error) {
	caps, err := a.registry.CapabilitiesFor(ctx, user.Role)
	if err != nil {
		return Session{}, err
	}
	token, err := a.tokens.Issue(user.ID, caps)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Identity: Identity{
			UserID:       user.ID,
			Capabilities: caps,
			TokenType:    TokenTypeUser,
			Role:         user.Role,
		},
		User:  user,
		Token: token,
	}, nil
}

// oauthUsername names OAuth-created accounts. It cannot collide with a
// signup username that happens to equal the email.
func oauthUsername() string {
	return "oauth-" + ids.New()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
