package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"capgate.org/internal/auth"
	"capgate.org/internal/store/memory"
)

type fixture struct {
	store  *memory.Store
	authn  *auth.Authenticator
	tokens *auth.TokenService
	hasher *auth.Hasher
}

func newFixture(t *testing.T, opts ...auth.TokenOption) fixture {
	t.Helper()
	store := memory.New()
	registry, err := auth.NewRegistry(store, 0)
	require.NoError(t, err)
	_, err = registry.Seed(context.Background(), auth.DefaultRoles())
	require.NoError(t, err)

	opts = append([]auth.TokenOption{auth.WithUsedTokenSet(auth.NewUsedTokenSet())}, opts...)
	tokens, err := auth.NewTokenService("fixture-secret", opts...)
	require.NoError(t, err)
	hasher, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	authn, err := auth.NewAuthenticator(store, registry, tokens, hasher)
	require.NoError(t, err)
	return fixture{store: store, authn: authn, tokens: tokens, hasher: hasher}
}

func (f fixture) register(t *testing.T, username, password string, role auth.RoleName) auth.Session {
	t.Helper()
	session, err := f.authn.Register(context.Background(), auth.Registration{
		Username: username,
		Password: password,
		Role:     role,
	})
	require.NoError(t, err)
	return session
}

func TestRegisterHashesPasswordAndIssuesToken(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "ada", "s3cret", auth.RoleEditor)

	require.NotEmpty(t, session.Token)
	assert.NotEqual(t, "s3cret", session.User.PasswordHash)
	assert.True(t, f.hasher.Verify("s3cret", session.User.PasswordHash))
	assert.Equal(t, []auth.Capability{auth.CapabilityCreate, auth.CapabilityRead, auth.CapabilityUpdate}, session.Identity.Capabilities)

	identity, err := f.authn.AuthenticateBearer(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, identity.UserID)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.authn.Register(ctx, auth.Registration{Password: "x"})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = f.authn.Register(ctx, auth.Registration{Username: "ada"})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = f.authn.Register(ctx, auth.Registration{Username: "ada", Password: "x", Role: "root"})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	session, err := f.authn.Register(ctx, auth.Registration{Username: "ada", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, session.User.Role)

	_, err = f.authn.Register(ctx, auth.Registration{Username: "ada", Password: "y"})
	assert.ErrorIs(t, err, auth.ErrAlreadyExists)
}

func TestAuthenticateBasic(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada", "s3cret", auth.RoleAdmin)
	ctx := context.Background()

	session, err := f.authn.AuthenticateBasic(ctx, "ada", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, session.Identity.Role)
	assert.True(t, session.Identity.Can(auth.CapabilityDelete))
	assert.NotEmpty(t, session.Token)
}

func TestAuthenticateBasicWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada", "s3cret", auth.RoleUser)

	_, err := f.authn.AuthenticateBasic(context.Background(), "ada", "guess")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.False(t, errors.Is(err, auth.ErrUnknownRole))
	assert.False(t, auth.IsInfrastructure(err))
}

func TestAuthenticateBasicUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.authn.AuthenticateBasic(context.Background(), "nobody", "x")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = f.authn.AuthenticateBasic(context.Background(), "", "")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestAuthenticateBasicRoleWithoutRecordDenies(t *testing.T) {
	f := newFixture(t)
	session := f.register(t, "ada", "s3cret", auth.RoleUser)
	require.NoError(t, f.store.SetUserRole(context.Background(), session.User.ID, "retired"))

	_, err := f.authn.AuthenticateBasic(context.Background(), "ada", "s3cret")
	assert.ErrorIs(t, err, auth.ErrUnknownRole)
}

func TestAuthenticateOAuthFindOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.authn.AuthenticateOAuth(ctx, "Grace@Example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, first.User.ID)
	assert.Equal(t, auth.RoleUser, first.User.Role)
	assert.Equal(t, "grace@example.com", first.User.Email)
	assert.Equal(t, []auth.Capability{auth.CapabilityRead}, first.Identity.Capabilities)

	second, err := f.authn.AuthenticateOAuth(ctx, "grace@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)

	// The placeholder password never authenticates.
	for _, guess := range []string{"none", ""} {
		_, err = f.authn.AuthenticateBasic(ctx, first.User.Username, guess)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}

	_, err = f.authn.AuthenticateOAuth(ctx, "  ")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestCapabilitySnapshotSurvivesRoleChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session := f.register(t, "ada", "s3cret", auth.RoleEditor)

	require.NoError(t, f.store.SetUserRole(ctx, session.User.ID, auth.RoleUser))

	identity, err := f.authn.AuthenticateBearer(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, auth.Allow, auth.Authorize(identity, auth.CapabilityCreate))

	fresh, err := f.authn.AuthenticateBasic(ctx, "ada", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, auth.Deny, auth.Authorize(fresh.Identity, auth.CapabilityCreate))
}

func TestAuthenticateDispatch(t *testing.T) {
	f := newFixture(t, auth.WithSingleUse(true))
	ctx := context.Background()
	f.register(t, "ada", "s3cret", auth.RoleUser)

	basic, err := f.authn.Authenticate(ctx, auth.BasicCredentials{Username: "ada", Password: "s3cret"})
	require.NoError(t, err)

	bearer, err := f.authn.Authenticate(ctx, auth.BearerCredentials{Token: basic.Token})
	require.NoError(t, err)
	assert.Equal(t, basic.Identity.UserID, bearer.Identity.UserID)
	assert.Equal(t, basic.Token, bearer.Token)

	_, err = f.authn.Authenticate(ctx, auth.BearerCredentials{Token: basic.Token})
	assert.ErrorIs(t, err, auth.ErrTokenReused)

	oauth, err := f.authn.Authenticate(ctx, auth.OAuthCredentials{Email: "new@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, oauth.Token)

	_, err = f.authn.Authenticate(ctx, nil)
	assert.ErrorIs(t, err, auth.ErrMissingToken)
}

func TestIssueKey(t *testing.T) {
	f := newFixture(t, auth.WithSingleUse(true))
	ctx := context.Background()
	session := f.register(t, "ada", "s3cret", auth.RoleAdmin)

	key, err := f.authn.IssueKey(ctx, session.Identity)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		identity, err := f.authn.AuthenticateBearer(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, auth.TokenTypeKey, identity.TokenType)
		assert.True(t, identity.Can(auth.CapabilityDelete))
	}

	_, err = f.authn.IssueKey(ctx, auth.Identity{})
	assert.ErrorIs(t, err, auth.ErrMissingToken)
}

func TestNewAuthenticatorRequiresCollaborators(t *testing.T) {
	_, err := auth.NewAuthenticator(nil, nil, nil, nil)
	assert.ErrorIs(t, err, auth.ErrConfiguration)
}

func TestAuthenticateOAuthIgnoresUsernameEqualToEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	local, err := f.authn.Register(ctx, auth.Registration{Username: "bob@example.com", Password: "s3cret"})
	require.NoError(t, err)

	oauth, err := f.authn.AuthenticateOAuth(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, local.User.ID, oauth.User.ID)
	assert.NotEqual(t, "bob@example.com", oauth.User.Username)
	assert.Equal(t, "bob@example.com", oauth.User.Email)

	again, err := f.authn.AuthenticateOAuth(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, oauth.User.ID, again.User.ID)

	_, err = f.authn.AuthenticateBasic(ctx, "bob@example.com", "s3cret")
	assert.NoError(t, err, "the signup account keeps its password")
}
