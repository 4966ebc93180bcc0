package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capgate.org/internal/auth"
	"capgate.org/internal/store/memory"
)

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	registry, err := auth.NewRegistry(store, 0)
	require.NoError(t, err)

	defs := map[auth.RoleName][]auth.Capability{
		auth.RoleAdmin: {auth.CapabilityCreate, auth.CapabilityRead, auth.CapabilityUpdate, auth.CapabilityDelete},
	}

	report, err := registry.Seed(ctx, defs)
	require.NoError(t, err)
	assert.Equal(t, []auth.RoleName{auth.RoleAdmin}, report.Created)
	assert.Empty(t, report.Skipped)

	report, err = registry.Seed(ctx, defs)
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	assert.Equal(t, []auth.RoleName{auth.RoleAdmin}, report.Skipped)

	assert.Equal(t, 1, store.RoleCount())
	caps, err := registry.CapabilitiesFor(ctx, auth.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, defs[auth.RoleAdmin], caps)
}

func TestSeedLeavesExistingRolesUntouched(t *testing.T) {
	ctx := context.Background()
	registry, err := auth.NewRegistry(memory.New(), 0)
	require.NoError(t, err)

	_, err = registry.Seed(ctx, map[auth.RoleName][]auth.Capability{auth.RoleUser: {auth.CapabilityRead}})
	require.NoError(t, err)

	report, err := registry.Seed(ctx, auth.DefaultRoles())
	require.NoError(t, err)
	assert.ElementsMatch(t, []auth.RoleName{auth.RoleAdmin, auth.RoleEditor}, report.Created)
	assert.Equal(t, []auth.RoleName{auth.RoleUser}, report.Skipped)

	caps, err := registry.CapabilitiesFor(ctx, auth.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, []auth.Capability{auth.CapabilityRead}, caps)
}

func TestCapabilitiesForUnknownRole(t *testing.T) {
	registry, err := auth.NewRegistry(memory.New(), 0)
	require.NoError(t, err)

	_, err = registry.CapabilitiesFor(context.Background(), "ghost")
	assert.ErrorIs(t, err, auth.ErrUnknownRole)

	_, err = registry.CapabilitiesFor(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrUnknownRole)
}

type failingRoles struct{ err error }

func (f failingRoles) CreateRoleIfAbsent(context.Context, auth.Role) (bool, error) {
	return false, f.err
}

func (f failingRoles) GetRoleCapabilities(context.Context, auth.RoleName) ([]auth.Capability, error) {
	return nil, f.err
}

func TestRegistryWrapsStorageFailures(t *testing.T) {
	registry, err := auth.NewRegistry(failingRoles{err: errors.New("connection refused")}, 0)
	require.NoError(t, err)

	_, err = registry.CapabilitiesFor(context.Background(), auth.RoleUser)
	assert.ErrorIs(t, err, auth.ErrStorageUnavailable)
	assert.True(t, auth.IsInfrastructure(err))

	_, err = registry.Seed(context.Background(), auth.DefaultRoles())
	assert.ErrorIs(t, err, auth.ErrStorageUnavailable)
}

func TestSeedTreatsAlreadyExistsAsSkip(t *testing.T) {
	registry, err := auth.NewRegistry(failingRoles{err: auth.ErrAlreadyExists}, 0)
	require.NoError(t, err)

	report, err := registry.Seed(context.Background(), auth.DefaultRoles())
	require.NoError(t, err)
	assert.Len(t, report.Skipped, 3)
}

func TestSeedTrimsRoleNamesWithoutLosingCapabilities(t *testing.T) {
	ctx := context.Background()
	registry, err := auth.NewRegistry(memory.New(), 0)
	require.NoError(t, err)

	report, err := registry.Seed(ctx, map[auth.RoleName][]auth.Capability{
		" admin ": {auth.CapabilityCreate, auth.CapabilityDelete},
	})
	require.NoError(t, err)
	assert.Equal(t, []auth.RoleName{auth.RoleAdmin}, report.Created)

	caps, err := registry.CapabilitiesFor(ctx, auth.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, []auth.Capability{auth.CapabilityCreate, auth.CapabilityDelete}, caps)
}
