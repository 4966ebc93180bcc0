package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"capgate.org/internal/obs"
)

const defaultRegistryCacheSize = 128

// Registry resolves role names into capability sets. Roles are immutable
// once seeded, so lookups are cached.
type Registry struct {
	roles RoleStore
	cache *lru.Cache[RoleName, []Capability]
}

// NewRegistry constructs a Registry backed by roles. cacheSize <= 0 selects
// the default size.
func NewRegistry(roles RoleStore, cacheSize int) (*Registry, error) {
	if roles == nil {
		return nil, fmt.Errorf("%w: role store is required", ErrConfiguration)
	}
	if cacheSize <= 0 {
		cacheSize = defaultRegistryCacheSize
	}
	cache, err := lru.New[RoleName, []Capability](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &Registry{roles: roles, cache: cache}, nil
}

// SeedReport lists which roles a Seed call created and which already existed.
type SeedReport struct {
	Created []RoleName
	Skipped []RoleName
}

// Seed creates every role in defs that does not exist yet. Existing roles
// are left untouched and reported as skipped.
func (r *Registry) Seed(ctx context.Context, defs map[RoleName][]Capability) (SeedReport, error) {
	report := SeedReport{Created: []RoleName{}, Skipped: []RoleName{}}

	names := make([]RoleName, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, key := range names {
		name := RoleName(strings.TrimSpace(string(key)))
		if name == "" {
			return report, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		role := Role{Name: name, Capabilities: dedupeCapabilities(defs[key])}
		created, err := r.roles.CreateRoleIfAbsent(ctx, role)
		if errors.Is(err, ErrAlreadyExists) {
			created, err = false, nil
		}
		if err != nil {
			return report, storageError(err)
		}
		if !created {
			obs.Logger().WithField("role", string(name)).Info("role already exists")
			report.Skipped = append(report.Skipped, name)
			continue
		}
		r.cache.Remove(name)
		report.Created = append(report.Created, name)
	}

	obs.Logger().WithFields(logrus.Fields{
		"created": len(report.Created),
		"skipped": len(report.Skipped),
	}).Info("roles seeded")
	return report, nil
}

// CapabilitiesFor returns the capabilities granted to role. It fails with
// ErrUnknownRole when the role has no registry entry.
func (r *Registry) CapabilitiesFor(ctx context.Context, role RoleName) ([]Capability, error) {
	role = RoleName(strings.TrimSpace(string(role)))
	if role == "" {
		return nil, fmt.Errorf("%w: empty role name", ErrUnknownRole)
	}
	if caps, ok := r.cache.Get(role); ok {
		return append([]Capability(nil), caps...), nil
	}
	caps, err := r.roles.GetRoleCapabilities(ctx, role)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		return nil, storageError(err)
	}
	caps = dedupeCapabilities(caps)
	r.cache.Add(role, caps)
	return append([]Capability(nil), caps...), nil
}

func storageError(err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
