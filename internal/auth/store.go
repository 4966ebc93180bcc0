package auth

import "context"

// UserStore persists user records. Implementations return ErrNotFound for
// missing users, ErrAlreadyExists for uniqueness conflicts and wrap transport
// failures with ErrStorageUnavailable.
type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (User, error)
	FindUserByID(ctx context.Context, id string) (User, error)
	// FindOrCreateUserByEmail returns the user owning email, inserting the
	// record built by create if none exists. It must be
	// idempotent under concurrent calls with the same email.
	FindOrCreateUserByEmail(ctx context.Context, email string, create func() (User, error)) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
}

// RoleStore persists role definitions.
type RoleStore interface {
	// CreateRoleIfAbsent stores the role unless one with the same name
	// exists; created reports whether a new record was written.
	CreateRoleIfAbsent(ctx context.Context, role Role) (created bool, err error)
	// GetRoleCapabilities returns ErrNotFound when no role has the name.
	GetRoleCapabilities(ctx context.Context, name RoleName) ([]Capability, error)
}

// Store is the full credential store adapter.
type Store interface {
	UserStore
	RoleStore
}
