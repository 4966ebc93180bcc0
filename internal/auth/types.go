package auth

import "time"

// Capability is a named action a role may perform.
type Capability string

const (
	CapabilityCreate Capability = "create"
	CapabilityRead   Capability = "read"
	CapabilityUpdate Capability = "update"
	CapabilityDelete Capability = "delete"
)

// RoleName identifies a role. Users may only hold one of the known roles.
type RoleName string

const (
	RoleAdmin  RoleName = "admin"
	RoleEditor RoleName = "editor"
	RoleUser   RoleName = "user"

	DefaultRole = RoleUser
)

// Valid reports whether r is one of the known role names.
func (r RoleName) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleUser:
		return true
	}
	return false
}

// TokenType distinguishes session tokens from long-lived programmatic keys.
type TokenType string

const (
	TokenTypeUser TokenType = "user"
	TokenTypeKey  TokenType = "key"
)

// User is a stored identity record. PasswordHash never holds plaintext.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Email        string
	Role         RoleName
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role groups an ordered set of capabilities under a unique name.
type Role struct {
	Name         RoleName
	Capabilities []Capability
}

// Identity is the verified result of authentication, threaded explicitly to
// the authorizer and downstream handlers.
type Identity struct {
	UserID       string
	Capabilities []Capability
	TokenType    TokenType
	// Role is set only when the identity was resolved from a stored user.
	Role RoleName
}

// Can reports whether the identity holds capability c.
func (i Identity) Can(c Capability) bool {
	for _, have := range i.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Session is an authenticated identity paired with a freshly issued token.
type Session struct {
	Identity Identity
	User     User
	Token    string
}
