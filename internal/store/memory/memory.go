// Package memory provides a process-local credential store for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"capgate.org/internal/auth"
	"capgate.org/internal/ids"
)

// Store keeps users and roles in maps guarded by a single lock.
type Store struct {
	mu         sync.RWMutex
	users      map[string]auth.User
	byUsername map[string]string
	byEmail    map[string]string
	roles      map[auth.RoleName][]auth.Capability
	now        func() time.Time
}

var _ auth.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:      make(map[string]auth.User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		roles:      make(map[auth.RoleName][]auth.Capability),
		now:        time.Now,
	}
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return user, nil
}

func (s *Store) FindOrCreateUserByEmail(_ context.Context, email string, create func() (auth.User, error)) (auth.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return auth.User{}, fmt.Errorf("%w: email is required", auth.ErrInvalidInput)
	}
	if user, ok := s.userByEmail(email); ok {
		return user, nil
	}

	candidate, err := create()
	if err != nil {
		return auth.User{}, err
	}
	candidate.Email = email

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have created the user while create ran.
	if id, ok := s.byEmail[email]; ok {
		return s.users[id], nil
	}
	return s.insertLocked(candidate)
}

func (s *Store) CreateUser(_ context.Context, user auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Email != "" {
		if _, ok := s.byEmail[user.Email]; ok {
			return auth.User{}, fmt.Errorf("%w: email %s", auth.ErrAlreadyExists, user.Email)
		}
	}
	return s.insertLocked(user)
}

func (s *Store) insertLocked(user auth.User) (auth.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return auth.User{}, fmt.Errorf("%w: username is required", auth.ErrInvalidInput)
	}
	if user.PasswordHash == "" {
		return auth.User{}, fmt.Errorf("%w: password hash is required", auth.ErrInvalidInput)
	}
	if _, ok := s.byUsername[user.Username]; ok {
		return auth.User{}, fmt.Errorf("%w: username %s", auth.ErrAlreadyExists, user.Username)
	}
	if user.ID == "" {
		user.ID = ids.New()
	}
	if user.Role == "" {
		user.Role = auth.DefaultRole
	}
	now := s.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	s.users[user.ID] = user
	s.byUsername[user.Username] = user.ID
	if user.Email != "" {
		s.byEmail[user.Email] = user.ID
	}
	return user, nil
}

func (s *Store) userByEmail(email string) (auth.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return auth.User{}, false
	}
	return s.users[id], true
}

// SetUserRole changes the stored role of a user.
func (s *Store) SetUserRole(_ context.Context, id string, role auth.RoleName) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.Role = role
	user.UpdatedAt = s.now().UTC()
	s.users[id] = user
	return nil
}

func (s *Store) CreateRoleIfAbsent(_ context.Context, role auth.Role) (bool, error) {
	if strings.TrimSpace(string(role.Name)) == "" {
		return false, fmt.Errorf("%w: role name is required", auth.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.Name]; ok {
		return false, nil
	}
	s.roles[role.Name] = append([]auth.Capability{}, role.Capabilities...)
	return true, nil
}

func (s *Store) GetRoleCapabilities(_ context.Context, name auth.RoleName) ([]auth.Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	caps, ok := s.roles[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return append([]auth.Capability{}, caps...), nil
}

// RoleCount returns the number of stored roles.
func (s *Store) RoleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roles)
}
