package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"capgate.org/internal/auth"
	"capgate.org/internal/ids"
)

const userColumns = `id, username, password_hash, email, role, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u     auth.User
		email sql.NullString
		role  string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &email, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, mapError(err)
	}
	u.Email = email.String
	u.Role = auth.RoleName(role)
	return u, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where username = $1`, username)
	return scanUser(row)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *Store) findUserByEmail(ctx context.Context, email string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email)
	return scanUser(row)
}

func (s *Store) CreateUser(ctx context.Context, user auth.User) (auth.User, error) {
	user, err := prepareUser(user)
	if err != nil {
		return auth.User{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, password_hash, email, role)
		values ($1, $2, $3, $4, $5)
		returning `+userColumns,
		user.ID, user.Username, user.PasswordHash, nullIfEmpty(user.Email), string(user.Role))
	return scanUser(row)
}

// FindOrCreateUserByEmail relies on the unique email index so concurrent
// first logins converge on one row.
func (s *Store) FindOrCreateUserByEmail(ctx context.Context, email string, create func() (auth.User, error)) (auth.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return auth.User{}, fmt.Errorf("%w: email is required", auth.ErrInvalidInput)
	}
	user, err := s.findUserByEmail(ctx, email)
	if err == nil || !errors.Is(err, auth.ErrNotFound) {
		return user, err
	}

	candidate, err := create()
	if err != nil {
		return auth.User{}, err
	}
	candidate.Email = email
	candidate, err = prepareUser(candidate)
	if err != nil {
		return auth.User{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, password_hash, email, role)
		values ($1, $2, $3, $4, $5)
		on conflict (email) do nothing
		returning `+userColumns,
		candidate.ID, candidate.Username, candidate.PasswordHash, candidate.Email, string(candidate.Role))
	user, err = scanUser(row)
	if errors.Is(err, auth.ErrNotFound) {
		// Lost the race to a concurrent insert of the same email.
		return s.findUserByEmail(ctx, email)
	}
	return user, err
}

func prepareUser(user auth.User) (auth.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return auth.User{}, fmt.Errorf("%w: username is required", auth.ErrInvalidInput)
	}
	if user.PasswordHash == "" {
		return auth.User{}, fmt.Errorf("%w: password hash is required", auth.ErrInvalidInput)
	}
	if user.ID == "" {
		user.ID = ids.New()
	}
	if user.Role == "" {
		user.Role = auth.DefaultRole
	}
	return user, nil
}
