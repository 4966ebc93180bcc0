// Package pg implements the credential store on PostgreSQL through the pgx
// database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"capgate.org/internal/auth"
)

// Migrations holds the schema for users and roles.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	pgErrUniqueViolation = "23505"
	pgErrCheckViolation  = "23514"
	pgErrNotNull         = "23502"
)

type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects using the pgx driver with pool defaults sized for an auth service.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrConfiguration, err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Check pings the database; it satisfies the readiness probe interface.
func (s *Store) Check(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrStorageUnavailable, err)
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapError translates driver errors into the auth store taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", auth.ErrAlreadyExists, pgErr.ConstraintName)
		case pgErrCheckViolation, pgErrNotNull:
			return fmt.Errorf("%w: %s", auth.ErrInvalidInput, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", auth.ErrStorageUnavailable, err)
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
