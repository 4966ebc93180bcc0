package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"capgate.org/internal/auth"
)

func (s *Store) CreateRoleIfAbsent(ctx context.Context, role auth.Role) (bool, error) {
	name := strings.TrimSpace(string(role.Name))
	if name == "" {
		return false, fmt.Errorf("%w: role name is required", auth.ErrInvalidInput)
	}
	caps := auth.CapabilityStrings(role.Capabilities)
	payload, err := json.Marshal(caps)
	if err != nil {
		return false, fmt.Errorf("encode capabilities: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		insert into roles (name, capabilities)
		values ($1, $2)
		on conflict (name) do nothing
	`, name, payload)
	if err != nil {
		return false, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError(err)
	}
	return n == 1, nil
}

func (s *Store) GetRoleCapabilities(ctx context.Context, name auth.RoleName) ([]auth.Capability, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `select capabilities from roles where name = $1`, string(name)).Scan(&raw)
	if err != nil {
		return nil, mapError(err)
	}
	var caps []string
	if err := json.Unmarshal(raw, &caps); err != nil {
		return nil, fmt.Errorf("%w: decode capabilities for %s: %v", auth.ErrStorageUnavailable, name, err)
	}
	return auth.ParseCapabilities(caps), nil
}
