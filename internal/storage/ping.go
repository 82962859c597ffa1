package storage

import (
	"context"
	"fmt"
)

// registryTables must all exist for the store to serve requests.
var registryTables = []string{"endpoints", "endpoint_roles", "features", "feature_roles"}

// Ping checks that the connection answers and the registry schema is in place.
// It reads only sqlite_master, never the registry rows.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (?, ?, ?, ?)`,
		registryTables[0], registryTables[1], registryTables[2], registryTables[3],
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if n != len(registryTables) {
		return fmt.Errorf("database schema incomplete: found %d of %d registry tables", n, len(registryTables))
	}
	return nil
}
