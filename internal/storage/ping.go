package storage

import (
	"context"
	"fmt"
)

// requiredTables must exist for the server to be ready.
var requiredTables = []string{"magic_tokens", "principals"}

// Ping reports whether the database answers and holds the magic-link schema.
// It backs the readiness endpoints and reads only sqlite_master.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (?, ?)",
		requiredTables[0], requiredTables[1]).Scan(&n)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if n != len(requiredTables) {
		return fmt.Errorf("%w: found %d of %d tables", ErrSchemaMissing, n, len(requiredTables))
	}
	return nil
}
