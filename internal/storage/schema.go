package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	ddlStatements := []string{
		// magic_tokens table: one row per issued magic link
		`CREATE TABLE IF NOT EXISTS magic_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			token TEXT NOT NULL,
			target_path TEXT NOT NULL,
			action_scope TEXT NOT NULL,
			subject_type TEXT NOT NULL DEFAULT '',
			subject_id TEXT NOT NULL DEFAULT '',
			expires_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		// Unique index on token: backstop for racing creations
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_magic_tokens_token ON magic_tokens(token)`,

		// Index on the polymorphic subject reference
		`CREATE INDEX IF NOT EXISTS idx_magic_tokens_subject ON magic_tokens(subject_type, subject_id)`,

		// principals table: identities magic tokens refer to
		`CREATE TABLE IF NOT EXISTS principals (
			type TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (type, id)
		)`,
	}

	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}

// MigrateSchema checks current schema version and applies migrations.
// There is only one schema version so far.
func MigrateSchema(db *sql.DB) error {
	return InitSchema(db)
}
