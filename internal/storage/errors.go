package storage

import "errors"

// Sentinel errors returned by SQLiteStorage. Callers compare with errors.Is.
var (
	// ErrDuplicate: the token value or the (type, id) principal key is taken.
	ErrDuplicate = errors.New("storage: already exists")

	// ErrNotFound: no magic token or principal matches the lookup.
	ErrNotFound = errors.New("storage: not found")

	// ErrSchemaMissing: the database is reachable but lacks a required table.
	ErrSchemaMissing = errors.New("storage: schema not initialized")
)
