package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreatePrincipal stores a principal identity.
// Returns ErrDuplicate if a principal with the same type and ID exists.
func (s *SQLiteStorage) CreatePrincipal(ctx context.Context, p *Principal) (*Principal, error) {
	if p.Type == "" {
		return nil, errors.New("principal type required")
	}
	if p.ID == "" {
		return nil, errors.New("principal id required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO principals (type, id, name) VALUES (?, ?, ?)",
		p.Type, p.ID, p.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create principal: %w", err)
	}

	return s.GetPrincipal(ctx, p.Type, p.ID)
}

// GetPrincipal retrieves a principal by its polymorphic reference.
// Returns ErrNotFound if it doesn't exist (for example after deletion).
func (s *SQLiteStorage) GetPrincipal(ctx context.Context, principalType, id string) (*Principal, error) {
	var p Principal

	err := s.db.QueryRowContext(ctx,
		"SELECT type, id, name, created_at FROM principals WHERE type = ? AND id = ?",
		principalType, id).
		Scan(&p.Type, &p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	return &p, nil
}

// DeletePrincipal deletes a principal. Magic tokens referring to it are kept
// and become dangling references.
// Returns ErrNotFound if the principal doesn't exist.
func (s *SQLiteStorage) DeletePrincipal(ctx context.Context, principalType, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM principals WHERE type = ? AND id = ?",
		principalType, id)
	if err != nil {
		return fmt.Errorf("failed to delete principal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
