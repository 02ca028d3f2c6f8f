package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const magicTokenColumns = "id, token, target_path, action_scope, subject_type, subject_id, expires_at, created_at, updated_at"

// CreateMagicToken inserts a magic token row.
// The token value must be unique; returns ErrDuplicate if it is already taken.
// The returned token carries the assigned ID.
func (s *SQLiteStorage) CreateMagicToken(ctx context.Context, t *MagicToken) (*MagicToken, error) {
	if t.Token == "" {
		return nil, errors.New("token value required")
	}
	if t.TargetPath == "" {
		return nil, errors.New("target path required")
	}
	if len(t.ActionScope) == 0 {
		return nil, errors.New("action scope cannot be empty")
	}

	scopeJSON, err := json.Marshal(t.ActionScope)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action scope: %w", err)
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}

	var expiresAt sql.NullTime
	if t.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: t.ExpiresAt.UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO magic_tokens (token, target_path, action_scope, subject_type, subject_id, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Token, t.TargetPath, string(scopeJSON), t.SubjectType, t.SubjectID,
		expiresAt, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create magic token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}

	created := *t
	created.ID = id
	return &created, nil
}

// GetMagicTokenByValue retrieves a magic token by its token value.
// Expired tokens are returned as well; validity is decided by the caller.
// Returns ErrNotFound if no row has this value.
func (s *SQLiteStorage) GetMagicTokenByValue(ctx context.Context, value string) (*MagicToken, error) {
	if value == "" {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+magicTokenColumns+" FROM magic_tokens WHERE token = ?", value)

	t, err := scanMagicToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get magic token: %w", err)
	}

	return t, nil
}

// SetMagicTokenExpiry updates expires_at (and updated_at) of a magic token.
// This is the only mutation a magic token ever receives.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStorage) SetMagicTokenExpiry(ctx context.Context, id int64, expiresAt, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE magic_tokens SET expires_at = ?, updated_at = ? WHERE id = ?",
		expiresAt.UTC(), updatedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update magic token expiry: %w", err)
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

// CountMagicTokens returns the number of stored magic tokens, expired ones included.
func (s *SQLiteStorage) CountMagicTokens(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM magic_tokens").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count magic tokens: %w", err)
	}
	return count, nil
}

// scanMagicToken scans one row selected with magicTokenColumns.
func scanMagicToken(row *sql.Row) (*MagicToken, error) {
	var t MagicToken
	var scopeJSON string
	var expiresAt sql.NullTime

	if err := row.Scan(&t.ID, &t.Token, &t.TargetPath, &scopeJSON, &t.SubjectType, &t.SubjectID,
		&expiresAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scopeJSON), &t.ActionScope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action scope: %w", err)
	}

	if expiresAt.Valid {
		exp := expiresAt.Time.UTC()
		t.ExpiresAt = &exp
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	return &t, nil
}
