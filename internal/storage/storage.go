// Package storage provides SQLite persistence for magic tokens and the principals they refer to.
package storage

import (
	"context"
	"time"
)

// Storage defines the interface for SQLite persistence operations.
type Storage interface {
	// Magic token operations
	CreateMagicToken(ctx context.Context, t *MagicToken) (*MagicToken, error)
	GetMagicTokenByValue(ctx context.Context, value string) (*MagicToken, error)
	SetMagicTokenExpiry(ctx context.Context, id int64, expiresAt, updatedAt time.Time) error

	// Principal operations
	CreatePrincipal(ctx context.Context, p *Principal) (*Principal, error)
	GetPrincipal(ctx context.Context, principalType, id string) (*Principal, error)
	DeletePrincipal(ctx context.Context, principalType, id string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
