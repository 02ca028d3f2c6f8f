package storage

import "time"

// MagicToken is one issued magic link as persisted in the magic_tokens table.
type MagicToken struct {
	ID          int64
	Token       string
	TargetPath  string
	ActionScope map[string][]string // resource -> permitted actions, stored as JSON
	SubjectType string
	SubjectID   string
	ExpiresAt   *time.Time // nil = no expiry
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Principal is an identity a magic token can authenticate as.
// Type and ID together form the polymorphic reference held by MagicToken.
type Principal struct {
	Type      string
	ID        string
	Name      string
	CreatedAt time.Time
}
