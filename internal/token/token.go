// Package token implements the magic token entity and its lifecycle:
// secure value generation in strength tiers, uniqueness on creation,
// expiry and lookup.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// Strength selects the length of a generated token value.
type Strength string

const (
	// Mild tokens are 8 characters long.
	Mild Strength = "mild"
	// Moderate tokens are 16 characters long. Moderate is the default strength.
	Moderate Strength = "moderate"
	// Strong tokens are 32 characters long.
	Strong Strength = "strong"
)

// strengthLengths maps each strength to its token length in characters.
var strengthLengths = map[Strength]int{
	Mild:     8,
	Moderate: 16,
	Strong:   32,
}

// ParseStrength parses a strength name. The empty string yields Moderate.
func ParseStrength(s string) (Strength, error) {
	if s == "" {
		return Moderate, nil
	}
	st := Strength(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown token strength %q (must be mild, moderate or strong)", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known strengths.
func (s Strength) Valid() bool {
	_, ok := strengthLengths[s]
	return ok
}

// OrDefault returns s, or Moderate when s is unset.
func (s Strength) OrDefault() Strength {
	if s == "" {
		return Moderate
	}
	return s
}

// Length returns the token length for the strength.
func (s Strength) Length() int {
	return strengthLengths[s.OrDefault()]
}

// String implements fmt.Stringer.
func (s Strength) String() string {
	return string(s.OrDefault())
}

// StrengthForLength infers the strength of an existing token value from its length.
func StrengthForLength(n int) Strength {
	switch {
	case n >= 32:
		return Strong
	case n >= 16:
		return Moderate
	default:
		return Mild
	}
}

// GenerateValue returns a random token value of the strength's length.
// The value uses the URL-safe base64 alphabet [A-Za-z0-9_-] read from crypto/rand.
func GenerateValue(s Strength) (string, error) {
	if s != "" && !s.Valid() {
		return "", fmt.Errorf("unknown token strength %q", string(s))
	}
	n := s.Length()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}

// SubjectRef is a polymorphic reference to the principal a token authenticates as.
type SubjectRef struct {
	Type string
	ID   string
}

// IsZero reports whether the reference is unset.
func (r SubjectRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// String implements fmt.Stringer.
func (r SubjectRef) String() string {
	return r.Type + "/" + r.ID
}

// Principal is a resolved identity.
type Principal struct {
	Type string
	ID   string
	Name string
}

// Ref returns the polymorphic reference for p.
func (p *Principal) Ref() SubjectRef {
	return SubjectRef{Type: p.Type, ID: p.ID}
}

// Token is an issued magic token.
type Token struct {
	ID          int64
	Value       string
	TargetPath  string
	ActionScope ActionScope
	Subject     SubjectRef
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New builds an unsaved token with a freshly generated value of the given strength.
func New(s Strength) (*Token, error) {
	t := &Token{}
	if err := t.Regenerate(s); err != nil {
		return nil, err
	}
	return t, nil
}

// Regenerate replaces the token value with a new one of the given strength.
// Only meaningful before the token is persisted.
func (t *Token) Regenerate(s Strength) error {
	value, err := GenerateValue(s)
	if err != nil {
		return err
	}
	t.Value = value
	return nil
}

// Strength infers the strength from the token value length.
func (t *Token) Strength() Strength {
	if t.Value == "" {
		return Moderate
	}
	return StrengthForLength(len(t.Value))
}

// ExpiredAt reports whether the token has an expiry before now.
func (t *Token) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// ValidAt reports whether the token may be used at now.
// Tokens without an expiry are always valid.
func (t *Token) ValidAt(now time.Time) bool {
	return !t.ExpiredAt(now)
}
