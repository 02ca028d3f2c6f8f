package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sipico/magic-links/internal/storage"
)

// DefaultMaxAttempts caps value regeneration on collisions.
const DefaultMaxAttempts = 10

// Repository is the persistence the Store relies on.
// storage.SQLiteStorage and mockstore.MockStorage implement it.
type Repository interface {
	CreateMagicToken(ctx context.Context, t *storage.MagicToken) (*storage.MagicToken, error)
	GetMagicTokenByValue(ctx context.Context, value string) (*storage.MagicToken, error)
	SetMagicTokenExpiry(ctx context.Context, id int64, expiresAt, updatedAt time.Time) error
	GetPrincipal(ctx context.Context, principalType, id string) (*storage.Principal, error)
}

// Issuer creates tokens. *Store implements it.
type Issuer interface {
	Create(ctx context.Context, p CreateParams) (*Token, error)
}

// CreateParams are the attributes of a new token.
type CreateParams struct {
	Subject     SubjectRef
	TargetPath  string
	ActionScope ActionScope
	Strength    Strength      // zero value = Moderate
	Expiry      time.Duration // zero = never expires
}

func (p CreateParams) validate() error {
	if p.TargetPath == "" {
		return fmt.Errorf("%w: target path required", ErrInvalidToken)
	}
	if err := p.ActionScope.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if p.Subject.Type == "" || p.Subject.ID == "" {
		return fmt.Errorf("%w: subject required", ErrInvalidToken)
	}
	if p.Strength != "" && !p.Strength.Valid() {
		return fmt.Errorf("%w: unknown strength %q", ErrInvalidToken, string(p.Strength))
	}
	return nil
}

// Store manages the token lifecycle on top of a Repository.
type Store struct {
	repo        Repository
	logger      *slog.Logger
	now         func() time.Time
	generate    func(Strength) (string, error)
	maxAttempts int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithGenerator overrides value generation.
func WithGenerator(gen func(Strength) (string, error)) Option {
	return func(s *Store) { s.generate = gen }
}

// WithMaxAttempts sets the regeneration cap. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store.
func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:        repo,
		logger:      slog.Default(),
		now:         time.Now,
		generate:    GenerateValue,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a new token with a unique value.
// A value already present in storage, either found by lookup or reported by the
// insert as ErrDuplicate, is regenerated. After maxAttempts collisions
// ErrGenerationExhausted is returned.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Token, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	strength := p.Strength.OrDefault()
	scope := p.ActionScope.toMap()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		value, err := s.generate(strength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}

		_, err = s.repo.GetMagicTokenByValue(ctx, value)
		if err == nil {
			s.logger.Warn("token value collision, regenerating", "attempt", attempt, "strength", strength)
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to check token uniqueness: %w", err)
		}

		now := s.now().UTC()
		row := &storage.MagicToken{
			Token:       value,
			TargetPath:  p.TargetPath,
			ActionScope: scope,
			SubjectType: p.Subject.Type,
			SubjectID:   p.Subject.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if p.Expiry != 0 {
			exp := now.Add(p.Expiry)
			row.ExpiresAt = &exp
		}

		created, err := s.repo.CreateMagicToken(ctx, row)
		if errors.Is(err, storage.ErrDuplicate) {
			// Lost a race against a concurrent insert of the same value
			s.logger.Warn("token value inserted concurrently, regenerating", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create token: %w", err)
		}

		s.logger.Debug("magic token created",
			"token_id", created.ID,
			"strength", strength,
			"subject", p.Subject.String(),
			"expires_at", created.ExpiresAt)

		return fromRecord(created), nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, s.maxAttempts)
}

// MildToken creates a non-expiring mild strength token.
func (s *Store) MildToken(ctx context.Context, subject SubjectRef, targetPath string, scope ActionScope) (*Token, error) {
	return s.Create(ctx, CreateParams{Subject: subject, TargetPath: targetPath, ActionScope: scope, Strength: Mild})
}

// ModerateToken creates a non-expiring moderate strength token.
func (s *Store) ModerateToken(ctx context.Context, subject SubjectRef, targetPath string, scope ActionScope) (*Token, error) {
	return s.Create(ctx, CreateParams{Subject: subject, TargetPath: targetPath, ActionScope: scope, Strength: Moderate})
}

// StrongToken creates a non-expiring strong strength token.
func (s *Store) StrongToken(ctx context.Context, subject SubjectRef, targetPath string, scope ActionScope) (*Token, error) {
	return s.Create(ctx, CreateParams{Subject: subject, TargetPath: targetPath, ActionScope: scope, Strength: Strong})
}

// FindByValue looks up a token by value. Expired tokens are returned too.
// Returns ErrNotFound if there is none.
func (s *Store) FindByValue(ctx context.Context, value string) (*Token, error) {
	if value == "" {
		return nil, ErrNotFound
	}

	row, err := s.repo.GetMagicTokenByValue(ctx, value)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find token: %w", err)
	}

	return fromRecord(row), nil
}

// IsValid reports whether t is usable now.
func (s *Store) IsValid(t *Token) bool {
	return t != nil && t.ValidAt(s.now())
}

// ExpireIn sets t to expire d from now, persists it and returns t.
func (s *Store) ExpireIn(ctx context.Context, t *Token, d time.Duration) (*Token, error) {
	now := s.now().UTC()
	exp := now.Add(d)

	if err := s.repo.SetMagicTokenExpiry(ctx, t.ID, exp, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to set token expiry: %w", err)
	}

	t.ExpiresAt = &exp
	t.UpdatedAt = now
	return t, nil
}

// ResolveSubject looks up the principal t refers to.
// A dangling or malformed reference, or a lookup failure, yields false.
func (s *Store) ResolveSubject(ctx context.Context, t *Token) (*Principal, bool) {
	if t == nil || t.Subject.Type == "" || t.Subject.ID == "" {
		return nil, false
	}

	p, err := s.repo.GetPrincipal(ctx, t.Subject.Type, t.Subject.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Debug("magic token subject no longer exists", "token_id", t.ID, "subject", t.Subject.String())
		} else {
			s.logger.Warn("failed to resolve magic token subject", "token_id", t.ID, "error", err)
		}
		return nil, false
	}

	return &Principal{Type: p.Type, ID: p.ID, Name: p.Name}, true
}

// Scope returns the scope identifier of t's subject, e.g. "user".
// False when the subject cannot be resolved.
func (s *Store) Scope(ctx context.Context, t *Token) (string, bool) {
	p, ok := s.ResolveSubject(ctx, t)
	if !ok {
		return "", false
	}
	scope := ScopeName(p.Type)
	return scope, scope != ""
}

func fromRecord(r *storage.MagicToken) *Token {
	t := &Token{
		ID:          r.ID,
		Value:       r.Token,
		TargetPath:  r.TargetPath,
		ActionScope: scopeFromMap(r.ActionScope),
		Subject:     SubjectRef{Type: r.SubjectType, ID: r.SubjectID},
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		t.ExpiresAt = &exp
	}
	return t
}
