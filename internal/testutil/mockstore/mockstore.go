// Package mockstore provides a configurable in-memory implementation of the storage
// interfaces for testing.
//
// MockStorage keeps magic tokens and principals in maps, so it behaves like the SQLite
// storage by default. Each method can be overridden by setting the corresponding
// function field, which is how tests inject failures and collisions.
package mockstore

import (
	"context"
	"sync"
	"time"

	"github.com/sipico/magic-links/internal/storage"
)

// MockStorage is an in-memory implementation of storage.Storage.
type MockStorage struct {
	// Magic token operations
	CreateMagicTokenFunc     func(ctx context.Context, t *storage.MagicToken) (*storage.MagicToken, error)
	GetMagicTokenByValueFunc func(ctx context.Context, value string) (*storage.MagicToken, error)
	SetMagicTokenExpiryFunc  func(ctx context.Context, id int64, expiresAt, updatedAt time.Time) error

	// Principal operations
	CreatePrincipalFunc func(ctx context.Context, p *storage.Principal) (*storage.Principal, error)
	GetPrincipalFunc    func(ctx context.Context, principalType, id string) (*storage.Principal, error)
	DeletePrincipalFunc func(ctx context.Context, principalType, id string) error

	// Lifecycle
	PingFunc  func(ctx context.Context) error
	CloseFunc func() error

	mu         sync.Mutex
	nextID     int64
	tokens     map[string]*storage.MagicToken
	principals map[principalKey]*storage.Principal
}

type principalKey struct {
	typ string
	id  string
}

// New creates an empty MockStorage.
func New() *MockStorage {
	return &MockStorage{}
}

func (m *MockStorage) init() {
	if m.tokens == nil {
		m.tokens = make(map[string]*storage.MagicToken)
	}
	if m.principals == nil {
		m.principals = make(map[principalKey]*storage.Principal)
	}
}

// CreateMagicToken stores a copy of t. Returns storage.ErrDuplicate for a taken value.
func (m *MockStorage) CreateMagicToken(ctx context.Context, t *storage.MagicToken) (*storage.MagicToken, error) {
	if m.CreateMagicTokenFunc != nil {
		return m.CreateMagicTokenFunc(ctx, t)
	}
	return m.InsertMagicToken(t)
}

// InsertMagicToken is the default CreateMagicToken behaviour, usable from overrides.
func (m *MockStorage) InsertMagicToken(t *storage.MagicToken) (*storage.MagicToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	if _, exists := m.tokens[t.Token]; exists {
		return nil, storage.ErrDuplicate
	}

	m.nextID++
	stored := copyToken(t)
	stored.ID = m.nextID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	m.tokens[stored.Token] = stored

	return copyToken(stored), nil
}

// GetMagicTokenByValue returns a copy of the stored token or storage.ErrNotFound.
func (m *MockStorage) GetMagicTokenByValue(ctx context.Context, value string) (*storage.MagicToken, error) {
	if m.GetMagicTokenByValueFunc != nil {
		return m.GetMagicTokenByValueFunc(ctx, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	t, ok := m.tokens[value]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyToken(t), nil
}

// SetMagicTokenExpiry updates the expiry of the token with the given ID.
func (m *MockStorage) SetMagicTokenExpiry(ctx context.Context, id int64, expiresAt, updatedAt time.Time) error {
	if m.SetMagicTokenExpiryFunc != nil {
		return m.SetMagicTokenExpiryFunc(ctx, id, expiresAt, updatedAt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	for _, t := range m.tokens {
		if t.ID == id {
			exp := expiresAt
			t.ExpiresAt = &exp
			t.UpdatedAt = updatedAt
			return nil
		}
	}
	return storage.ErrNotFound
}

// CreatePrincipal stores a principal. Returns storage.ErrDuplicate if it exists.
func (m *MockStorage) CreatePrincipal(ctx context.Context, p *storage.Principal) (*storage.Principal, error) {
	if m.CreatePrincipalFunc != nil {
		return m.CreatePrincipalFunc(ctx, p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	key := principalKey{typ: p.Type, id: p.ID}
	if _, exists := m.principals[key]; exists {
		return nil, storage.ErrDuplicate
	}
	stored := *p
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	m.principals[key] = &stored

	out := stored
	return &out, nil
}

// GetPrincipal returns the principal or storage.ErrNotFound.
func (m *MockStorage) GetPrincipal(ctx context.Context, principalType, id string) (*storage.Principal, error) {
	if m.GetPrincipalFunc != nil {
		return m.GetPrincipalFunc(ctx, principalType, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	p, ok := m.principals[principalKey{typ: principalType, id: id}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *p
	return &out, nil
}

// DeletePrincipal removes a principal, leaving tokens that refer to it dangling.
func (m *MockStorage) DeletePrincipal(ctx context.Context, principalType, id string) error {
	if m.DeletePrincipalFunc != nil {
		return m.DeletePrincipalFunc(ctx, principalType, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	key := principalKey{typ: principalType, id: id}
	if _, ok := m.principals[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.principals, key)
	return nil
}

// Ping checks storage connectivity.
func (m *MockStorage) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// Close closes the storage.
func (m *MockStorage) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// TokenCount returns the number of stored tokens.
func (m *MockStorage) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

func copyToken(t *storage.MagicToken) *storage.MagicToken {
	out := *t
	out.ActionScope = make(map[string][]string, len(t.ActionScope))
	for k, v := range t.ActionScope {
		out.ActionScope[k] = append([]string(nil), v...)
	}
	if t.ExpiresAt != nil {
		exp := *t.ExpiresAt
		out.ExpiresAt = &exp
	}
	return &out
}
