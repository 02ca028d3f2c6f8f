package template

import (
	"sync"
	"time"

	"github.com/sipico/magic-links/internal/token"
)

// Registry holds templates by name, in registration order.
// Registration is expected at startup; reads are safe from any goroutine.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]*Template
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Template)}
}

// Register validates and stores a template. Re-registering a name replaces the
// existing entry but keeps its position in the match order.
func (r *Registry) Register(name, pattern string, scope token.ActionScope, strength token.Strength, expiry time.Duration) (*Template, error) {
	t, err := New(name, pattern, scope, strength, expiry)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = t

	return t, nil
}

// Find returns the template registered under name.
func (r *Registry) Find(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Templates returns all templates in registration order.
func (r *Registry) Templates() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Template, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// TemplateFor returns the first registered template matching path.
func (r *Registry) TemplateFor(path string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if t := r.byName[name]; t.Match(path) {
			return t, true
		}
	}
	return nil, false
}

// Match reports whether any template matches path.
func (r *Registry) Match(path string) bool {
	_, ok := r.TemplateFor(path)
	return ok
}

// TokenFor extracts the token value from path using the first matching template.
func (r *Registry) TokenFor(path string) (string, bool) {
	t, ok := r.TemplateFor(path)
	if !ok {
		return "", false
	}
	return t.TokenValue(path)
}
