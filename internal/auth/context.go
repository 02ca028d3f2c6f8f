package auth

import (
	"context"

	"github.com/sipico/magic-links/internal/token"
)

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey int

const (
	// Context keys for authentication data.
	principalKey ctxKey = iota // stores *token.Principal
	strategyKey                // stores string (name of the strategy that succeeded)
	targetKey                  // stores Target
)

// Target is the {resource, action} pair a request is trying to reach.
type Target struct {
	Resource string
	Action   string
}

// PrincipalFromContext retrieves the authenticated principal from context.
// Returns nil if the request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *token.Principal {
	if v := ctx.Value(principalKey); v != nil {
		if p, ok := v.(*token.Principal); ok {
			return p
		}
	}
	return nil
}

// StrategyFromContext returns the name of the strategy that authenticated the request.
func StrategyFromContext(ctx context.Context) string {
	if v := ctx.Value(strategyKey); v != nil {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return ""
}

// TargetFromContext retrieves the request target.
func TargetFromContext(ctx context.Context) (Target, bool) {
	t, ok := ctx.Value(targetKey).(Target)
	return t, ok
}

// WithPrincipal adds the authenticated principal to the context.
func WithPrincipal(ctx context.Context, p *token.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// WithStrategy records which strategy authenticated the request.
func WithStrategy(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, strategyKey, name)
}

// WithTarget sets the request target.
func WithTarget(ctx context.Context, t Target) context.Context {
	return context.WithValue(ctx, targetKey, t)
}
