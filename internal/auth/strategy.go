// Package auth authenticates requests with magic token cookies.
//
// A Strategy inspects a request and either succeeds with a principal, declines
// (letting another mechanism try), or fails with an error. A Chain runs several
// strategies in order and Middleware stores the winner's principal in the context.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/sipico/magic-links/internal/cookie"
	"github.com/sipico/magic-links/internal/token"
)

// Result is the kind of an authentication outcome.
type Result int

const (
	// ResultDecline means the strategy does not authenticate the request.
	ResultDecline Result = iota
	// ResultSuccess means the request is authenticated.
	ResultSuccess
	// ResultError means the strategy could not decide.
	ResultError
)

// String returns the lowercase result name used in logs and metrics.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultError:
		return "error"
	default:
		return "decline"
	}
}

// Decline reasons.
const (
	ReasonOK                   = "ok"
	ReasonNoCookie             = "no_cookie"
	ReasonTokenNotFound        = "token_not_found"
	ReasonTokenExpired         = "token_expired"
	ReasonSubjectMissing       = "subject_missing"
	ReasonWrongPrincipalType   = "wrong_principal_type"
	ReasonNoTarget             = "no_target"
	ReasonResourceNotPermitted = "resource_not_permitted"
	ReasonActionNotPermitted   = "action_not_permitted"
	ReasonStorageError         = "storage_error"
)

// Outcome is the decision of a strategy.
type Outcome struct {
	Result    Result
	Principal *token.Principal
	Reason    string
	Err       error
}

// Succeed returns a success outcome for p.
func Succeed(p *token.Principal) Outcome {
	return Outcome{Result: ResultSuccess, Principal: p, Reason: ReasonOK}
}

// Decline returns a decline outcome.
func Decline(reason string) Outcome {
	return Outcome{Result: ResultDecline, Reason: reason}
}

// Fail returns an error outcome.
func Fail(err error) Outcome {
	return Outcome{Result: ResultError, Reason: ReasonStorageError, Err: err}
}

// Strategy is one authentication mechanism.
type Strategy interface {
	Name() string
	// Applicable reports whether the request carries this strategy's credentials.
	Applicable(r *http.Request) bool
	Authenticate(r *http.Request) Outcome
}

// TokenSource is what MagicTokenStrategy needs from the token store. *token.Store implements it.
type TokenSource interface {
	FindByValue(ctx context.Context, value string) (*token.Token, error)
	IsValid(t *token.Token) bool
	ResolveSubject(ctx context.Context, t *token.Token) (*token.Principal, bool)
}

// CookieGetter reads verified signed cookies. *cookie.SignedJar implements it.
type CookieGetter interface {
	Get(r *http.Request, name string) (string, bool)
}

// MagicTokenStrategy authenticates principals of one type from the
// <scope>_magic_token cookie set by the redirect exchange.
type MagicTokenStrategy struct {
	scope         string
	principalType string
	cookieName    string
	tokens        TokenSource
	cookies       CookieGetter
}

// NewMagicTokenStrategy creates the strategy for principalType. The scope, and
// therefore the cookie name, is derived from the type: "User" reads user_magic_token.
func NewMagicTokenStrategy(principalType string, tokens TokenSource, cookies CookieGetter) *MagicTokenStrategy {
	scope := token.ScopeName(principalType)
	return &MagicTokenStrategy{
		scope:         scope,
		principalType: principalType,
		cookieName:    cookie.MagicTokenName(scope),
		tokens:        tokens,
		cookies:       cookies,
	}
}

// Name implements Strategy.
func (s *MagicTokenStrategy) Name() string {
	return "magic_token:" + s.scope
}

// Scope returns the scope identifier, e.g. "user".
func (s *MagicTokenStrategy) Scope() string {
	return s.scope
}

// PrincipalType returns the principal type this strategy authenticates.
func (s *MagicTokenStrategy) PrincipalType() string {
	return s.principalType
}

// Applicable reports whether a verified magic token cookie is present.
func (s *MagicTokenStrategy) Applicable(r *http.Request) bool {
	_, ok := s.cookies.Get(r, s.cookieName)
	return ok
}

// Authenticate checks, in order: the token exists, it is not expired, its
// subject exists and has the strategy's principal type, the request resource
// is in the token scope and the action is permitted on it.
// The token is looked up again on every call.
func (s *MagicTokenStrategy) Authenticate(r *http.Request) Outcome {
	ctx := r.Context()

	value, ok := s.cookies.Get(r, s.cookieName)
	if !ok {
		return Decline(ReasonNoCookie)
	}

	tok, err := s.tokens.FindByValue(ctx, value)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return Decline(ReasonTokenNotFound)
		}
		return Fail(err)
	}

	if !s.tokens.IsValid(tok) {
		return Decline(ReasonTokenExpired)
	}

	principal, ok := s.tokens.ResolveSubject(ctx, tok)
	if !ok {
		return Decline(ReasonSubjectMissing)
	}
	if principal.Type != s.principalType {
		return Decline(ReasonWrongPrincipalType)
	}

	target, ok := TargetFromContext(ctx)
	if !ok {
		return Decline(ReasonNoTarget)
	}
	if !tok.ActionScope.PermitsResource(target.Resource) {
		return Decline(ReasonResourceNotPermitted)
	}
	if !tok.ActionScope.Permits(target.Resource, target.Action) {
		return Decline(ReasonActionNotPermitted)
	}

	return Succeed(principal)
}

// Store reports whether a successful authentication should persist a session.
// Magic tokens never do: every request is re-authenticated from the cookie.
func (s *MagicTokenStrategy) Store() bool {
	return false
}

// CleanUpCSRF reports whether a successful authentication should reset the CSRF token.
func (s *MagicTokenStrategy) CleanUpCSRF() bool {
	return false
}
