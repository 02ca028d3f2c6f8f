// Package exchange turns magic link visits into a signed cookie and a redirect
// to the token's target path.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/sipico/magic-links/internal/cookie"
	"github.com/sipico/magic-links/internal/logging"
	"github.com/sipico/magic-links/internal/metrics"
	"github.com/sipico/magic-links/internal/middleware"
	"github.com/sipico/magic-links/internal/token"
)

// FallbackPath is where visitors of unknown links are sent.
const FallbackPath = "/"

// FallbackDescription is the link text of the fallback redirect body.
const FallbackDescription = "to the home page (token not found)"

// Outcomes recorded in metrics.
const (
	OutcomePassthrough = "passthrough"
	OutcomeFallback    = "fallback"
	OutcomeRedirect    = "redirect"
)

// Matcher extracts token values from magic link paths. *template.Registry implements it.
type Matcher interface {
	TokenFor(path string) (string, bool)
}

// Tokens looks up tokens and the scope of their subject. *token.Store implements it.
type Tokens interface {
	FindByValue(ctx context.Context, value string) (*token.Token, error)
	Scope(ctx context.Context, t *token.Token) (string, bool)
}

// CookieSetter writes signed cookies. *cookie.SignedJar implements it.
type CookieSetter interface {
	Set(w http.ResponseWriter, name, value string)
}

// Middleware intercepts requests whose path matches a template.
//
//   - No template matches: the request goes to next untouched.
//   - No token has the value: 302 to FallbackPath, no cookie.
//   - Otherwise: the signed cookie <scope>_magic_token is set when the subject
//     still exists, and the response is a 302 to the token's target path.
//
// Expiry is not checked here. An expired token still redirects and its cookie is
// declined by the authentication strategy.
func Middleware(matcher Matcher, tokens Tokens, cookies CookieSetter, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value, ok := matcher.TokenFor(r.URL.Path)
			if !ok {
				metrics.RecordExchange(OutcomePassthrough)
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			log := middleware.Logger(ctx, logger)
			tok, err := tokens.FindByValue(ctx, value)
			if err != nil {
				if !errors.Is(err, token.ErrNotFound) {
					log.Error("magic token lookup failed", "token", logging.MaskToken(value), "error", err)
				} else {
					log.Debug("magic token not found", "token", logging.MaskToken(value))
				}
				metrics.RecordExchange(OutcomeFallback)
				Redirect(w, FallbackPath, FallbackDescription)
				return
			}

			if scope, ok := tokens.Scope(ctx, tok); ok {
				cookies.Set(w, cookie.MagicTokenName(scope), tok.Value)
			} else {
				log.Warn("magic token subject missing, redirecting without cookie",
					"token_id", tok.ID, "subject", tok.Subject.String())
			}

			metrics.RecordExchange(OutcomeRedirect)
			log.Debug("magic token exchanged",
				"token_id", tok.ID,
				"target_path", tok.TargetPath)
			Redirect(w, tok.TargetPath, "")
		})
	}
}

// Redirect writes a 302 to path with a short HTML body linking to it.
// desc is the link text; it defaults to the path.
func Redirect(w http.ResponseWriter, path, desc string) {
	if desc == "" {
		desc = path
	}
	w.Header().Set("Location", path)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusFound)
	_, _ = fmt.Fprintf(w, `You are being redirected <a href="%s">%s</a>`, html.EscapeString(path), html.EscapeString(desc)) //nolint:errcheck
}
