// Package template defines magic-link templates: named URL patterns carrying a
// permission scope, a token strength and a default expiry.
package template

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sipico/magic-links/internal/token"
)

// Placeholder is the pattern segment replaced by the token value.
const Placeholder = ":token"

var (
	// ErrInvalidPattern is returned for patterns not of the form /<segment>/:token.
	ErrInvalidPattern = errors.New("template: invalid pattern")
	// ErrInvalidScope is returned when the action scope is empty or malformed.
	ErrInvalidScope = errors.New("template: invalid action scope")
	// ErrNoBaseURL is returned by IssueURL when no base URL is configured.
	ErrNoBaseURL = errors.New("template: base URL not configured")
)

var patternRegex = regexp.MustCompile(`^/([A-Za-z0-9_\-]+)/(` + Placeholder + `)$`)

// Template is a registered magic-link shape. It is immutable once created.
type Template struct {
	Name        string
	Pattern     string
	ActionScope token.ActionScope
	Strength    token.Strength
	Expiry      time.Duration

	matcher *regexp.Regexp
}

// New validates the pattern and scope and compiles the path matcher.
// An empty strength means moderate; a zero expiry means issued tokens never expire
// unless the caller passes an override.
func New(name, pattern string, scope token.ActionScope, strength token.Strength, expiry time.Duration) (*Template, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("template: name required")
	}

	m := patternRegex.FindStringSubmatch(pattern)
	if m == nil {
		return nil, fmt.Errorf("%w: %q must look like /segment/%s", ErrInvalidPattern, pattern, Placeholder)
	}

	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScope, err)
	}

	strength = strength.OrDefault()
	if !strength.Valid() {
		return nil, fmt.Errorf("template %q: unknown strength %q", name, string(strength))
	}
	if expiry < 0 {
		return nil, fmt.Errorf("template %q: negative expiry %s", name, expiry)
	}

	return &Template{
		Name:        name,
		Pattern:     pattern,
		ActionScope: scope.Clone(),
		Strength:    strength,
		Expiry:      expiry,
		matcher:     regexp.MustCompile(`^/` + regexp.QuoteMeta(m[1]) + `/([A-Za-z0-9_\-]+)$`),
	}, nil
}

// Match reports whether path has the shape of a link of this template.
// It says nothing about whether the token exists.
func (t *Template) Match(path string) bool {
	return t.matcher.MatchString(path)
}

// TokenValue extracts the token value from a matching path.
func (t *Template) TokenValue(path string) (string, bool) {
	m := t.matcher.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Path substitutes value for the placeholder.
func (t *Template) Path(value string) string {
	return strings.Replace(t.Pattern, Placeholder, value, 1)
}

// Link is an issued magic link.
type Link struct {
	Path  string
	Token *token.Token
}

// Issue creates a token for subject and returns the link pointing at it.
// The effective expiry is expiry when non-zero, else the template default.
func (t *Template) Issue(ctx context.Context, issuer token.Issuer, subject token.SubjectRef, targetPath string, expiry time.Duration) (*Link, error) {
	if expiry == 0 {
		expiry = t.Expiry
	}

	tok, err := issuer.Create(ctx, token.CreateParams{
		Subject:     subject,
		TargetPath:  targetPath,
		ActionScope: t.ActionScope.Clone(),
		Strength:    t.Strength,
		Expiry:      expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", t.Name, err)
	}

	return &Link{Path: t.Path(tok.Value), Token: tok}, nil
}

// IssueLink is Issue returning only the relative link.
func (t *Template) IssueLink(ctx context.Context, issuer token.Issuer, subject token.SubjectRef, targetPath string, expiry time.Duration) (string, error) {
	link, err := t.Issue(ctx, issuer, subject, targetPath, expiry)
	if err != nil {
		return "", err
	}
	return link.Path, nil
}

// IssueURL is IssueLink resolved against base.
func (t *Template) IssueURL(ctx context.Context, issuer token.Issuer, base *url.URL, subject token.SubjectRef, targetPath string, expiry time.Duration) (string, error) {
	if base == nil {
		return "", ErrNoBaseURL
	}
	path, err := t.IssueLink(ctx, issuer, subject, targetPath, expiry)
	if err != nil {
		return "", err
	}
	return ResolveURL(base, path), nil
}

// ResolveURL joins an absolute link path onto base.
func ResolveURL(base *url.URL, path string) string {
	return base.ResolveReference(&url.URL{Path: path}).String()
}
