// Package links issues magic links from registered templates.
package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/sipico/magic-links/internal/logging"
	"github.com/sipico/magic-links/internal/metrics"
	"github.com/sipico/magic-links/internal/template"
	"github.com/sipico/magic-links/internal/token"
)

// ErrTemplateNotFound is returned when no template is registered under the requested name.
var ErrTemplateNotFound = errors.New("links: template not found")

// Generator issues links for named templates.
type Generator struct {
	templates *template.Registry
	issuer    token.Issuer
	baseURL   *url.URL
	logger    *slog.Logger
}

// NewGenerator creates a Generator. baseURL may be nil, in which case URLFor fails
// with template.ErrNoBaseURL.
func NewGenerator(templates *template.Registry, issuer token.Issuer, baseURL *url.URL, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		templates: templates,
		issuer:    issuer,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// Issue creates a token for subject through the named template.
// expiry overrides the template default when non-zero.
func (g *Generator) Issue(ctx context.Context, subject token.SubjectRef, templateName, targetPath string, expiry time.Duration) (*template.Link, error) {
	tmpl, ok := g.templates.Find(templateName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, templateName)
	}

	link, err := tmpl.Issue(ctx, g.issuer, subject, targetPath, expiry)
	if err != nil {
		return nil, err
	}

	metrics.RecordLinkIssued(tmpl.Name)
	g.logger.Info("magic link issued",
		"template", tmpl.Name,
		"subject", subject.String(),
		"target_path", targetPath,
		"token", logging.MaskToken(link.Token.Value),
		"expires_at", link.Token.ExpiresAt)

	return link, nil
}

// LinkFor issues a token and returns the relative link, e.g. "/login/AbCd1234".
func (g *Generator) LinkFor(ctx context.Context, subject token.SubjectRef, templateName, targetPath string, expiry time.Duration) (string, error) {
	link, err := g.Issue(ctx, subject, templateName, targetPath, expiry)
	if err != nil {
		return "", err
	}
	return link.Path, nil
}

// URLFor is LinkFor resolved against the configured base URL.
func (g *Generator) URLFor(ctx context.Context, subject token.SubjectRef, templateName, targetPath string, expiry time.Duration) (string, error) {
	if g.baseURL == nil {
		return "", template.ErrNoBaseURL
	}
	path, err := g.LinkFor(ctx, subject, templateName, targetPath, expiry)
	if err != nil {
		return "", err
	}
	return template.ResolveURL(g.baseURL, path), nil
}

// URL resolves an already issued link path against the base URL.
// It returns "" without a base URL.
func (g *Generator) URL(path string) string {
	if g.baseURL == nil {
		return ""
	}
	return template.ResolveURL(g.baseURL, path)
}
