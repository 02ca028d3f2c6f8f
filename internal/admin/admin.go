// Package admin provides the administration API of the magic-link server:
// health probes, link issuing, principal records and runtime log level.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/sipico/magic-links/internal/storage"
	"github.com/sipico/magic-links/internal/template"
	"github.com/sipico/magic-links/internal/token"
)

// Storage is the persistence the admin API needs.
type Storage interface {
	Ping(ctx context.Context) error
	CreatePrincipal(ctx context.Context, p *storage.Principal) (*storage.Principal, error)
	GetPrincipal(ctx context.Context, principalType, id string) (*storage.Principal, error)
	DeletePrincipal(ctx context.Context, principalType, id string) error
}

// LinkIssuer issues magic links by template name.
type LinkIssuer interface {
	Issue(ctx context.Context, subject token.SubjectRef, templateName, targetPath string, expiry time.Duration) (*template.Link, error)
	URL(path string) string
}

// TemplateLister lists the registered link templates.
type TemplateLister interface {
	Templates() []*template.Template
}

// Handler provides admin endpoints
type Handler struct {
	storage   Storage
	links     LinkIssuer
	templates TemplateLister
	keyHash   []byte
	logger    *slog.Logger
	logLevel  *slog.LevelVar
}

// NewHandler creates an admin handler. adminKeyHash is the bcrypt hash of the
// AccessKey accepted on /api routes; an empty hash rejects every request.
func NewHandler(storage Storage, links LinkIssuer, templates TemplateLister, adminKeyHash string, logLevel *slog.LevelVar, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if logLevel == nil {
		logLevel = new(slog.LevelVar)
	}

	return &Handler{
		storage:   storage,
		links:     links,
		templates: templates,
		keyHash:   []byte(adminKeyHash),
		logLevel:  logLevel,
		logger:    logger,
	}
}
