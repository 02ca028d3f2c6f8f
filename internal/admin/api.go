package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/magic-links/internal/links"
	"github.com/sipico/magic-links/internal/logging"
	"github.com/sipico/magic-links/internal/storage"
	"github.com/sipico/magic-links/internal/token"
)

// SetLogLevelRequest is the request body for POST /api/loglevel
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// HandleSetLogLevel changes runtime log level
// POST /api/loglevel
// Body: {"level": "debug|info|warn|error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}

	var level slog.Level
	switch req.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"Invalid level", "Use one of: debug, info, warn, error")
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "new_level", req.Level)

	writeJSON(w, http.StatusOK, map[string]string{"level": req.Level})
}

// TemplateResponse describes a registered link template.
type TemplateResponse struct {
	Name        string              `json:"name"`
	Pattern     string              `json:"pattern"`
	Strength    string              `json:"strength"`
	Expiry      string              `json:"expiry,omitempty"`
	ActionScope map[string][]string `json:"action_scope"`
}

// HandleListTemplates returns the registered templates in registration order
// GET /api/templates
func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	response := make([]TemplateResponse, 0, h.templateCount())
	if h.templates != nil {
		for _, t := range h.templates.Templates() {
			tr := TemplateResponse{
				Name:        t.Name,
				Pattern:     t.Pattern,
				Strength:    t.Strength.String(),
				ActionScope: make(map[string][]string, len(t.ActionScope)),
			}
			if t.Expiry > 0 {
				tr.Expiry = t.Expiry.String()
			}
			for resource, actions := range t.ActionScope {
				tr.ActionScope[resource] = []string(actions)
			}
			response = append(response, tr)
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) templateCount() int {
	if h.templates == nil {
		return 0
	}
	return len(h.templates.Templates())
}

// CreateLinkRequest is the request body for POST /api/links
type CreateLinkRequest struct {
	Template    string `json:"template"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	Path        string `json:"path"`
	Expiry      string `json:"expiry,omitempty"` // Go duration, overrides the template default
}

// CreateLinkResponse carries the issued link. The link embeds the token value.
type CreateLinkResponse struct {
	Template  string     `json:"template"`
	Link      string     `json:"link"`
	URL       string     `json:"url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// HandleCreateLink issues a magic link for an existing principal
// POST /api/links
func (h *Handler) HandleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}

	if req.Template == "" || req.SubjectType == "" || req.SubjectID == "" || req.Path == "" {
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"template, subject_type, subject_id and path are required", "")
		return
	}
	if !strings.HasPrefix(req.Path, "/") {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "path must be absolute")
		return
	}

	var expiry time.Duration
	if req.Expiry != "" {
		d, err := time.ParseDuration(req.Expiry)
		if err != nil || d <= 0 {
			WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
				"Invalid expiry", "Use a positive Go duration such as 30m or 24h")
			return
		}
		expiry = d
	}

	ctx := r.Context()

	if _, err := h.storage.GetPrincipal(ctx, req.SubjectType, req.SubjectID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusUnprocessableEntity, ErrCodeSubjectNotFound, "Subject does not exist")
			return
		}
		h.logger.Error("failed to look up link subject", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to issue link")
		return
	}

	subject := token.SubjectRef{Type: req.SubjectType, ID: req.SubjectID}
	link, err := h.links.Issue(ctx, subject, req.Template, req.Path, expiry)
	if err != nil {
		switch {
		case errors.Is(err, links.ErrTemplateNotFound):
			WriteError(w, http.StatusNotFound, ErrCodeTemplateNotFound, "Template not found")
		case errors.Is(err, token.ErrInvalidToken):
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		default:
			h.logger.Error("failed to issue link", "template", req.Template, "error", err)
			WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to issue link")
		}
		return
	}

	h.logger.Debug("admin issued link", "template", req.Template, "link", logging.MaskPathToken(link.Path, link.Token.Value))

	writeJSON(w, http.StatusCreated, CreateLinkResponse{
		Template:  req.Template,
		Link:      link.Path,
		URL:       h.links.URL(link.Path),
		ExpiresAt: link.Token.ExpiresAt,
	})
}

// PrincipalRequest is the request body for POST /api/principals
type PrincipalRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PrincipalResponse represents a principal in API responses
type PrincipalResponse struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func principalResponse(p *storage.Principal) PrincipalResponse {
	return PrincipalResponse{Type: p.Type, ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt}
}

// HandleCreatePrincipal stores a principal links can be issued for
// POST /api/principals
func (h *Handler) HandleCreatePrincipal(w http.ResponseWriter, r *http.Request) {
	var req PrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}
	if req.Type == "" || req.ID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "type and id are required")
		return
	}

	p, err := h.storage.CreatePrincipal(r.Context(), &storage.Principal{Type: req.Type, ID: req.ID, Name: req.Name})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			WriteError(w, http.StatusConflict, ErrCodeConflict, "Principal already exists")
			return
		}
		h.logger.Error("failed to create principal", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to create principal")
		return
	}

	writeJSON(w, http.StatusCreated, principalResponse(p))
}

// HandleGetPrincipal returns one principal
// GET /api/principals/{type}/{id}
func (h *Handler) HandleGetPrincipal(w http.ResponseWriter, r *http.Request) {
	p, err := h.storage.GetPrincipal(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Principal not found")
			return
		}
		h.logger.Error("failed to get principal", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to get principal")
		return
	}

	writeJSON(w, http.StatusOK, principalResponse(p))
}

// HandleDeletePrincipal deletes a principal. Links already issued for it stop
// authenticating but are not removed.
// DELETE /api/principals/{type}/{id}
func (h *Handler) HandleDeletePrincipal(w http.ResponseWriter, r *http.Request) {
	err := h.storage.DeletePrincipal(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Principal not found")
			return
		}
		h.logger.Error("failed to delete principal", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to delete principal")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
