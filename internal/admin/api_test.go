package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/magic-links/internal/storage"
	"github.com/sipico/magic-links/internal/token"
)

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), "body: %s", body)
	return v
}

func TestHandleSetLogLevel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/loglevel", SetLogLevelRequest{Level: "debug"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, slog.LevelDebug, env.logLevel.Level())

	w = env.do(t, "POST", "/api/loglevel", SetLogLevelRequest{Level: "verbose"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, slog.LevelDebug, env.logLevel.Level(), "invalid level must not change the level")
}

func TestHandleListTemplates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[[]TemplateResponse](t, w.Body.Bytes())
	require.Len(t, got, 2)

	assert.Equal(t, "booking", got[0].Name)
	assert.Equal(t, "/b/:token", got[0].Pattern)
	assert.Equal(t, "mild", got[0].Strength)
	assert.Equal(t, "24h0m0s", got[0].Expiry)
	assert.Equal(t, []string{"show", "edit"}, got[0].ActionScope["bookings"])

	assert.Equal(t, "login", got[1].Name)
	assert.Equal(t, "strong", got[1].Strength)
	assert.Empty(t, got[1].Expiry)
}

func TestHandleCreateLink(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.repo.CreatePrincipal(ctx, &storage.Principal{Type: "User", ID: "1", Name: "Ada"})
	require.NoError(t, err)

	t.Run("template default expiry", func(t *testing.T) {
		w := env.do(t, "POST", "/api/links", CreateLinkRequest{
			Template: "booking", SubjectType: "User", SubjectID: "1", Path: "/bookings/42",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[CreateLinkResponse](t, w.Body.Bytes())
		require.True(t, strings.HasPrefix(resp.Link, "/b/"), resp.Link)
		value := strings.TrimPrefix(resp.Link, "/b/")
		assert.Len(t, value, 8)
		assert.Equal(t, "https://auth.example.com"+resp.Link, resp.URL)
		require.NotNil(t, resp.ExpiresAt)
		assert.True(t, resp.ExpiresAt.Equal(env.now.Add(24*time.Hour)))

		tok, err := env.tokens.FindByValue(ctx, value)
		require.NoError(t, err)
		assert.Equal(t, "/bookings/42", tok.TargetPath)
		assert.Equal(t, token.SubjectRef{Type: "User", ID: "1"}, tok.Subject)
		assert.True(t, tok.ActionScope.Permits("bookings", "edit"))
	})

	t.Run("expiry override", func(t *testing.T) {
		w := env.do(t, "POST", "/api/links", CreateLinkRequest{
			Template: "booking", SubjectType: "User", SubjectID: "1", Path: "/bookings/42", Expiry: "30m",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[CreateLinkResponse](t, w.Body.Bytes())
		require.NotNil(t, resp.ExpiresAt)
		assert.True(t, resp.ExpiresAt.Equal(env.now.Add(30*time.Minute)))
	})

	t.Run("no expiry", func(t *testing.T) {
		w := env.do(t, "POST", "/api/links", CreateLinkRequest{
			Template: "login", SubjectType: "User", SubjectID: "1", Path: "/me",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		resp := decode[CreateLinkResponse](t, w.Body.Bytes())
		assert.Len(t, strings.TrimPrefix(resp.Link, "/login/"), 32)
		assert.Nil(t, resp.ExpiresAt)
	})
}

func TestHandleCreateLinkErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, err := env.repo.CreatePrincipal(context.Background(), &storage.Principal{Type: "User", ID: "1"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"invalid json", "not an object", http.StatusBadRequest, ErrCodeInvalidRequest},
		{"missing fields", CreateLinkRequest{Template: "booking"}, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"relative path", CreateLinkRequest{Template: "booking", SubjectType: "User", SubjectID: "1", Path: "bookings"}, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"bad expiry", CreateLinkRequest{Template: "booking", SubjectType: "User", SubjectID: "1", Path: "/b", Expiry: "soon"}, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"negative expiry", CreateLinkRequest{Template: "booking", SubjectType: "User", SubjectID: "1", Path: "/b", Expiry: "-1h"}, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"unknown subject", CreateLinkRequest{Template: "booking", SubjectType: "User", SubjectID: "404", Path: "/b"}, http.StatusUnprocessableEntity, ErrCodeSubjectNotFound},
		{"unknown template", CreateLinkRequest{Template: "nope", SubjectType: "User", SubjectID: "1", Path: "/b"}, http.StatusNotFound, ErrCodeTemplateNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/links", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decode[APIError](t, w.Body.Bytes()).Error)
		})
	}
	assert.Equal(t, 0, env.repo.TokenCount(), "no token may be stored for rejected requests")
}

func TestHandleCreateLinkStorageError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.repo.GetPrincipalFunc = func(ctx context.Context, principalType, id string) (*storage.Principal, error) {
		return nil, errors.New("database is locked")
	}

	w := env.do(t, "POST", "/api/links", CreateLinkRequest{
		Template: "booking", SubjectType: "User", SubjectID: "1", Path: "/bookings/1",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrCodeInternalError, decode[APIError](t, w.Body.Bytes()).Error)
}

func TestPrincipalEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/principals", PrincipalRequest{Type: "Admin::User", ID: "7", Name: "Root"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[PrincipalResponse](t, w.Body.Bytes())
	assert.Equal(t, "Admin::User", created.Type)
	assert.Equal(t, "Root", created.Name)

	w = env.do(t, "POST", "/api/principals", PrincipalRequest{Type: "Admin::User", ID: "7"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/api/principals", PrincipalRequest{Type: "User"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/api/principals/Admin::User/7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7", decode[PrincipalResponse](t, w.Body.Bytes()).ID)

	w = env.do(t, "DELETE", "/api/principals/Admin::User/7", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "GET", "/api/principals/Admin::User/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "DELETE", "/api/principals/Admin::User/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
