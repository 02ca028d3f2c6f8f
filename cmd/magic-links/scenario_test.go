package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sipico/magic-links/internal/admin"
	"github.com/sipico/magic-links/internal/config"
	"github.com/sipico/magic-links/internal/exchange"
)

const scenarioAccessKey = "scenario-admin-key"

const scenarioTemplates = `
templates:
  - name: test
    pattern: /test/:token
    strength: mild
    action_scope:
      bookings: show
  - name: login
    pattern: /login/:token
    strength: strong
    expiry: 15m
    action_scope:
      session: show
`

func newScenarioApp(t *testing.T) *app {
	t.Helper()

	dir := t.TempDir()
	templatesFile := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(templatesFile, []byte(scenarioTemplates), 0o600))

	hash, err := bcrypt.GenerateFromPassword([]byte(scenarioAccessKey), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		DatabasePath:     ":memory:",
		BaseURL:          "https://auth.example.com",
		CookieSecret:     strings.Repeat("k", 32),
		CookieSameSite:   "lax",
		TemplatesFile:    templatesFile,
		AdminTokenHash:   string(hash),
		TokenMaxAttempts: 10,
		PrincipalTypes:   []string{"User", "Admin::User"},
	}
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(cfg, new(slog.LevelVar), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func serve(a *app, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func adminCall(t *testing.T, a *app, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, "/admin/api"+path, bytes.NewReader(data))
	req.Header.Set(admin.AccessKeyHeader, scenarioAccessKey)
	return serve(a, req)
}

func createPrincipal(t *testing.T, a *app, principalType, id string) {
	t.Helper()
	w := adminCall(t, a, "POST", "/principals", admin.PrincipalRequest{Type: principalType, ID: id})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func issueLink(t *testing.T, a *app, tmpl, principalType, id, path string) admin.CreateLinkResponse {
	t.Helper()
	w := adminCall(t, a, "POST", "/links", admin.CreateLinkRequest{
		Template: tmpl, SubjectType: principalType, SubjectID: id, Path: path,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp admin.CreateLinkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// visit follows a magic link and returns the response and the cookie it set, if any.
func visit(t *testing.T, a *app, link string) (*httptest.ResponseRecorder, *http.Cookie) {
	t.Helper()
	w := serve(a, httptest.NewRequest("GET", link, nil))
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		return w, nil
	}
	require.Len(t, cookies, 1)
	return w, cookies[0]
}

func withCookie(method, path string, c *http.Cookie) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if c != nil {
		req.AddCookie(c)
	}
	return req
}

func TestMagicLinkLifecycle(t *testing.T) {
	a := newScenarioApp(t)
	createPrincipal(t, a, "User", "1")

	// Issuing through the "test" template yields /test/<token> for /bookings/1.
	resp := issueLink(t, a, "test", "User", "1", "/bookings/1")
	require.Regexp(t, regexp.MustCompile(`^/test/[A-Za-z0-9_\-]{8}$`), resp.Link)
	assert.Equal(t, "https://auth.example.com"+resp.Link, resp.URL)
	assert.Nil(t, resp.ExpiresAt)

	value := strings.TrimPrefix(resp.Link, "/test/")
	stored, err := a.tokens.FindByValue(t.Context(), value)
	require.NoError(t, err)
	assert.Equal(t, "/bookings/1", stored.TargetPath)

	// Visiting the link redirects to the target and sets the signed cookie.
	w, c := visit(t, a, resp.Link)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/bookings/1", w.Header().Get("Location"))
	assert.Contains(t, w.Body.String(), `You are being redirected <a href="/bookings/1">`)
	require.NotNil(t, c, "expected a magic token cookie")
	assert.Equal(t, "user_magic_token", c.Name)
	got, ok := a.jar.Verify(c.Name, c.Value)
	require.True(t, ok, "cookie signature must verify")
	assert.Equal(t, value, got)

	// The cookie authenticates only what the scope permits.
	w = serve(a, withCookie("GET", "/bookings/1", c))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "User", body["principal_type"])
	assert.Equal(t, "1", body["principal_id"])
	assert.Equal(t, "show", body["action"])

	assert.Equal(t, http.StatusUnauthorized, serve(a, withCookie("DELETE", "/bookings/1", c)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(a, withCookie("GET", "/mechanics/1", c)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(a, withCookie("GET", "/me", c)).Code)

	// The link stays usable until it expires.
	w, c2 := visit(t, a, resp.Link)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.NotNil(t, c2)
}

func TestUnknownMagicLinkFallsBack(t *testing.T) {
	a := newScenarioApp(t)

	w, c := visit(t, a, "/test/unknown1")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, exchange.FallbackPath, w.Header().Get("Location"))
	assert.Contains(t, w.Body.String(), exchange.FallbackDescription)
	assert.Nil(t, c, "no cookie for unknown tokens")
}

func TestPathsOutsideTemplatesPassThrough(t *testing.T) {
	a := newScenarioApp(t)

	w := serve(a, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(a, httptest.NewRequest("GET", "/test/has/too/many/segments", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(a, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNamespacedPrincipalLogin(t *testing.T) {
	a := newScenarioApp(t)
	createPrincipal(t, a, "Admin::User", "7")
	createPrincipal(t, a, "User", "7")

	resp := issueLink(t, a, "login", "Admin::User", "7", "/me")
	assert.Len(t, strings.TrimPrefix(resp.Link, "/login/"), 32)
	require.NotNil(t, resp.ExpiresAt)

	_, c := visit(t, a, resp.Link)
	require.NotNil(t, c)
	assert.Equal(t, "admin_user_magic_token", c.Name)

	w := serve(a, withCookie("GET", "/me", c))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "Admin::User", me["type"])
	assert.Equal(t, "7", me["id"])
	assert.Equal(t, "magic_token:admin_user", me["strategy"])

	// A user_magic_token cookie carrying the admin's token is not trusted: the
	// signature binds the value to its cookie name.
	forged := &http.Cookie{Name: "user_magic_token", Value: c.Value}
	assert.Equal(t, http.StatusUnauthorized, serve(a, withCookie("GET", "/me", forged)).Code)
}

func TestDeletedPrincipalStopsAuthenticating(t *testing.T) {
	a := newScenarioApp(t)
	createPrincipal(t, a, "User", "1")

	resp := issueLink(t, a, "test", "User", "1", "/bookings/1")
	_, c := visit(t, a, resp.Link)
	require.NotNil(t, c)
	require.Equal(t, http.StatusOK, serve(a, withCookie("GET", "/bookings/1", c)).Code)

	w := adminCall(t, a, "DELETE", "/principals/User/1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusUnauthorized, serve(a, withCookie("GET", "/bookings/1", c)).Code)

	// The link still redirects, but without a cookie.
	w, c = visit(t, a, resp.Link)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/bookings/1", w.Header().Get("Location"))
	assert.Nil(t, c)
}

func TestTamperedCookieIsIgnored(t *testing.T) {
	a := newScenarioApp(t)
	createPrincipal(t, a, "User", "1")
	resp := issueLink(t, a, "test", "User", "1", "/bookings/1")

	raw := &http.Cookie{Name: "user_magic_token", Value: strings.TrimPrefix(resp.Link, "/test/")}
	assert.Equal(t, http.StatusUnauthorized, serve(a, withCookie("GET", "/bookings/1", raw)).Code)
}

func TestAdminAPIRequiresKey(t *testing.T) {
	a := newScenarioApp(t)

	req := httptest.NewRequest("GET", "/admin/api/templates", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(a, req).Code)

	w := adminCall(t, a, "GET", "/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var templates []admin.TemplateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &templates))
	require.Len(t, templates, 2)
	assert.Equal(t, "test", templates[0].Name)
}
