package links

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sipico/magic-links/internal/storage"
	"github.com/sipico/magic-links/internal/template"
	"github.com/sipico/magic-links/internal/testutil/mockstore"
	"github.com/sipico/magic-links/internal/token"
)

var (
	testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	alice   = token.SubjectRef{Type: "User", ID: "1"}
)

func newTestGenerator(t *testing.T, base string) (*Generator, *token.Store, *bytes.Buffer) {
	t.Helper()

	registry := template.NewRegistry()
	if _, err := registry.Register("test", "/test/:token", token.ActionScope{"session": {"show"}}, token.Mild, time.Hour); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	repo := mockstore.New()
	if _, err := repo.CreatePrincipal(context.Background(), &storage.Principal{Type: "User", ID: "1"}); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}
	store := token.NewStore(repo, token.WithClock(func() time.Time { return testNow }))

	var baseURL *url.URL
	if base != "" {
		var err error
		baseURL, err = url.Parse(base)
		if err != nil {
			t.Fatalf("url.Parse failed: %v", err)
		}
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return NewGenerator(registry, store, baseURL, logger), store, &buf
}

func TestLinkFor(t *testing.T) {
	t.Parallel()
	gen, store, logs := newTestGenerator(t, "")
	ctx := context.Background()

	link, err := gen.LinkFor(ctx, alice, "test", "/session", 0)
	if err != nil {
		t.Fatalf("LinkFor failed: %v", err)
	}
	if !strings.HasPrefix(link, "/test/") {
		t.Fatalf("link = %q, want /test/ prefix", link)
	}

	value := strings.TrimPrefix(link, "/test/")
	if len(value) != 8 {
		t.Errorf("token length = %d, want 8 (mild)", len(value))
	}

	tok, err := store.FindByValue(ctx, value)
	if err != nil {
		t.Fatalf("FindByValue failed: %v", err)
	}
	if tok.TargetPath != "/session" || tok.Subject != alice {
		t.Errorf("unexpected token %+v", tok)
	}
	if tok.ExpiresAt == nil || !tok.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want template default", tok.ExpiresAt)
	}

	if strings.Contains(logs.String(), value) {
		t.Error("issued token leaked into logs")
	}
	if !strings.Contains(logs.String(), "magic link issued") {
		t.Error("expected issuance log entry")
	}
}

func TestLinkFor_ExpiryOverride(t *testing.T) {
	t.Parallel()
	gen, _, _ := newTestGenerator(t, "")

	link, err := gen.Issue(context.Background(), alice, "test", "/session", 5*time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if link.Token.ExpiresAt == nil || !link.Token.ExpiresAt.Equal(testNow.Add(5*time.Minute)) {
		t.Errorf("ExpiresAt = %v, want override", link.Token.ExpiresAt)
	}
}

func TestLinkFor_UnknownTemplate(t *testing.T) {
	t.Parallel()
	gen, _, _ := newTestGenerator(t, "")

	_, err := gen.LinkFor(context.Background(), alice, "nope", "/session", 0)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("error should name the template: %v", err)
	}
}

func TestLinkFor_InvalidAttributes(t *testing.T) {
	t.Parallel()
	gen, _, _ := newTestGenerator(t, "")

	_, err := gen.LinkFor(context.Background(), alice, "test", "", 0)
	if !errors.Is(err, token.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestURLFor(t *testing.T) {
	t.Parallel()
	gen, _, _ := newTestGenerator(t, "https://auth.example.com")

	u, err := gen.URLFor(context.Background(), alice, "test", "/session", 0)
	if err != nil {
		t.Fatalf("URLFor failed: %v", err)
	}
	if !strings.HasPrefix(u, "https://auth.example.com/test/") {
		t.Errorf("URLFor() = %q", u)
	}
	if got := gen.URL("/test/abc"); got != "https://auth.example.com/test/abc" {
		t.Errorf("URL() = %q", got)
	}
}

func TestURLFor_NoBaseURL(t *testing.T) {
	t.Parallel()
	gen, _, _ := newTestGenerator(t, "")

	if _, err := gen.URLFor(context.Background(), alice, "test", "/session", 0); !errors.Is(err, template.ErrNoBaseURL) {
		t.Errorf("expected ErrNoBaseURL, got %v", err)
	}
	if got := gen.URL("/test/abc"); got != "" {
		t.Errorf("URL() without base = %q, want empty", got)
	}
}
