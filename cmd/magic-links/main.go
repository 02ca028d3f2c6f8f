// Package main provides the entry point for the magic-link server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sipico/magic-links/internal/admin"
	"github.com/sipico/magic-links/internal/auth"
	"github.com/sipico/magic-links/internal/config"
	"github.com/sipico/magic-links/internal/cookie"
	"github.com/sipico/magic-links/internal/exchange"
	"github.com/sipico/magic-links/internal/links"
	"github.com/sipico/magic-links/internal/logging"
	"github.com/sipico/magic-links/internal/metrics"
	"github.com/sipico/magic-links/internal/middleware"
	"github.com/sipico/magic-links/internal/storage"
	"github.com/sipico/magic-links/internal/template"
	"github.com/sipico/magic-links/internal/token"
)

const version = "0.1.0"

const shutdownTimeout = 10 * time.Second

// logBodyAllowlist lists the JSON fields logged verbatim in debug request logs.
var logBodyAllowlist = []string{"template", "subject_type", "subject_id", "path", "expiry", "type", "id", "name", "level", "error", "message"}

// app holds the wired components of a running server.
type app struct {
	storage   *storage.SQLiteStorage
	templates *template.Registry
	tokens    *token.Store
	jar       *cookie.SignedJar
	links     *links.Generator
	chain     *auth.Chain
	router    chi.Router
}

// newApp opens storage, loads templates and builds the HTTP router.
func newApp(cfg *config.Config, logLevel *slog.LevelVar, logger *slog.Logger) (*app, error) {
	baseURL, err := cfg.ParsedBaseURL()
	if err != nil {
		return nil, err
	}

	registry := template.NewRegistry()
	if err := registry.LoadFile(cfg.TemplatesFile); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	jar, err := cookie.NewSignedJar([]byte(cfg.CookieSecret), cookie.Options{
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		SameSite: cookie.ParseSameSite(cfg.CookieSameSite),
	})
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	tokens := token.NewStore(store,
		token.WithMaxAttempts(cfg.TokenMaxAttempts),
		token.WithLogger(logger))

	strategies := make([]auth.Strategy, 0, len(cfg.PrincipalTypes))
	for _, principalType := range cfg.PrincipalTypes {
		strategies = append(strategies, auth.NewMagicTokenStrategy(principalType, tokens, jar))
	}

	a := &app{
		storage:   store,
		templates: registry,
		tokens:    tokens,
		jar:       jar,
		links:     links.NewGenerator(registry, tokens, baseURL, logger),
		chain:     auth.NewChain(logger, strategies...),
	}

	adminHandler := admin.NewHandler(store, a.links, registry, cfg.AdminTokenHash, logLevel, logger)
	a.router = a.newRouter(adminHandler, logger)

	logger.Info("magic-link server configured",
		"templates", registry.Len(),
		"principal_types", strings.Join(cfg.PrincipalTypes, ","),
		"base_url", cfg.BaseURL)

	return a, nil
}

// newRouter builds the public router. Magic link paths are consumed by the
// exchange middleware before routing.
func (a *app) newRouter(adminHandler *admin.Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.HTTPLogging(logger, logBodyAllowlist, a.maskMagicPath))
	r.Use(metrics.NewMiddleware(a.metricsPath))
	r.Use(chimw.Recoverer)
	r.Use(exchange.Middleware(a.templates, a.tokens, a.jar, logger))

	r.Get("/", handleHome)
	r.Get("/health", adminHandler.HandleHealth)
	r.Get("/ready", adminHandler.HandleReady)

	authn := auth.Middleware(a.chain, logger)

	r.With(auth.RequireTarget("session", "show"), authn, auth.RequirePrincipal).
		Get("/me", handleMe)

	resource := r.With(resourceTarget, authn, auth.RequirePrincipal)
	resource.Get("/{resource}/{id}", handleResource)
	resource.Put("/{resource}/{id}", handleResource)
	resource.Patch("/{resource}/{id}", handleResource)
	resource.Delete("/{resource}/{id}", handleResource)

	r.Mount("/admin", adminHandler.NewRouter())

	return r
}

// maskMagicPath hides the token in magic link paths before they are logged.
func (a *app) maskMagicPath(path string) string {
	if value, ok := a.templates.TokenFor(path); ok {
		return logging.MaskPathToken(path, value)
	}
	return path
}

// metricsPath labels magic link requests with their template pattern.
func (a *app) metricsPath(path string) (string, bool) {
	if t, ok := a.templates.TemplateFor(path); ok {
		return t.Pattern, true
	}
	return "", false
}

// Close releases the storage.
func (a *app) Close() error {
	return a.storage.Close()
}

// methodActions maps HTTP methods to the action names used in token scopes.
var methodActions = map[string]string{
	http.MethodGet:    "show",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "destroy",
}

// resourceTarget sets the auth target from the {resource} URL parameter and the method.
func resourceTarget(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := auth.Target{
			Resource: chi.URLParam(r, "resource"),
			Action:   methodActions[r.Method],
		}
		next.ServeHTTP(w, r.WithContext(auth.WithTarget(r.Context(), target)))
	})
}

func handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "magic-links",
		"version": version,
	})
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"type":     p.Type,
		"id":       p.ID,
		"name":     p.Name,
		"strategy": auth.StrategyFromContext(r.Context()),
	})
}

func handleResource(w http.ResponseWriter, r *http.Request) {
	target, _ := auth.TargetFromContext(r.Context())
	p := auth.PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"resource":       target.Resource,
		"action":         target.Action,
		"id":             chi.URLParam(r, "id"),
		"principal_type": p.Type,
		"principal_id":   p.ID,
	})
}

// parseLogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newMetricsServer serves Prometheus metrics on their own listener.
func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// runHealthCheck performs an HTTP health check against the local server.
// Returns 0 on success, 1 on failure. Used by container HEALTHCHECK.
func runHealthCheck(listenAddr string) int {
	host := listenAddr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return doHealthCheck("http://" + host + "/health")
}

// doHealthCheck performs the actual health check HTTP request.
func doHealthCheck(url string) int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return 1
	}
	//nolint:errcheck // Response body close errors are unrecoverable in health check
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, logLevel *slog.LevelVar, logger *slog.Logger) error {
	if err := metrics.Init(prometheus.DefaultRegisterer, version); err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}

	a, err := newApp(cfg, logLevel, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := newMetricsServer(cfg.MetricsListenAddr)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsListenAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		logger.Info("magic-links listening", "addr", cfg.ListenAddr, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	//nolint:errcheck // Metrics listener errors on shutdown are not actionable
	metricsServer.Shutdown(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

func main() {
	// Handle health check subcommand for distroless container health checks
	if len(os.Args) > 1 && os.Args[1] == "health" {
		cfg, err := config.Load()
		if err != nil {
			os.Exit(1)
		}
		os.Exit(runHealthCheck(cfg.ListenAddr))
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLogLevel(cfg.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logLevel, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(v)
}
