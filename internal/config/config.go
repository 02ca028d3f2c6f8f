// Package config provides configuration loading and validation from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sipico/magic-links/internal/cookie"
	"github.com/sipico/magic-links/internal/token"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string   // debug, info, warn, error
	ListenAddr        string   // Server listen address (e.g., ":8080")
	DatabasePath      string   // SQLite database path
	MetricsListenAddr string   // Metrics listener address (e.g., "localhost:9090")
	BaseURL           string   // Optional: absolute URL links are resolved against
	CookieSecret      string   // Required: HMAC key for signed cookies, at least 32 bytes
	CookieSecure      bool     // Set the Secure attribute on cookies
	CookieDomain      string   // Optional: cookie Domain attribute
	CookieSameSite    string   // lax, strict, none
	TemplatesFile     string   // Required: YAML file with link templates
	AdminTokenHash    string   // Required: bcrypt hash of the admin API access key
	TokenMaxAttempts  int      // Cap on token value regeneration after collisions
	PrincipalTypes    []string // Principal types authenticated by magic token cookies
}

// Load parses configuration from environment variables.
// Optional settings have defaults; malformed numbers and booleans are errors.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          getenv("LOG_LEVEL", "info"),
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		DatabasePath:      getenv("DATABASE_PATH", "/data/magic-links.db"),
		MetricsListenAddr: getenv("METRICS_LISTEN_ADDR", "localhost:9090"),
		BaseURL:           os.Getenv("BASE_URL"),
		CookieSecret:      os.Getenv("COOKIE_SECRET"),
		CookieDomain:      os.Getenv("COOKIE_DOMAIN"),
		CookieSameSite:    getenv("COOKIE_SAMESITE", "lax"),
		TemplatesFile:     os.Getenv("TEMPLATES_FILE"),
		AdminTokenHash:    os.Getenv("ADMIN_TOKEN_HASH"),
		CookieSecure:      true,
		TokenMaxAttempts:  token.DefaultMaxAttempts,
		PrincipalTypes:    []string{"User"},
	}

	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COOKIE_SECURE %q: %w", v, err)
		}
		cfg.CookieSecure = secure
	}

	if v := os.Getenv("TOKEN_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_MAX_ATTEMPTS %q: %w", v, err)
		}
		cfg.TokenMaxAttempts = n
	}

	if v := os.Getenv("PRINCIPAL_TYPES"); v != "" {
		var types []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		cfg.PrincipalTypes = types
	}

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if c.CookieSecret == "" {
		return fmt.Errorf("COOKIE_SECRET environment variable is required")
	}
	if len(c.CookieSecret) < cookie.MinSecretLength {
		return fmt.Errorf("COOKIE_SECRET must be at least %d bytes", cookie.MinSecretLength)
	}
	if c.AdminTokenHash == "" {
		return fmt.Errorf("ADMIN_TOKEN_HASH environment variable is required")
	}
	if _, err := bcrypt.Cost([]byte(c.AdminTokenHash)); err != nil {
		return fmt.Errorf("ADMIN_TOKEN_HASH is not a bcrypt hash: %w", err)
	}
	if c.TemplatesFile == "" {
		return fmt.Errorf("TEMPLATES_FILE environment variable is required")
	}
	if c.TokenMaxAttempts < 1 {
		return fmt.Errorf("TOKEN_MAX_ATTEMPTS must be at least 1, got %d", c.TokenMaxAttempts)
	}
	if len(c.PrincipalTypes) == 0 {
		return fmt.Errorf("PRINCIPAL_TYPES must name at least one principal type")
	}
	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("COOKIE_SAMESITE must be lax, strict or none, got %q", c.CookieSameSite)
	}
	if _, err := c.ParsedBaseURL(); err != nil {
		return err
	}
	return nil
}

// ParsedBaseURL returns BASE_URL as a URL, or nil when unset.
func (c *Config) ParsedBaseURL() (*url.URL, error) {
	if c.BaseURL == "" {
		return nil, nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BASE_URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	return u, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
