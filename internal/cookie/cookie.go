// Package cookie implements tamper-evident cookies signed with HMAC-SHA256.
package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// MinSecretLength is the minimum signing secret length in bytes.
const MinSecretLength = 32

// MagicTokenSuffix is appended to a scope to name its magic token cookie.
const MagicTokenSuffix = "_magic_token"

// ErrSecretTooShort is returned by NewSignedJar for secrets under MinSecretLength bytes.
var ErrSecretTooShort = errors.New("cookie: secret must be at least 32 bytes")

// MagicTokenName returns the cookie name carrying magic tokens for scope, e.g. "user_magic_token".
func MagicTokenName(scope string) string {
	return scope + MagicTokenSuffix
}

// Options are the attributes set on every cookie.
type Options struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// ParseSameSite maps "strict", "none" and "lax" to http.SameSite; anything else is lax.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "none":
		return http.SameSiteNoneMode
	case "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteLaxMode
	}
}

// SignedJar reads and writes signed cookies.
// The signature covers the cookie name, so a value cannot be moved to another cookie.
type SignedJar struct {
	secret []byte
	opts   Options
}

// NewSignedJar creates a SignedJar. A zero SameSite means lax.
func NewSignedJar(secret []byte, opts Options) (*SignedJar, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &SignedJar{secret: append([]byte(nil), secret...), opts: opts}, nil
}

// Sign encodes value for cookie name as base64url(value).base64url(mac).
func (j *SignedJar) Sign(name, value string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(value))
	return encoded + "." + base64.RawURLEncoding.EncodeToString(j.mac(name, encoded))
}

// Verify checks raw against name and returns the original value.
func (j *SignedJar) Verify(name, raw string) (string, bool) {
	encoded, sig, ok := strings.Cut(raw, ".")
	if !ok || strings.Contains(sig, ".") {
		return "", false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(got, j.mac(name, encoded)) {
		return "", false
	}
	value, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(value), true
}

func (j *SignedJar) mac(name, encoded string) []byte {
	h := hmac.New(sha256.New, j.secret)
	h.Write([]byte(name))
	h.Write([]byte{'|'})
	h.Write([]byte(encoded))
	return h.Sum(nil)
}

// Set writes a signed session cookie.
func (j *SignedJar) Set(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, j.cookie(name, j.Sign(name, value), 0))
}

// Get returns the verified value of cookie name. Missing, malformed and
// tampered cookies all yield false.
func (j *SignedJar) Get(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return j.Verify(name, c.Value)
}

// Delete expires cookie name.
func (j *SignedJar) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, j.cookie(name, "", -1))
}

func (j *SignedJar) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   j.opts.Secure,
		SameSite: j.opts.SameSite,
	}
}
