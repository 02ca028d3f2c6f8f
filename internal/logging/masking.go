// Package logging masks secrets (access keys, magic tokens, credentials) in
// values that are about to be logged.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Redacted replaces values that must not be logged even partially.
const Redacted = "[REDACTED]"

// MagicTokenCookieSuffix identifies cookies carrying magic token values.
const MagicTokenCookieSuffix = "_magic_token"

type headerRule int

const (
	keepHeader headerRule = iota
	redactHeader
	partialHeader
	cookieHeader
)

// partialHeaders carry keys or tokens that are shown by their last 4 characters.
var partialHeaders = map[string]bool{
	"authorization": true,
	"accesskey":     true,
	"x-api-key":     true,
	"x-access-key":  true,
}

func ruleFor(name string) headerRule {
	name = strings.ToLower(name)
	switch {
	case name == "cookie" || name == "set-cookie":
		return cookieHeader
	case strings.Contains(name, "password"), strings.Contains(name, "secret"), strings.Contains(name, "private-key"):
		return redactHeader
	case partialHeaders[name]:
		return partialHeader
	default:
		return keepHeader
	}
}

// MaskHeader returns value as it may be logged for header name.
// Password and secret headers are fully redacted, key and token headers keep
// their last 4 characters, and only magic token cookies are masked in cookie headers.
func MaskHeader(name, value string) string {
	switch ruleFor(name) {
	case cookieHeader:
		return MaskCookies(value)
	case redactHeader:
		return Redacted
	case partialHeader:
		return MaskToken(value)
	default:
		return value
	}
}

// MaskToken hides all but the last 4 characters of a secret value.
func MaskToken(value string) string {
	if len(value) < 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskCookies masks the values of magic token cookies in a Cookie or Set-Cookie
// header value. Other cookies and attributes are left unchanged.
func MaskCookies(header string) string {
	parts := strings.Split(header, ";")
	for i, part := range parts {
		name, value, ok := strings.Cut(part, "=")
		if ok && strings.HasSuffix(strings.TrimSpace(name), MagicTokenCookieSuffix) {
			parts[i] = name + "=" + MaskToken(value)
		}
	}
	return strings.Join(parts, ";")
}

// MaskPathToken replaces token, when it is a segment of path, with its masked form.
func MaskPathToken(path, token string) string {
	if token == "" {
		return path
	}
	return strings.Replace(path, "/"+token, "/"+MaskToken(token), 1)
}

// MaskJSONBody redacts every primitive JSON value whose field is not in allowlist.
// Objects and arrays are always descended into. A nil allowlist disables masking;
// bodies that are not JSON are returned unchanged.
func MaskJSONBody(body []byte, allowlist []string) []byte {
	if allowlist == nil || len(body) == 0 {
		return body
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	allowed := make(map[string]struct{}, len(allowlist))
	for _, field := range allowlist {
		allowed[field] = struct{}{}
	}

	masked, err := json.Marshal(redactJSON(data, allowed))
	if err != nil {
		return body
	}
	return masked
}

func redactJSON(value any, allowed map[string]struct{}) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			switch val.(type) {
			case map[string]any, []any:
				out[key] = redactJSON(val, allowed)
			default:
				if _, ok := allowed[key]; ok {
					out[key] = val
				} else {
					out[key] = Redacted
				}
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactJSON(item, allowed)
		}
		return out
	default:
		return v
	}
}

// FormatBinaryData summarises a non-text body by its size.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
