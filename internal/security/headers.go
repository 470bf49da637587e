package security

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// securityHeaders are attached to every response.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'self'",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
}

// SetSecurityHeaders writes the standard header set onto w.
func SetSecurityHeaders(w http.ResponseWriter) {
	for k, v := range securityHeaders {
		w.Header().Set(k, v)
	}
}

// Headers returns a copy of the standard security header set, for the config
// introspection endpoint.
func Headers() map[string]string {
	out := make(map[string]string, len(securityHeaders))
	for k, v := range securityHeaders {
		out[k] = v
	}
	return out
}

// Middleware is the outermost HTTP gate: it attaches security headers,
// optionally enforces HTTPS, and applies the rate limiter.
type Middleware struct {
	Limiter        *RateLimiter
	TrustedProxies []string
	ForceHTTPS     bool
}

// Wrap applies the gate around next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetSecurityHeaders(w)

		if m.ForceHTTPS && r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
			w.Header().Set("Upgrade", "TLS/1.2, HTTP/1.1")
			writeJSONError(w, http.StatusUpgradeRequired, "HTTPS_REQUIRED", "HTTPS is required")
			return
		}

		d := m.Limiter.Allow(ClientIP(r, m.TrustedProxies))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
