package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hanmaum-labs/voicekiosk/pkg/wav"
)

func TestRateLimiter_Boundary(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2, time.Hour, time.Hour)

	d1 := rl.Allow("10.0.0.1")
	d2 := rl.Allow("10.0.0.1")
	if !d1.Allowed || !d2.Allowed {
		t.Fatalf("first two requests must pass: %+v %+v", d1, d2)
	}
	if d1.Remaining != 1 || d2.Remaining != 0 {
		t.Errorf("remaining = %d, %d, want 1, 0", d1.Remaining, d2.Remaining)
	}

	d3 := rl.Allow("10.0.0.1")
	if d3.Allowed {
		t.Fatal("third request must be rejected")
	}
	if d3.RetryAfter != time.Hour {
		t.Errorf("retry after = %v, want the block duration", d3.RetryAfter)
	}

	// Other clients are unaffected.
	if !rl.Allow("10.0.0.2").Allowed {
		t.Error("distinct IP must have its own bucket")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(1, 20*time.Millisecond, 10*time.Millisecond)

	if !rl.Allow("ip").Allowed {
		t.Fatal("first request rejected")
	}
	if rl.Allow("ip").Allowed {
		t.Fatal("second request inside the window must be rejected")
	}
	time.Sleep(40 * time.Millisecond)
	if !rl.Allow("ip").Allowed {
		t.Error("request after block and window expiry must pass")
	}
}

func TestRateLimiter_StatsAndClear(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(1, time.Hour, time.Hour)

	rl.Allow("1.1.1.1")
	rl.Allow("1.1.1.1") // trips the block
	rl.Allow("2.2.2.2")

	s := rl.Stats()
	if s.ActiveClients != 2 || len(s.BlockedIPs) != 1 || s.BlockedIPs[0] != "1.1.1.1" {
		t.Errorf("stats = %+v", s)
	}

	rl.Clear()
	if !rl.Allow("1.1.1.1").Allowed {
		t.Error("Clear must lift blocks")
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	newReq := func(remote, xff, xreal string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		if xff != "" {
			r.Header.Set("X-Forwarded-For", xff)
		}
		if xreal != "" {
			r.Header.Set("X-Real-IP", xreal)
		}
		return r
	}
	trusted := []string{"10.0.0.5"}

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"untrusted peer ignores headers", newReq("203.0.113.9:1234", "9.9.9.9", "8.8.8.8"), "203.0.113.9"},
		{"trusted peer takes first xff hop", newReq("10.0.0.5:1234", "198.51.100.7, 10.0.0.5", ""), "198.51.100.7"},
		{"trusted peer falls back to x-real-ip", newReq("10.0.0.5:1234", "", "198.51.100.8"), "198.51.100.8"},
		{"trusted peer without headers", newReq("10.0.0.5:1234", "", ""), "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClientIP(tt.req, trusted); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileValidator(t *testing.T) {
	t.Parallel()
	v := NewFileValidator(10<<20, []string{".wav"})
	validWAV := wav.Silent(10 * time.Millisecond)

	tests := []struct {
		name     string
		filename string
		size     int64
		head     []byte
		wantKey  string // "" means valid
	}{
		{"valid upload", "clip.wav", int64(len(validWAV)), validWAV, ""},
		{"renamed text file", "clip.wav", 100, []byte("hello this is not audio"), "content"},
		{"wrong extension", "clip.mp3", 100, validWAV, "extension"},
		{"traversal name", "../../etc/passwd.wav", 100, validWAV, "filename"},
		{"windows device chars", "con:*?.wav", 100, validWAV, "filename"},
		{"too long name", strings.Repeat("a", 300) + ".wav", 100, validWAV, "filename"},
		{"empty file", "clip.wav", 0, validWAV, "size"},
		{"oversize file", "clip.wav", 11 << 20, validWAV, "size"},
		{"missing name", "", 100, validWAV, "filename"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			errs := v.Validate(tt.filename, tt.size, tt.head)
			if tt.wantKey == "" {
				if len(errs) != 0 {
					t.Fatalf("errors = %v, want none", errs)
				}
				return
			}
			if _, ok := errs[tt.wantKey]; !ok {
				t.Fatalf("errors = %v, want key %q", errs, tt.wantKey)
			}
		})
	}
}

func TestMiddleware_SecurityHeadersOnEveryResponse(t *testing.T) {
	t.Parallel()
	m := &Middleware{Limiter: NewRateLimiter(100, time.Hour, time.Hour)}
	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	for k, v := range Headers() {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Error("rate limit headers missing")
	}
}

func TestMiddleware_RateLimitRejection(t *testing.T) {
	t.Parallel()
	m := &Middleware{Limiter: NewRateLimiter(2, time.Hour, time.Hour)}
	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/voice/process", nil)
		req.RemoteAddr = "203.0.113.4:5555"
		h.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "3600" {
		t.Errorf("Retry-After = %q, want block duration in seconds", rec.Header().Get("Retry-After"))
	}
	// Security headers also present on rejections.
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on 429")
	}
}

func TestMiddleware_ForceHTTPS(t *testing.T) {
	t.Parallel()
	m := &Middleware{
		Limiter:    NewRateLimiter(100, time.Hour, time.Hour),
		ForceHTTPS: true,
	}
	h := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusUpgradeRequired {
		t.Fatalf("plain HTTP status = %d, want 426", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("forwarded https status = %d, want 200", rec.Code)
	}
}
