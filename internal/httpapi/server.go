// Package httpapi exposes the kiosk over HTTP: the voice pipeline entry
// point, cached TTS audio, and the operational surface (provider switching,
// security, cache, payment progress, and monitoring endpoints).
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanmaum-labs/voicekiosk/internal/config"
	"github.com/hanmaum-labs/voicekiosk/internal/dialogue"
	"github.com/hanmaum-labs/voicekiosk/internal/faults"
	"github.com/hanmaum-labs/voicekiosk/internal/monitor"
	"github.com/hanmaum-labs/voicekiosk/internal/observe"
	"github.com/hanmaum-labs/voicekiosk/internal/pipeline"
	"github.com/hanmaum-labs/voicekiosk/internal/security"
	"github.com/hanmaum-labs/voicekiosk/internal/session"
	"github.com/hanmaum-labs/voicekiosk/internal/ttscache"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/tts"
)

// Deps are the shared components the server serves from. All fields are
// required unless noted.
type Deps struct {
	Pipeline  *pipeline.Pipeline
	Sessions  *session.Registry
	Cache     *ttscache.Cache
	Holder    *tts.Holder
	Registry  *config.Registry
	Validator *security.FileValidator
	Limiter   *security.RateLimiter
	Progress  *dialogue.ProgressStore
	Tracker   *faults.Tracker
	Monitor   *monitor.Monitor
	Alerts    *monitor.AlertManager

	// Metrics is optional; nil falls back to the process-wide instance.
	Metrics *observe.Metrics
}

// Server is the HTTP facade. Construct with [New]; serve [Server.Handler].
type Server struct {
	cfg     *config.Config
	deps    Deps
	started time.Time
}

// New builds the server around its dependencies.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return &Server{cfg: cfg, deps: deps, started: time.Now()}
}

// Register adds every route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/voice/process", s.handleVoiceProcess)
	mux.HandleFunc("GET /api/voice/tts/{file_id}", s.handleTTSFetch)

	mux.HandleFunc("GET /api/tts/providers", s.handleTTSProviders)
	mux.HandleFunc("POST /api/tts/switch", s.handleTTSSwitch)

	mux.HandleFunc("GET /api/errors/stats", s.handleErrorStats)
	mux.HandleFunc("POST /api/errors/clear", s.handleErrorClear)

	mux.HandleFunc("GET /api/system/status", s.handleSystemStatus)

	mux.HandleFunc("GET /api/security/stats", s.handleSecurityStats)
	mux.HandleFunc("POST /api/security/clear-rate-limit", s.handleSecurityClearRateLimit)
	mux.HandleFunc("GET /api/security/config", s.handleSecurityConfig)

	mux.HandleFunc("GET /api/optimization/stats", s.handleOptimizationStats)
	mux.HandleFunc("POST /api/optimization/clear-cache", s.handleOptimizationClearCache)

	mux.HandleFunc("GET /api/payment/progress/{order_id}", s.handlePaymentProgress)

	mux.HandleFunc("GET /api/monitoring/stats", s.handleMonitoringStats)
	mux.HandleFunc("GET /api/monitoring/alerts", s.handleMonitoringAlerts)
	mux.HandleFunc("GET /api/monitoring/performance", s.handleMonitoringPerformance)
	mux.HandleFunc("POST /api/monitoring/export", s.handleMonitoringExport)

	mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the complete handler chain: security gate outermost, then
// the tracing/metrics middleware, then the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)

	gate := &security.Middleware{
		Limiter:        s.deps.Limiter,
		TrustedProxies: s.cfg.Server.TrustedProxies,
		ForceHTTPS:     s.cfg.Server.ForceHTTPS,
	}
	return gate.Wrap(observe.Middleware(s.deps.Metrics)(mux))
}

// providerInfo describes the active TTS provider for introspection payloads.
func (s *Server) providerInfo() map[string]any {
	p := s.deps.Holder.Current()
	return map[string]any{
		"name":  p.Name(),
		"voice": p.Voice().Fingerprint(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"api_initialized": true,
		"tts_provider":    s.providerInfo(),
	})
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
