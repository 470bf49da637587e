package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hanmaum-labs/voicekiosk/internal/config"
	"github.com/hanmaum-labs/voicekiosk/internal/security"
)

// --- TTS provider management ---

func (s *Server) handleTTSProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"available_providers": s.deps.Registry.TTSNames(),
		"current_provider":    s.providerInfo(),
	})
}

// handleTTSSwitch hot-swaps the active TTS provider. In-flight requests keep
// the provider they already resolved from the holder.
func (s *Server) handleTTSSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
		Config   struct {
			APIKey  string  `json:"api_key"`
			BaseURL string  `json:"base_url"`
			Model   string  `json:"model"`
			Voice   string  `json:"voice"`
			Speed   float64 `json:"speed"`
			Format  string  `json:"format"`
		} `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Provider == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "provider 필드가 필요합니다.",
		})
		return
	}

	entry := config.ProviderEntry{
		Name:    req.Provider,
		APIKey:  req.Config.APIKey,
		BaseURL: req.Config.BaseURL,
		Model:   req.Config.Model,
		Voice:   req.Config.Voice,
		Speed:   req.Config.Speed,
		Format:  req.Config.Format,
	}
	provider, err := s.deps.Registry.CreateTTS(entry)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	old := s.deps.Holder.Swap(provider)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("TTS provider switched from %s to %s", old.Name(), provider.Name()),
		"provider_info": s.providerInfo(),
	})
}

// --- Error statistics ---

func (s *Server) handleErrorStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"error_stats":  s.deps.Tracker.Stats(),
		"total_errors": s.deps.Tracker.Total(),
		"generated_at": now(),
	})
}

func (s *Server) handleErrorClear(w http.ResponseWriter, _ *http.Request) {
	s.deps.Tracker.Clear()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "error statistics cleared",
		"cleared_at": now(),
	})
}

// --- System status ---

func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"api_initialized": true,
		"server_status":   "running",
		"uptime_seconds":  time.Since(s.started).Seconds(),
		"active_sessions": s.deps.Sessions.Count(),
		"error_stats":     s.deps.Tracker.Stats(),
		"security_stats":  s.deps.Limiter.Stats(),
		"tts_provider":    s.providerInfo(),
		"pipeline_status": map[string]any{
			"workers":                 s.cfg.Pipeline.Workers,
			"queue_size":              s.cfg.Pipeline.QueueSize,
			"request_timeout_seconds": s.cfg.Pipeline.RequestTimeoutSeconds,
		},
	})
}

// --- Security ---

func (s *Server) fileValidationConfig() map[string]any {
	return map[string]any{
		"max_file_size_bytes": s.deps.Validator.MaxSize(),
		"allowed_extensions":  s.deps.Validator.AllowedExtensions(),
	}
}

func (s *Server) handleSecurityStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.deps.Limiter.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"rate_limit_config": map[string]any{
			"max_requests":   stats.MaxRequests,
			"window_seconds": stats.WindowSeconds,
			"block_seconds":  stats.BlockSeconds,
		},
		"blocked_ips":            stats.BlockedIPs,
		"active_clients":         stats.ActiveClients,
		"file_validation_config": s.fileValidationConfig(),
	})
}

func (s *Server) handleSecurityClearRateLimit(w http.ResponseWriter, _ *http.Request) {
	s.deps.Limiter.Clear()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "rate limit state cleared",
		"cleared_at": now(),
	})
}

func (s *Server) handleSecurityConfig(w http.ResponseWriter, _ *http.Request) {
	stats := s.deps.Limiter.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"config": map[string]any{
			"security_headers": security.Headers(),
			"force_https":      s.cfg.Server.ForceHTTPS,
			"trusted_proxies":  s.cfg.Server.TrustedProxies,
			"rate_limit": map[string]any{
				"max_requests":   stats.MaxRequests,
				"window_seconds": stats.WindowSeconds,
				"block_seconds":  stats.BlockSeconds,
			},
			"file_validation": s.fileValidationConfig(),
		},
	})
}

// --- Optimization (TTS cache) ---

func (s *Server) handleOptimizationStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"compression": map[string]any{
			// Responses are small JSON documents; audio is served as WAV.
			"enabled": false,
		},
		"cache": s.deps.Cache.Stats(),
		"connection_pool": map[string]any{
			"http_keep_alive": true,
		},
		"timestamp": now(),
	})
}

func (s *Server) handleOptimizationClearCache(w http.ResponseWriter, _ *http.Request) {
	n := s.deps.Cache.Clear()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    fmt.Sprintf("%d cached entries removed", n),
		"cleared_at": now(),
	})
}

// --- Payment progress ---

func (s *Server) handlePaymentProgress(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("order_id")
	p, ok := s.deps.Progress.Get(orderID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "ORDER_NOT_FOUND",
			"message": "해당 주문의 결제 진행 정보가 없습니다.",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id": p.OrderID,
		"status":   p.Status,
		"progress": map[string]any{
			"steps":        p.Steps,
			"step_delays":  p.StepDelays,
			"current_step": p.CurrentStep,
		},
	})
}

// --- Monitoring ---

func (s *Server) handleMonitoringStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"current_metrics":    s.deps.Monitor.CurrentMetrics(),
		"performance_report": s.deps.Monitor.PerformanceReport(),
		"generated_at":       now(),
	})
}

func (s *Server) handleMonitoringAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := s.deps.Alerts.Check()
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts":          alerts,
		"alert_count":     len(alerts),
		"current_metrics": s.deps.Monitor.CurrentMetrics(),
	})
}

func (s *Server) handleMonitoringPerformance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"performance_report": s.deps.Monitor.PerformanceReport(),
		"additional_metrics": s.deps.Monitor.SampleSystem(),
		"generated_at":       now(),
	})
}

func (s *Server) handleMonitoringExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OutputFile string `json:"output_file"`
	}
	// An empty body is fine; the default path is used.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.OutputFile == "" {
		req.OutputFile = filepath.Join(os.TempDir(),
			fmt.Sprintf("kiosk_monitoring_%s.json", time.Now().Format("20060102T150405")))
	}

	if err := s.deps.Monitor.Export(req.OutputFile); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"output_file": req.OutputFile,
		"exported_at": now(),
	})
}
