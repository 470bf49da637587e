// Package config provides the configuration schema, loader, and provider
// registry for the voice kiosk server.
package config

import "time"

// LogLevel controls log verbosity for the kiosk server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the kiosk server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// environment variables override individual fields (see [ApplyEnv]).
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Security  SecurityConfig  `yaml:"security"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Session   SessionConfig   `yaml:"session"`
	Menu      MenuConfig      `yaml:"menu"`
	TTSCache  TTSCacheConfig  `yaml:"tts_cache"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ForceHTTPS rejects plain-HTTP requests with 426 Upgrade Required.
	ForceHTTPS bool `yaml:"force_https"`

	// TrustedProxies lists peer addresses whose X-Forwarded-For / X-Real-IP
	// headers are believed for client identification.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// SecurityConfig holds upload validation and rate-limit settings.
type SecurityConfig struct {
	// MaxFileSizeMB is the maximum accepted upload size in MiB.
	MaxFileSizeMB int `yaml:"max_file_size_mb"`

	// AllowedExtensions lists accepted upload file extensions (with dot).
	AllowedExtensions []string `yaml:"allowed_extensions"`

	// AllowedMIMETypes lists accepted Content-Type values for the audio part.
	// Empty means any.
	AllowedMIMETypes []string `yaml:"allowed_mime_types"`

	// RateLimit configures the per-client sliding window.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the per-client-IP sliding window limiter.
type RateLimitConfig struct {
	// MaxRequests is the number of requests permitted per window.
	MaxRequests int `yaml:"max_requests"`

	// WindowSeconds is the sliding window length.
	WindowSeconds int `yaml:"window_seconds"`

	// BlockSeconds is how long an offending client stays blocked.
	BlockSeconds int `yaml:"block_seconds"`
}

// Window returns the sliding window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Block returns the block duration.
func (r RateLimitConfig) Block() time.Duration {
	return time.Duration(r.BlockSeconds) * time.Second
}

// PipelineConfig holds worker-pool and request-deadline settings.
type PipelineConfig struct {
	// Workers is the number of concurrent request workers.
	Workers int `yaml:"workers"`

	// QueueSize bounds how many requests may wait for a worker slot.
	QueueSize int `yaml:"queue_size"`

	// RequestTimeoutSeconds is the per-request deadline.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// TempDir is where uploaded audio is spooled. Empty means os.TempDir.
	TempDir string `yaml:"temp_dir"`
}

// RequestTimeout returns the per-request deadline as a duration.
func (p PipelineConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSeconds) * time.Second
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	// IdleTimeoutMinutes is how long an idle session survives.
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`

	// SweepIntervalSeconds is the period of the idle-session sweeper.
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// HistoryLimit caps the conversation context FIFO per session.
	HistoryLimit int `yaml:"history_limit"`
}

// IdleTimeout returns the idle timeout as a duration.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMinutes) * time.Minute
}

// SweepInterval returns the sweeper period as a duration.
func (s SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// MenuConfig locates the menu document and controls hot reloading.
type MenuConfig struct {
	// Path is the menu JSON file.
	Path string `yaml:"path"`

	// ReloadIntervalSeconds is the polling period of the menu watcher.
	// Zero disables background polling (mtime is still checked on access).
	ReloadIntervalSeconds int `yaml:"reload_interval_seconds"`
}

// ReloadInterval returns the watcher polling period.
func (m MenuConfig) ReloadInterval() time.Duration {
	return time.Duration(m.ReloadIntervalSeconds) * time.Second
}

// TTSCacheConfig holds the synthesized-audio cache policy.
type TTSCacheConfig struct {
	// Dir is the directory for cached audio files.
	Dir string `yaml:"dir"`

	// TTLSeconds is the maximum entry age.
	TTLSeconds int `yaml:"ttl_seconds"`

	// MaxEntries bounds the entry count.
	MaxEntries int `yaml:"max_entries"`

	// MemoryLimitMB bounds the summed size of cached files in MiB.
	MemoryLimitMB int `yaml:"memory_limit_mb"`

	// CleanupIntervalSeconds is the period of the TTL sweeper.
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

// TTL returns the entry TTL as a duration.
func (t TTSCacheConfig) TTL() time.Duration {
	return time.Duration(t.TTLSeconds) * time.Second
}

// CleanupInterval returns the sweeper period.
func (t TTSCacheConfig) CleanupInterval() time.Duration {
	return time.Duration(t.CleanupIntervalSeconds) * time.Second
}

// MonitorConfig holds rolling-metric capacities and alert thresholds.
type MonitorConfig struct {
	// CompletedCapacity bounds the completed-request ring.
	CompletedCapacity int `yaml:"completed_capacity"`

	// ErrorsCapacity bounds the error ring.
	ErrorsCapacity int `yaml:"errors_capacity"`

	// ErrorRateThreshold is the errors-per-hour count that raises an alert.
	ErrorRateThreshold int `yaml:"error_rate_threshold"`

	// SlowResponseSeconds is the mean total time that raises an alert.
	SlowResponseSeconds float64 `yaml:"slow_response_seconds"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-1").
	Model string `yaml:"model"`

	// Voice is the TTS voice identifier. Ignored by STT/LLM providers.
	Voice string `yaml:"voice"`

	// Speed is the TTS speaking rate. Zero means provider default.
	Speed float64 `yaml:"speed"`

	// Format is the TTS output format (e.g., "wav"). Ignored by STT/LLM.
	Format string `yaml:"format"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// Default returns a Config populated with every documented default. Loading a
// file overlays onto this baseline, so an empty file yields a runnable
// (provider-less) configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Security: SecurityConfig{
			MaxFileSizeMB:     10,
			AllowedExtensions: []string{".wav"},
			RateLimit: RateLimitConfig{
				MaxRequests:   100,
				WindowSeconds: 3600,
				BlockSeconds:  3600,
			},
		},
		Pipeline: PipelineConfig{
			Workers:               10,
			QueueSize:             100,
			RequestTimeoutSeconds: 30,
		},
		Session: SessionConfig{
			IdleTimeoutMinutes:   30,
			SweepIntervalSeconds: 60,
			HistoryLimit:         20,
		},
		Menu: MenuConfig{
			Path:                  "menu.json",
			ReloadIntervalSeconds: 5,
		},
		TTSCache: TTSCacheConfig{
			Dir:                    "tts_cache",
			TTLSeconds:             3600,
			MaxEntries:             100,
			MemoryLimitMB:          100,
			CleanupIntervalSeconds: 300,
		},
		Monitor: MonitorConfig{
			CompletedCapacity:   1000,
			ErrorsCapacity:      1000,
			ErrorRateThreshold:  10,
			SlowResponseSeconds: 5,
		},
	}
}
