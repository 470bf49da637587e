package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. A missing file is an error;
// use [Default] plus [ApplyEnv] for file-less startup.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the documented defaults,
// applies environment overrides, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays recognised environment variables onto cfg. Unset or
// malformed values leave the corresponding field untouched.
func ApplyEnv(cfg *Config) {
	envInt("MAX_FILE_SIZE_MB", &cfg.Security.MaxFileSizeMB)
	envList("ALLOWED_FILE_EXTENSIONS", &cfg.Security.AllowedExtensions)
	envList("ALLOWED_MIME_TYPES", &cfg.Security.AllowedMIMETypes)
	envBool("FORCE_HTTPS", &cfg.Server.ForceHTTPS)
	envList("TRUSTED_PROXIES", &cfg.Server.TrustedProxies)

	envInt("RATE_LIMIT_REQUESTS", &cfg.Security.RateLimit.MaxRequests)
	envInt("RATE_LIMIT_WINDOW", &cfg.Security.RateLimit.WindowSeconds)
	envInt("RATE_LIMIT_BLOCK", &cfg.Security.RateLimit.BlockSeconds)

	envString("TTS_PROVIDER", &cfg.Providers.TTS.Name)
	envString("TTS_MODEL", &cfg.Providers.TTS.Model)
	envString("TTS_VOICE", &cfg.Providers.TTS.Voice)
	envFloat("TTS_SPEED", &cfg.Providers.TTS.Speed)
	envString("TTS_FORMAT", &cfg.Providers.TTS.Format)

	envString("MENU_PATH", &cfg.Menu.Path)
	envInt("SESSION_TIMEOUT_MINUTES", &cfg.Session.IdleTimeoutMinutes)
	envInt("WORKER_COUNT", &cfg.Pipeline.Workers)
	envInt("QUEUE_SIZE", &cfg.Pipeline.QueueSize)
	envInt("REQUEST_TIMEOUT", &cfg.Pipeline.RequestTimeoutSeconds)

	envString("TTS_CACHE_DIR", &cfg.TTSCache.Dir)
	envInt("TTS_CACHE_TTL", &cfg.TTSCache.TTLSeconds)
	envInt("TTS_CACHE_MAX_ENTRIES", &cfg.TTSCache.MaxEntries)
	envInt("TTS_CACHE_MEMORY_LIMIT_MB", &cfg.TTSCache.MemoryLimitMB)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Security.MaxFileSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("security.max_file_size_mb must be positive, got %d", cfg.Security.MaxFileSizeMB))
	}
	if len(cfg.Security.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("security.allowed_extensions must not be empty"))
	}
	for _, ext := range cfg.Security.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("security.allowed_extensions entry %q must start with a dot", ext))
		}
	}
	if cfg.Security.RateLimit.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("security.rate_limit.max_requests must be positive, got %d", cfg.Security.RateLimit.MaxRequests))
	}
	if cfg.Security.RateLimit.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("security.rate_limit.window_seconds must be positive, got %d", cfg.Security.RateLimit.WindowSeconds))
	}
	if cfg.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be positive, got %d", cfg.Pipeline.Workers))
	}
	if cfg.Pipeline.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.queue_size must be positive, got %d", cfg.Pipeline.QueueSize))
	}
	if cfg.Pipeline.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.request_timeout_seconds must be positive, got %d", cfg.Pipeline.RequestTimeoutSeconds))
	}
	if cfg.Session.IdleTimeoutMinutes <= 0 {
		errs = append(errs, fmt.Errorf("session.idle_timeout_minutes must be positive, got %d", cfg.Session.IdleTimeoutMinutes))
	}
	if cfg.Menu.Path == "" {
		errs = append(errs, errors.New("menu.path is required"))
	}
	if cfg.TTSCache.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("tts_cache.ttl_seconds must be positive, got %d", cfg.TTSCache.TTLSeconds))
	}
	if cfg.TTSCache.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("tts_cache.max_entries must be positive, got %d", cfg.TTSCache.MaxEntries))
	}
	if cfg.TTSCache.MemoryLimitMB <= 0 {
		errs = append(errs, fmt.Errorf("tts_cache.memory_limit_mb must be positive, got %d", cfg.TTSCache.MemoryLimitMB))
	}

	return errors.Join(errs...)
}

// ---- env helpers ----

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func envFloat(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*dst = f
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return
	}
	*dst = b
}

func envList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
