// Command kioskd is the voice-ordering kiosk server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/hanmaum-labs/voicekiosk/internal/config"
	"github.com/hanmaum-labs/voicekiosk/internal/dialogue"
	"github.com/hanmaum-labs/voicekiosk/internal/faults"
	"github.com/hanmaum-labs/voicekiosk/internal/httpapi"
	"github.com/hanmaum-labs/voicekiosk/internal/intent"
	"github.com/hanmaum-labs/voicekiosk/internal/menu"
	"github.com/hanmaum-labs/voicekiosk/internal/monitor"
	"github.com/hanmaum-labs/voicekiosk/internal/observe"
	"github.com/hanmaum-labs/voicekiosk/internal/pipeline"
	"github.com/hanmaum-labs/voicekiosk/internal/response"
	"github.com/hanmaum-labs/voicekiosk/internal/security"
	"github.com/hanmaum-labs/voicekiosk/internal/session"
	"github.com/hanmaum-labs/voicekiosk/internal/ttscache"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/llm"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/llm/anyllm"
	oaillm "github.com/hanmaum-labs/voicekiosk/pkg/provider/llm/openai"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/stt"
	oaistt "github.com/hanmaum-labs/voicekiosk/pkg/provider/stt/openai"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/stt/whisper"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/tts"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/hanmaum-labs/voicekiosk/pkg/provider/tts/mock"
	oaitts "github.com/hanmaum-labs/voicekiosk/pkg/provider/tts/openai"
)

const serviceVersion = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kioskd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kioskd: %v\n", err)
		}
		return 1
	}
	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("kioskd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── OpenTelemetry providers ───────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicekiosk",
		ServiceVersion: serviceVersion,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	sttProvider, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}
	llmProvider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	ttsProvider, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to create tts provider", "name", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	holder := tts.NewHolder(ttsProvider)
	slog.Info("providers ready",
		"stt", sttProvider.Name(), "llm", llmProvider.Name(), "tts", ttsProvider.Name())

	// ── Menu catalog ──────────────────────────────────────────────────────────
	catalog, err := menu.Load(cfg.Menu.Path)
	if err != nil {
		slog.Error("failed to load menu", "path", cfg.Menu.Path, "err", err)
		return 1
	}
	var menuWatcher *menu.Watcher
	if cfg.Menu.ReloadIntervalSeconds > 0 {
		menuWatcher = menu.NewWatcher(catalog, cfg.Menu.ReloadInterval())
		defer menuWatcher.Stop()
	}

	// ── Sessions ──────────────────────────────────────────────────────────────
	sessions := session.NewRegistry(cfg.Session.IdleTimeout(), cfg.Session.HistoryLimit)
	sessionSweeper := session.NewSweeper(sessions, cfg.Session.SweepInterval())
	defer sessionSweeper.Stop()

	// ── TTS cache ─────────────────────────────────────────────────────────────
	cache, err := ttscache.New(cfg.TTSCache.Dir,
		ttscache.WithTTL(cfg.TTSCache.TTL()),
		ttscache.WithMaxEntries(cfg.TTSCache.MaxEntries),
		ttscache.WithByteLimit(int64(cfg.TTSCache.MemoryLimitMB)<<20),
	)
	if err != nil {
		slog.Error("failed to initialise tts cache", "dir", cfg.TTSCache.Dir, "err", err)
		return 1
	}
	cacheSweeper := ttscache.NewSweeper(cache, cfg.TTSCache.CleanupInterval())
	defer cacheSweeper.Stop()

	// ── Core pipeline ─────────────────────────────────────────────────────────
	progress := dialogue.NewProgressStore()
	policy := dialogue.NewPolicy(catalog, llmProvider, progress)
	extractor := intent.NewExtractor(llmProvider, catalog)
	builder := response.NewBuilder(cache, holder)
	tracker := faults.NewTracker()
	mon := monitor.New(cfg.Monitor.CompletedCapacity, cfg.Monitor.ErrorsCapacity)
	alerts := monitor.NewAlertManager(mon, cfg.Monitor.ErrorRateThreshold,
		time.Duration(cfg.Monitor.SlowResponseSeconds*float64(time.Second)))

	// One upload policy for both ends: the multipart boundary and the
	// spooled-file re-check inside the pipeline.
	validator := security.NewFileValidator(int64(cfg.Security.MaxFileSizeMB)<<20, cfg.Security.AllowedExtensions)

	pipe := pipeline.New(pipeline.Config{
		Workers:        cfg.Pipeline.Workers,
		QueueSize:      cfg.Pipeline.QueueSize,
		RequestTimeout: cfg.Pipeline.RequestTimeout(),
		TempDir:        cfg.Pipeline.TempDir,
	}, sttProvider, extractor, policy, builder, sessions,
		pipeline.WithTracker(tracker),
		pipeline.WithMonitor(mon),
		pipeline.WithMetrics(metrics),
		pipeline.WithValidator(validator),
	)

	// ── HTTP server ───────────────────────────────────────────────────────────
	api := httpapi.New(cfg, httpapi.Deps{
		Pipeline:  pipe,
		Sessions:  sessions,
		Cache:     cache,
		Holder:    holder,
		Registry:  reg,
		Validator: validator,
		Limiter: security.NewRateLimiter(cfg.Security.RateLimit.MaxRequests,
			cfg.Security.RateLimit.Window(), cfg.Security.RateLimit.Block()),
		Progress: progress,
		Tracker:  tracker,
		Monitor:  mon,
		Alerts:   alerts,
		Metrics:  metrics,
	})

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, ollama and friends all route through the any-llm
	// gateway under their own names.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, oaitts.WithVoice(entry.Voice))
		}
		if entry.Speed > 0 {
			opts = append(opts, oaitts.WithSpeed(entry.Speed))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithVoiceID(entry.Voice))
		}
		if entry.Format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(entry.Format))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// mock keeps a kiosk demo-able without any TTS credentials.
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
