// Package pipeline drives one voice request end to end: spool the upload,
// transcribe, extract the intent, run the dialogue policy, and assemble the
// wire response. A bounded worker pool with an admission queue keeps load
// shedding explicit; everything past admission runs under a per-request
// deadline.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hanmaum-labs/voicekiosk/internal/dialogue"
	"github.com/hanmaum-labs/voicekiosk/internal/faults"
	"github.com/hanmaum-labs/voicekiosk/internal/intent"
	"github.com/hanmaum-labs/voicekiosk/internal/monitor"
	"github.com/hanmaum-labs/voicekiosk/internal/observe"
	"github.com/hanmaum-labs/voicekiosk/internal/response"
	"github.com/hanmaum-labs/voicekiosk/internal/security"
	"github.com/hanmaum-labs/voicekiosk/internal/session"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/stt"
)

const (
	DefaultWorkers        = 10
	DefaultQueueSize      = 100
	DefaultRequestTimeout = 30 * time.Second
)

// ErrQueueFull is returned internally when the admission queue is saturated.
var ErrQueueFull = errors.New("pipeline: request queue full")

// Config sizes the worker pool and the per-request deadline.
type Config struct {
	// Workers is the number of requests processed concurrently.
	Workers int

	// QueueSize bounds how many admitted requests may wait for a worker.
	QueueSize int

	// RequestTimeout is the deadline for one request once admitted.
	RequestTimeout time.Duration

	// TempDir is where uploads are spooled. Empty means the OS default.
	TempDir string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Request is one uploaded utterance plus its transport context.
type Request struct {
	// SessionID is the client-provided session identifier. Empty means a new
	// session is minted.
	SessionID string

	// ClientIP identifies the kiosk terminal for monitoring.
	ClientIP string

	// Audio is the WAV payload. Read exactly once.
	Audio io.Reader

	// Size is the declared upload size in bytes, for monitoring only.
	Size int64
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithTracker replaces the fault tracker.
func WithTracker(t *faults.Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithMonitor replaces the request monitor.
func WithMonitor(m *monitor.Monitor) Option {
	return func(p *Pipeline) { p.monitor = m }
}

// WithMetrics replaces the OTel metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithValidator replaces the upload validator used to re-check spooled files.
// Pass the same validator the HTTP boundary uses so both ends enforce one
// policy.
func WithValidator(v *security.FileValidator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// Pipeline is the orchestrator for /api/voice/process. Safe for concurrent
// use.
type Pipeline struct {
	cfg       Config
	stt       stt.Provider
	extractor *intent.Extractor
	policy    *dialogue.Policy
	builder   *response.Builder
	sessions  *session.Registry

	tracker   *faults.Tracker
	monitor   *monitor.Monitor
	metrics   *observe.Metrics
	validator *security.FileValidator

	workers *semaphore.Weighted
	queue   chan struct{}
}

// New assembles the pipeline from its stages.
func New(cfg Config, sttProvider stt.Provider, extractor *intent.Extractor,
	policy *dialogue.Policy, builder *response.Builder, sessions *session.Registry,
	opts ...Option) *Pipeline {

	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:       cfg,
		stt:       sttProvider,
		extractor: extractor,
		policy:    policy,
		builder:   builder,
		sessions:  sessions,
		tracker:   faults.NewTracker(),
		monitor:   monitor.New(0, 0),
		metrics:   observe.DefaultMetrics(),
		validator: security.NewFileValidator(10<<20, []string{".wav"}),
		workers:   semaphore.NewWeighted(int64(cfg.Workers)),
		queue:     make(chan struct{}, cfg.Workers+cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tracker exposes the fault tracker for the error-stats endpoints.
func (p *Pipeline) Tracker() *faults.Tracker { return p.tracker }

// Monitor exposes the request monitor for the monitoring endpoints.
func (p *Pipeline) Monitor() *monitor.Monitor { return p.monitor }

// Process runs one request through every stage and always returns a complete
// wire response: recoverable failures come back as success=false on the same
// schema, never as a Go error.
func (p *Pipeline) Process(ctx context.Context, req Request) *response.ServerResponse {
	start := time.Now()
	requestID := uuid.NewString()

	p.monitor.StartRequest(requestID, req.ClientIP, req.Size)
	p.metrics.ActiveRequests.Add(ctx, 1)
	defer p.metrics.ActiveRequests.Add(ctx, -1)

	// Admission: shed load instead of queueing without bound.
	select {
	case p.queue <- struct{}{}:
		defer func() { <-p.queue }()
	default:
		return p.fail(ctx, requestID, req.SessionID, start,
			faults.New(faults.ServerError, ErrQueueFull.Error()))
	}

	// The request deadline starts at admission so the wait for a worker slot
	// is bounded too.
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	if err := p.workers.Acquire(ctx, 1); err != nil {
		return p.fail(ctx, requestID, req.SessionID, start, faults.Classify(err))
	}
	defer p.workers.Release(1)

	ctx, span := observe.StartSpan(ctx, "voice.pipeline")
	defer span.End()
	log := observe.Logger(ctx).With("request_id", requestID)

	// Spool the upload to a request-scoped temp file. The file is removed on
	// every exit path.
	audioPath, err := p.spool(req.Audio)
	if err != nil {
		log.Error("upload spool failed", "err", err)
		return p.fail(ctx, requestID, req.SessionID, start,
			faults.Wrap(faults.AudioProcessingError, err))
	}
	defer os.Remove(audioPath)

	// Re-check what actually landed on disk. The HTTP boundary only sees the
	// first bytes of the multipart stream; the STT provider reads the file.
	if err := p.revalidate(audioPath); err != nil {
		log.Error("spooled upload rejected", "err", err)
		return p.fail(ctx, requestID, req.SessionID, start, faults.Classify(err))
	}

	sess := p.sessions.GetOrCreate(req.SessionID)
	if err := sess.Acquire(ctx); err != nil {
		return p.fail(ctx, requestID, sess.ID, start, faults.Classify(err))
	}
	defer sess.Release()
	observe.TagSession(ctx, sess.ID, requestID)

	p.monitor.UpdateStatus(requestID, monitor.StatusProcessing)
	var processing time.Duration

	// Stage 1: speech to text.
	sttStart := time.Now()
	sttCtx, sttSpan := observe.StartStage(ctx, "stt")
	transcript, err := p.stt.Transcribe(sttCtx, audioPath)
	sttSpan.End()
	processing += time.Since(sttStart)
	p.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		p.metrics.RecordProviderRequest(ctx, p.stt.Name(), "stt", "error")
		p.metrics.RecordProviderError(ctx, p.stt.Name(), "stt")
		return p.fail(ctx, requestID, sess.ID, start, p.stageFault(faults.SpeechRecognitionError, err))
	}
	p.metrics.RecordProviderRequest(ctx, p.stt.Name(), "stt", "ok")
	if strings.TrimSpace(transcript.Text) == "" {
		return p.fail(ctx, requestID, sess.ID, start,
			faults.New(faults.SpeechRecognitionError, "empty transcript"))
	}
	log.Info("transcribed", "text", transcript.Text, "confidence", transcript.Confidence)

	// Stage 2: intent extraction.
	llmStart := time.Now()
	llmCtx, llmSpan := observe.StartStage(ctx, "llm")
	it, err := p.extractor.Extract(llmCtx, transcript.Text)
	llmSpan.End()
	processing += time.Since(llmStart)
	p.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		return p.fail(ctx, requestID, sess.ID, start, p.stageFault(faults.IntentRecognitionError, err))
	}
	p.metrics.RecordIntent(ctx, string(it.Kind))
	log.Info("intent extracted", "kind", it.Kind, "confidence", it.Confidence)

	// Stage 3: dialogue policy.
	d, err := p.policy.Process(ctx, it, sess)
	if err != nil {
		return p.fail(ctx, requestID, sess.ID, start, p.stageFault(faults.OrderProcessingError, err))
	}

	// Stage 4: wire response, including TTS resolution.
	ttsStart := time.Now()
	ttsCtx, ttsSpan := observe.StartStage(ctx, "tts")
	resp := p.builder.Build(ttsCtx, d, sess.ID, start)
	ttsSpan.End()
	processing += time.Since(ttsStart)
	p.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())

	p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	p.monitor.CompleteRequest(requestID, processing.Seconds(), responseSize(resp))
	return resp
}

// stageFault attributes err to the stage's kind unless the deadline or a
// network failure explains it better.
func (p *Pipeline) stageFault(kind faults.Kind, err error) *faults.Fault {
	f := faults.Classify(err)
	switch f.Kind {
	case faults.TimeoutError, faults.NetworkError:
		return f
	}
	return faults.Wrap(kind, err)
}

// fail records the fault everywhere it needs to land and builds the
// success=false response. The response's own TTS guidance must still be able
// to run after a deadline fault, so synthesis gets a detached context.
func (p *Pipeline) fail(ctx context.Context, requestID, sessionID string, start time.Time, f *faults.Fault) *response.ServerResponse {
	f = p.tracker.Record(f)
	p.monitor.LogError(requestID, f.Error())
	observe.Logger(ctx).Error("request failed",
		"request_id", requestID,
		"kind", string(f.Kind),
		"severity", string(f.Severity),
		"err", f.Error(),
	)
	resp := p.builder.BuildError(context.WithoutCancel(ctx), f, sessionID, start)
	return resp
}

// revalidate runs the upload validator against the spooled file: size on
// disk plus the WAV header, using the same policy as the HTTP boundary.
func (p *Pipeline) revalidate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return faults.Wrap(faults.AudioProcessingError, fmt.Errorf("pipeline: stat spooled upload: %w", err))
	}
	f, err := os.Open(path)
	if err != nil {
		return faults.Wrap(faults.AudioProcessingError, fmt.Errorf("pipeline: open spooled upload: %w", err))
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return faults.Wrap(faults.AudioProcessingError, fmt.Errorf("pipeline: read spooled upload: %w", err))
	}

	problems := p.validator.Validate(filepath.Base(path), info.Size(), head[:n])
	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(problems))
	for _, msg := range problems {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)
	return faults.New(faults.ValidationError, strings.Join(msgs, "; "))
}

// spool copies the upload into a temp WAV file and returns its path.
func (p *Pipeline) spool(audio io.Reader) (string, error) {
	tmp, err := os.CreateTemp(p.cfg.TempDir, "upload-*.wav")
	if err != nil {
		return "", fmt.Errorf("pipeline: create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, audio); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("pipeline: spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("pipeline: close temp file: %w", err)
	}
	return tmp.Name(), nil
}

func responseSize(resp *response.ServerResponse) int64 {
	data, err := json.Marshal(resp)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
