package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hanmaum-labs/voicekiosk/internal/dialogue"
	"github.com/hanmaum-labs/voicekiosk/internal/faults"
	"github.com/hanmaum-labs/voicekiosk/internal/intent"
	"github.com/hanmaum-labs/voicekiosk/internal/menu"
	"github.com/hanmaum-labs/voicekiosk/internal/response"
	"github.com/hanmaum-labs/voicekiosk/internal/security"
	"github.com/hanmaum-labs/voicekiosk/internal/session"
	"github.com/hanmaum-labs/voicekiosk/internal/ttscache"
	llmmock "github.com/hanmaum-labs/voicekiosk/pkg/provider/llm/mock"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/stt"
	sttmock "github.com/hanmaum-labs/voicekiosk/pkg/provider/stt/mock"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/tts"
	ttsmock "github.com/hanmaum-labs/voicekiosk/pkg/provider/tts/mock"
	"github.com/hanmaum-labs/voicekiosk/pkg/wav"
)

func testCatalog(t *testing.T) *menu.Catalog {
	t.Helper()
	c, err := menu.LoadBytes([]byte(`{
	  "categories": ["버거", "음료"],
	  "items": {
	    "빅맥": {"category": "버거", "price": 6500,
	             "available_options": {"type": ["단품", "세트", "라지세트"]}},
	    "콜라": {"category": "음료", "price": 2000}
	  },
	  "set_pricing": {"세트": 2000, "라지세트": 3000}
	}`))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	return c
}

type harness struct {
	pipeline *Pipeline
	stt      *sttmock.Provider
	llm      *llmmock.Provider
	tts      *ttsmock.Provider
	sessions *session.Registry
	tempDir  string
}

func newHarness(t *testing.T, cfg Config, sttProvider *sttmock.Provider, llmProvider *llmmock.Provider) *harness {
	t.Helper()
	if sttProvider == nil {
		sttProvider = &sttmock.Provider{
			Transcripts: []stt.Transcript{{Text: "빅맥 주세요", Language: "ko", Confidence: 0.95}},
		}
	}
	if llmProvider == nil {
		llmProvider = &llmmock.Provider{
			Responses: []string{`{"intent":"ORDER","confidence":0.9,"items":[{"name":"빅맥","quantity":1}]}`},
		}
	}
	ttsProvider := &ttsmock.Provider{}

	catalog := testCatalog(t)
	extractor := intent.NewExtractor(llmProvider, catalog)
	policy := dialogue.NewPolicy(catalog, llmProvider, dialogue.NewProgressStore(),
		dialogue.WithStepDelay(time.Millisecond))

	cache, err := ttscache.New(t.TempDir())
	if err != nil {
		t.Fatalf("ttscache.New: %v", err)
	}
	builder := response.NewBuilder(cache, tts.NewHolder(ttsProvider))
	sessions := session.NewRegistry(30*time.Minute, 20)

	cfg.TempDir = t.TempDir()
	p := New(cfg, sttProvider, extractor, policy, builder, sessions,
		WithValidator(security.NewFileValidator(10<<20, []string{".wav"})))
	return &harness{
		pipeline: p,
		stt:      sttProvider,
		llm:      llmProvider,
		tts:      ttsProvider,
		sessions: sessions,
		tempDir:  cfg.TempDir,
	}
}

func upload() *bytes.Reader {
	return bytes.NewReader(wav.Silent(50 * time.Millisecond))
}

func TestProcess_HappyPath(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, nil)

	resp := h.pipeline.Process(context.Background(), Request{Audio: upload(), ClientIP: "10.0.0.1", Size: 100})
	if !resp.Success {
		t.Fatalf("response = %+v, want success", resp)
	}
	if resp.SessionID == "" {
		t.Error("session ID missing from response")
	}
	if resp.OrderData == nil || len(resp.OrderData.Items) != 1 || resp.OrderData.Items[0].Name != "빅맥" {
		t.Errorf("order data = %+v, want one 빅맥 line", resp.OrderData)
	}
	if resp.TTSAudioURL == "" {
		t.Error("tts audio url missing")
	}

	met := h.pipeline.Monitor().CurrentMetrics()
	if met.TotalCompleted != 1 || met.TotalErrors != 0 {
		t.Errorf("monitor metrics = %+v", met)
	}
}

func TestProcess_SessionContinuity(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, nil)

	first := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	second := h.pipeline.Process(context.Background(), Request{
		SessionID: first.SessionID,
		Audio:     upload(),
	})
	if second.SessionID != first.SessionID {
		t.Errorf("session ID changed: %q -> %q", first.SessionID, second.SessionID)
	}
	if h.sessions.Count() != 1 {
		t.Errorf("sessions = %d, want 1", h.sessions.Count())
	}
}

func TestProcess_STTFailureIsRecoverable(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, &sttmock.Provider{Err: errors.New("backend unavailable")}, nil)

	resp := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	if resp.Success {
		t.Fatal("stt failure must yield success=false")
	}
	if resp.ErrorInfo == nil || resp.ErrorInfo.ErrorCode != string(faults.SpeechRecognitionError) {
		t.Errorf("error info = %+v, want SPEECH_RECOGNITION_ERROR", resp.ErrorInfo)
	}
	if resp.Message == "" || resp.TTSAudioURL == "" {
		t.Error("error responses still carry spoken guidance")
	}
	if h.pipeline.Tracker().Total() != 1 {
		t.Error("fault not recorded in tracker")
	}
	if h.pipeline.Monitor().CurrentMetrics().TotalErrors != 1 {
		t.Error("fault not recorded in monitor")
	}
}

func TestProcess_EmptyTranscript(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, &sttmock.Provider{
		Transcripts: []stt.Transcript{{Text: "   "}},
	}, nil)

	resp := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	if resp.Success {
		t.Fatal("empty transcript must yield success=false")
	}
	if resp.ErrorInfo.ErrorCode != string(faults.SpeechRecognitionError) {
		t.Errorf("error code = %s", resp.ErrorInfo.ErrorCode)
	}
	if len(h.llm.Requests) != 0 {
		t.Error("llm must not be called without a transcript")
	}
}

func TestProcess_LLMFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, &llmmock.Provider{Err: errors.New("completion rejected")})

	resp := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	if resp.Success {
		t.Fatal("llm failure must yield success=false")
	}
	if resp.ErrorInfo.ErrorCode != string(faults.IntentRecognitionError) {
		t.Errorf("error code = %s, want INTENT_RECOGNITION_ERROR", resp.ErrorInfo.ErrorCode)
	}
}

func TestProcess_TimeoutClassifiedAsTimeout(t *testing.T) {
	t.Parallel()
	slow := &sttmock.Provider{Err: context.DeadlineExceeded}
	h := newHarness(t, Config{RequestTimeout: time.Millisecond}, slow, nil)

	resp := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	if resp.Success {
		t.Fatal("timeout must yield success=false")
	}
	if resp.ErrorInfo.ErrorCode != string(faults.TimeoutError) {
		t.Errorf("error code = %s, want TIMEOUT_ERROR", resp.ErrorInfo.ErrorCode)
	}
}

func TestProcess_TempFilesRemoved(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, nil)

	// One success and one failure path; both must clean up.
	h.pipeline.Process(context.Background(), Request{Audio: upload()})
	h.stt.Err = errors.New("backend down")
	h.pipeline.Process(context.Background(), Request{Audio: upload()})

	entries, err := os.ReadDir(h.tempDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "upload-") {
			t.Errorf("leftover temp file %s", filepath.Join(h.tempDir, e.Name()))
		}
	}
}

func TestProcess_QueueFullShedsLoad(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{Workers: 1, QueueSize: 1}, nil, nil)

	// Saturate the admission queue without running workers.
	h.pipeline.queue <- struct{}{}
	h.pipeline.queue <- struct{}{}

	resp := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	if resp.Success {
		t.Fatal("saturated queue must shed the request")
	}
	if resp.ErrorInfo.ErrorCode != string(faults.ServerError) {
		t.Errorf("error code = %s, want SERVER_ERROR", resp.ErrorInfo.ErrorCode)
	}
	if len(h.stt.Calls) != 0 {
		t.Error("shed request must not reach the pipeline stages")
	}
}

// blockingSTT parks every Transcribe call until release is closed, holding
// its worker slot for the whole time.
type blockingSTT struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSTT) Name() string { return "blocking" }

func (b *blockingSTT) Transcribe(ctx context.Context, _ string) (*stt.Transcript, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &stt.Transcript{Text: "빅맥 주세요", Language: "ko", Confidence: 0.95}, nil
}

func TestProcess_WorkerSlotWaitIsBounded(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{Workers: 1, QueueSize: 2, RequestTimeout: 50 * time.Millisecond}, nil, nil)
	blocker := &blockingSTT{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h.pipeline.stt = blocker

	// Occupy the only worker.
	done := make(chan *response.ServerResponse, 1)
	go func() {
		done <- h.pipeline.Process(context.Background(), Request{Audio: upload()})
	}()
	<-blocker.entered

	// The second request is admitted but must not wait for a slot past its
	// deadline.
	resp := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	if resp.Success {
		t.Fatal("request waiting for a worker slot must fail once its deadline passes")
	}
	if resp.ErrorInfo.ErrorCode != string(faults.TimeoutError) {
		t.Errorf("error code = %s, want TIMEOUT_ERROR", resp.ErrorInfo.ErrorCode)
	}

	close(blocker.release)
	<-done
}

func TestProcess_RejectsNonWAVSpool(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, nil)

	resp := h.pipeline.Process(context.Background(), Request{
		Audio: strings.NewReader("ID3 tagged payload that is not RIFF audio"),
	})
	if resp.Success {
		t.Fatal("non-WAV spooled payload must be rejected")
	}
	if resp.ErrorInfo.ErrorCode != string(faults.ValidationError) {
		t.Errorf("error code = %s, want VALIDATION_ERROR", resp.ErrorInfo.ErrorCode)
	}
	if len(h.stt.Calls) != 0 {
		t.Error("rejected upload must not reach the stt provider")
	}
}

func TestProcess_RejectsOversizedSpool(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, nil, nil)
	h.pipeline.validator = security.NewFileValidator(64, []string{".wav"})

	resp := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	if resp.Success {
		t.Fatal("spooled file over the size limit must be rejected")
	}
	if resp.ErrorInfo.ErrorCode != string(faults.ValidationError) {
		t.Errorf("error code = %s, want VALIDATION_ERROR", resp.ErrorInfo.ErrorCode)
	}
	if len(h.stt.Calls) != 0 {
		t.Error("rejected upload must not reach the stt provider")
	}
}

func TestProcess_SerializesPerSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{}, &sttmock.Provider{
		Transcripts: []stt.Transcript{{Text: "빅맥 주세요"}},
	}, &llmmock.Provider{
		Responses: []string{`{"intent":"ORDER","confidence":0.9,"items":[{"name":"빅맥","quantity":1}]}`},
	})

	first := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	sess, ok := h.sessions.Get(first.SessionID)
	if !ok {
		t.Fatal("session not registered")
	}

	// Hold the session's turn slot; a second request must time out waiting.
	if err := sess.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer sess.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp := h.pipeline.Process(ctx, Request{SessionID: first.SessionID, Audio: upload()})
	if resp.Success {
		t.Fatal("request against a busy session must fail once its deadline passes")
	}
}

func TestProcess_FreshOrderAfterPayment(t *testing.T) {
	t.Parallel()
	llmProvider := &llmmock.Provider{Responses: []string{
		`{"intent":"ORDER","confidence":0.9,"items":[{"name":"빅맥","quantity":1}]}`,
		`{"intent":"PAYMENT","confidence":0.9}`,
		`{"intent":"PAYMENT","confidence":0.9,"raw_text":"네"}`,
	}}
	sttProvider := &sttmock.Provider{Transcripts: []stt.Transcript{
		{Text: "빅맥 주세요"}, {Text: "결제할게요"}, {Text: "네"},
	}}
	h := newHarness(t, Config{}, sttProvider, llmProvider)

	first := h.pipeline.Process(context.Background(), Request{Audio: upload()})
	second := h.pipeline.Process(context.Background(), Request{SessionID: first.SessionID, Audio: upload()})
	if second.OrderData == nil || !second.OrderData.RequiresConfirmation {
		t.Fatalf("payment request must ask for confirmation: %+v", second.OrderData)
	}

	third := h.pipeline.Process(context.Background(), Request{SessionID: first.SessionID, Audio: upload()})
	if !third.Success {
		t.Fatalf("confirmation turn failed: %+v", third.ErrorInfo)
	}
	if !strings.Contains(third.Message, "결제가 완료되었습니다!") {
		t.Errorf("reply = %q, want completed payment step", third.Message)
	}

	sess, _ := h.sessions.Get(first.SessionID)
	if !sess.Order.Empty() {
		t.Error("a fresh empty order must follow a completed payment")
	}
}

func TestResponseSize(t *testing.T) {
	t.Parallel()
	if responseSize(&response.ServerResponse{Message: "ok"}) == 0 {
		t.Error("marshalled response size must be non-zero")
	}
}
