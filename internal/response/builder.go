package response

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hanmaum-labs/voicekiosk/internal/dialogue"
	"github.com/hanmaum-labs/voicekiosk/internal/faults"
	"github.com/hanmaum-labs/voicekiosk/internal/ttscache"
	"github.com/hanmaum-labs/voicekiosk/pkg/provider/tts"
	"github.com/hanmaum-labs/voicekiosk/pkg/wav"
)

// ttsURLPrefix is where the wire layer serves cached audio from.
const ttsURLPrefix = "/api/voice/tts/"

// Builder assembles ServerResponses: it resolves TTS audio through the cache
// and derives the UI actions the client renders.
type Builder struct {
	cache  *ttscache.Cache
	holder *tts.Holder
}

// NewBuilder wires the builder to the audio cache and the active-provider
// holder.
func NewBuilder(cache *ttscache.Cache, holder *tts.Holder) *Builder {
	return &Builder{cache: cache, holder: holder}
}

// Build converts one dialogue turn into the wire response. TTS failures
// degrade to a silent placeholder clip; success stays true and the text
// reply is unaffected.
func (b *Builder) Build(ctx context.Context, d *dialogue.Response, sessionID string, start time.Time) *ServerResponse {
	ttsURL := b.resolveAudio(ctx, d.Reply)

	orderData := OrderDataFrom(d.Order, d.RequiresConfirmation)
	return &ServerResponse{
		Success:        true,
		Message:        d.Reply,
		TTSAudioURL:    ttsURL,
		OrderData:      orderData,
		UIActions:      deriveUIActions(d, orderData),
		ProcessingTime: time.Since(start).Seconds(),
		SessionID:      sessionID,
		Timestamp:      FormatTimestamp(time.Now()),
	}
}

// BuildError converts a classified fault into a success=false response on
// the same schema, including spoken guidance.
func (b *Builder) BuildError(ctx context.Context, f *faults.Fault, sessionID string, start time.Time) *ServerResponse {
	ttsURL := b.resolveAudio(ctx, f.Message)

	actions := make([]UIAction, 0, len(f.UIActions))
	for i, name := range f.UIActions {
		actions = append(actions, UIAction{
			ActionType: name,
			Priority:   i + 1,
		})
	}
	return &ServerResponse{
		Success:        false,
		Message:        f.Message,
		TTSAudioURL:    ttsURL,
		UIActions:      actions,
		ErrorInfo:      NewErrorInfo(f),
		ProcessingTime: time.Since(start).Seconds(),
		SessionID:      sessionID,
		Timestamp:      FormatTimestamp(time.Now()),
	}
}

// resolveAudio returns the TTS URL for text, synthesizing and caching on a
// miss. Returns "" only when even the placeholder cannot be written.
func (b *Builder) resolveAudio(ctx context.Context, text string) string {
	if text == "" {
		return ""
	}
	provider := b.holder.Current()
	voice := provider.Voice().Fingerprint()
	key := ttscache.Key(text, voice)

	if _, ok := b.cache.Get(text, voice); ok {
		return ttsURLPrefix + key
	}

	audio, err := provider.Synthesize(ctx, text)
	if err != nil {
		slog.Warn("tts synthesis failed, using silent placeholder",
			"provider", provider.Name(), "err", err)
		audio = wav.SilentForText(text)
	}

	path := filepath.Join(b.cache.Dir(), key+".wav")
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		slog.Error("failed to write tts audio", "path", path, "err", err)
		return ""
	}
	b.cache.Put(text, voice, path)
	return ttsURLPrefix + key
}

// deriveUIActions builds the action list: order updates, confirmation
// dialogs, suggested-action tags, then reply-text keyword heuristics.
func deriveUIActions(d *dialogue.Response, orderData *OrderData) []UIAction {
	var actions []UIAction
	have := map[string]bool{}
	add := func(a UIAction) {
		if have[a.ActionType] {
			return
		}
		have[a.ActionType] = true
		a.Priority = len(actions) + 1
		actions = append(actions, a)
	}

	if orderData != nil {
		add(UIAction{
			ActionType: "update_order",
			Data:       map[string]any{"order": orderData},
		})
	}

	paymentWording := strings.Contains(d.Reply, "결제") || strings.Contains(d.Reply, "계산")
	if d.RequiresConfirmation {
		choices := []string{"예", "아니오"}
		if paymentWording {
			choices = []string{"결제 진행", "주문 수정", "취소"}
		}
		add(UIAction{
			ActionType:        "show_confirmation",
			Data:              map[string]any{"message": d.Reply, "choices": choices},
			RequiresUserInput: true,
		})
	}

	for _, tag := range d.SuggestedActions {
		switch tag {
		case "show_menu":
			add(UIAction{ActionType: "show_menu"})
		case "show_payment":
			add(UIAction{ActionType: "show_payment"})
		}
	}

	if paymentWording {
		add(UIAction{ActionType: "show_payment"})
	}
	if strings.Contains(d.Reply, "메뉴") {
		add(UIAction{ActionType: "show_menu"})
	}
	return actions
}
