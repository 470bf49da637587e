// Package whisper provides an on-box STT provider backed by the whisper.cpp
// CGO bindings. The model is loaded once at startup and shared across all
// requests; each transcription creates its own whisper context, which keeps
// concurrent requests isolated. The whisper.cpp static library (libwhisper.a)
// and headers must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/hanmaum-labs/voicekiosk/pkg/provider/stt"
	"github.com/hanmaum-labs/voicekiosk/pkg/wav"
)

// DefaultLanguage is the transcription language. Korean by default.
const DefaultLanguage = "ko"

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// Provider implements stt.Provider using the whisper.cpp Go bindings.
type Provider struct {
	model    whisperlib.Model
	language string
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: DefaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. It decodes the WAV file into float32
// mono samples and runs a single batch inference.
func (p *Provider) Transcribe(ctx context.Context, audioPath string) (*stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: read audio %q: %w", audioPath, err)
	}
	samples, dur, err := decodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("whisper: decode %q: %w", audioPath, err)
	}

	// Each whisper context is not thread-safe; the shared model is.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return &stt.Transcript{
		Text:     strings.Join(parts, " "),
		Language: p.language,
		Duration: dur,
	}, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "whisper-native" }

// decodeWAV extracts 16-bit PCM samples from a canonical WAV file and
// converts them to mono float32 in [-1, 1].
func decodeWAV(data []byte) ([]float32, time.Duration, error) {
	if !wav.IsWAV(data) || len(data) <= wav.HeaderSize {
		return nil, 0, errors.New("not a PCM WAV file")
	}
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	if channels <= 0 {
		channels = 1
	}
	pcm := data[wav.HeaderSize:]

	frames := len(pcm) / 2 / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
		}
		samples[i] = float32(sum/int32(channels)) / 32768.0
	}

	var dur time.Duration
	if sampleRate > 0 {
		dur = time.Duration(frames) * time.Second / time.Duration(sampleRate)
	}
	return samples, dur, nil
}
