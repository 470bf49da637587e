// Package openai provides a TTS provider backed by the OpenAI speech API.
// It implements the tts.Provider interface.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hanmaum-labs/voicekiosk/pkg/provider/tts"
)

const (
	// DefaultModel is the default speech synthesis model.
	DefaultModel = "tts-1"

	// DefaultVoice is the default voice identifier.
	DefaultVoice = "nova"
)

var _ tts.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	model   string
	voice   string
	speed   float64
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel sets the synthesis model (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithVoice sets the voice identifier (e.g., "nova", "alloy").
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithSpeed sets the speaking rate in [0.25, 4.0].
func WithSpeed(speed float64) Option {
	return func(c *config) { c.speed = speed }
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client oai.Client
	voice  tts.VoiceConfig
}

// New constructs an OpenAI TTS provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}

	cfg := &config{model: DefaultModel, voice: DefaultVoice}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		voice: tts.VoiceConfig{
			Provider: "openai",
			Model:    cfg.model,
			Voice:    cfg.voice,
			Speed:    cfg.speed,
			Format:   "wav",
		},
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("openai tts: text must not be empty")
	}

	params := oai.AudioSpeechNewParams{
		Model:          p.voice.Model,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice.Voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	}
	if p.voice.Speed != 0 {
		params.Speed = oai.Float(p.voice.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	return data, nil
}

// Voice implements tts.Provider.
func (p *Provider) Voice() tts.VoiceConfig { return p.voice }

// Name implements tts.Provider.
func (p *Provider) Name() string { return "openai" }
