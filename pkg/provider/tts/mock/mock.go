// Package mock provides an in-memory tts.Provider for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/hanmaum-labs/voicekiosk/pkg/provider/tts"
	"github.com/hanmaum-labs/voicekiosk/pkg/wav"
)

// Provider is a configurable fake TTS provider. By default it returns a short
// silent WAV clip for any input.
type Provider struct {
	mu sync.Mutex

	// Audio, when non-nil, is returned by every Synthesize call.
	Audio []byte

	// Err, when non-nil, is returned by every Synthesize call.
	Err error

	// VoiceCfg is returned by Voice. Zero value gets a "mock" provider name.
	VoiceCfg tts.VoiceConfig

	// Texts records every text passed to Synthesize.
	Texts []string
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, text string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Texts = append(p.Texts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Audio != nil {
		return p.Audio, nil
	}
	return wav.Silent(100 * time.Millisecond), nil
}

// Voice implements tts.Provider.
func (p *Provider) Voice() tts.VoiceConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.VoiceCfg.Provider == "" {
		return tts.VoiceConfig{Provider: "mock", Format: "wav"}
	}
	return p.VoiceCfg
}

// Name implements tts.Provider.
func (p *Provider) Name() string { return "mock" }
