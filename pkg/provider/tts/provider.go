// Package tts defines the Provider interface for Text-to-Speech backends.
//
// The kiosk synthesises one complete reply at a time and serves the result as
// a WAV download, so the interface is batch: a provider receives the full
// reply text and returns a finished WAV clip. The voice configuration is fixed
// at construction; its Fingerprint feeds the content-addressed TTS cache so
// that clips are never shared across differing voice setups.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"strconv"
)

// VoiceConfig specifies the voice parameters a provider was built with.
type VoiceConfig struct {
	// Provider is the TTS provider name (e.g., "openai", "elevenlabs").
	Provider string

	// Model selects the synthesis model (e.g., "tts-1").
	Model string

	// Voice is the provider-specific voice identifier (e.g., "nova").
	Voice string

	// Speed adjusts speaking rate; 0 means provider default.
	Speed float64

	// Format is the audio output format (e.g., "wav", "pcm_16000").
	Format string
}

// Fingerprint returns the cache-key components of the voice configuration as
// a flat string map. The TTS cache serialises this map with sorted keys, so
// two equal configurations always produce the same digest.
func (v VoiceConfig) Fingerprint() map[string]string {
	fp := map[string]string{
		"provider": v.Provider,
		"model":    v.Model,
		"voice":    v.Voice,
		"format":   v.Format,
	}
	if v.Speed != 0 {
		fp["speed"] = strconv.FormatFloat(v.Speed, 'f', -1, 64)
	}
	return fp
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text to a complete WAV clip. Respect ctx
	// cancellation; a partial clip must never be returned.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Voice returns the configuration this provider synthesises with.
	Voice() VoiceConfig

	// Name returns the provider's registry name.
	Name() string
}
