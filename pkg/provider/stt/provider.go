// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The kiosk front-end delivers complete utterances as WAV uploads, so the
// interface is batch rather than streaming: a provider receives the path of a
// request-scoped audio file and returns a single authoritative transcript.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Transcript is the result of transcribing one uploaded clip.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Language is the detected or configured BCP-47 language code (e.g., "ko").
	Language string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64

	// Duration is the length of the audio clip, when known.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe reads the WAV file at audioPath and returns its transcript.
	// The file is request-scoped; implementations must not retain the path
	// after returning. Respect ctx cancellation for remote calls.
	Transcribe(ctx context.Context, audioPath string) (*Transcript, error)

	// Name returns the provider's registry name (e.g., "openai", "whisper-native").
	Name() string
}
