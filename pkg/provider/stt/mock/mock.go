// Package mock provides an in-memory stt.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/hanmaum-labs/voicekiosk/pkg/provider/stt"
)

// Provider is a configurable fake STT provider.
type Provider struct {
	mu sync.Mutex

	// Transcripts is returned by successive Transcribe calls; when exhausted
	// the last element repeats.
	Transcripts []stt.Transcript

	// Err, when non-nil, is returned by every Transcribe call.
	Err error

	// Calls records the audio paths passed to Transcribe.
	Calls []string

	idx int
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(_ context.Context, audioPath string) (*stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, audioPath)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Transcripts) == 0 {
		return &stt.Transcript{}, nil
	}
	t := p.Transcripts[p.idx]
	if p.idx < len(p.Transcripts)-1 {
		p.idx++
	}
	return &t, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "mock" }
