// Package mock provides an in-memory llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/hanmaum-labs/voicekiosk/pkg/provider/llm"
)

// Provider is a configurable fake LLM provider.
type Provider struct {
	mu sync.Mutex

	// Responses is returned by successive Complete calls; when exhausted the
	// last element repeats.
	Responses []string

	// Err, when non-nil, is returned by every Complete call.
	Err error

	// Requests records every request passed to Complete.
	Requests []llm.CompletionRequest

	idx int
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	content := p.Responses[p.idx]
	if p.idx < len(p.Responses)-1 {
		p.idx++
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "mock" }
