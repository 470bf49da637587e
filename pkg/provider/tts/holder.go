package tts

import "sync/atomic"

// Holder is the hot-swappable slot for the active TTS provider. Readers get
// a consistent provider for the duration of one request; Swap installs a new
// provider without interrupting in-flight synthesis.
type Holder struct {
	current atomic.Pointer[providerBox]
}

type providerBox struct {
	p Provider
}

// NewHolder returns a holder with p installed.
func NewHolder(p Provider) *Holder {
	h := &Holder{}
	h.current.Store(&providerBox{p: p})
	return h
}

// Current returns the active provider.
func (h *Holder) Current() Provider {
	return h.current.Load().p
}

// Swap installs p as the active provider and returns the previous one.
func (h *Holder) Swap(p Provider) Provider {
	old := h.current.Swap(&providerBox{p: p})
	return old.p
}
