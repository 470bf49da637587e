package faults

import (
	"sync"
	"time"
)

const (
	// frequentWindow and frequentThreshold define when a recurring fault
	// kind escalates: the same kind this many times within the window.
	frequentWindow    = 10 * time.Minute
	frequentThreshold = 5
)

// Tracker counts classified faults and escalates kinds that recur
// frequently. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	events map[Kind][]time.Time
	totals map[Kind]int64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		events: make(map[Kind][]time.Time),
		totals: make(map[Kind]int64),
	}
}

// Record registers an occurrence of f and returns the fault to surface:
// unchanged normally, or escalated to HIGH with a contact-support hint once
// the kind has fired frequentThreshold times inside frequentWindow.
func (t *Tracker) Record(f *Fault) *Fault {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-frequentWindow)

	recent := t.events[f.Kind]
	kept := recent[:0]
	for _, ts := range recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	t.events[f.Kind] = kept
	t.totals[f.Kind]++

	if len(kept) > frequentThreshold {
		esc := f.WithSeverity(SeverityHigh)
		esc.Recovery = append(append([]string{}, f.Recovery...), "문제가 반복되고 있습니다. 직원에게 문의해 주세요.")
		return esc
	}
	return f
}

// Stats returns the all-time occurrence count per kind.
func (t *Tracker) Stats() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.totals))
	for k, n := range t.totals {
		out[string(k)] = n
	}
	return out
}

// Total returns the all-time occurrence count across kinds.
func (t *Tracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total int64
	for _, n := range t.totals {
		total += n
	}
	return total
}

// Clear resets all counters.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = make(map[Kind][]time.Time)
	t.totals = make(map[Kind]int64)
}
