package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// opportunisticSweepEvery bounds how often a sweep may piggyback on a
// registry access, independent of the background sweeper.
const opportunisticSweepEvery = time.Minute

// Registry allocates sessions and reclaims idle ones. Safe for concurrent
// use.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time

	idleTimeout  time.Duration
	historyLimit int
}

// NewRegistry builds a registry. Sessions untouched for idleTimeout are
// eligible for eviction; each session's conversation history is capped at
// historyLimit turns.
func NewRegistry(idleTimeout time.Duration, historyLimit int) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		lastSweep:    time.Now(),
		idleTimeout:  idleTimeout,
		historyLimit: historyLimit,
	}
}

// GetOrCreate resolves id to its session, creating one when id is empty or
// unknown. An empty id gets a fresh UUID. Accessing the registry touches the
// session and may opportunistically sweep idle peers.
func (r *Registry) GetOrCreate(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.maybeSweepLocked()

	if id != "" {
		if s, ok := r.sessions[id]; ok {
			s.Touch()
			return s
		}
	} else {
		id = uuid.NewString()
	}

	s := newSession(id, r.historyLimit)
	r.sessions[id] = s
	slog.Debug("session created", "session_id", id)
	return s
}

// Get returns the session for id without creating one.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		s.Touch()
	}
	return s, ok
}

// End removes the session for id. Returns false when id is unknown.
func (r *Registry) End(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	slog.Debug("session ended", "session_id", id)
	return true
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts every session idle past the timeout and returns how many were
// removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked()
}

func (r *Registry) maybeSweepLocked() {
	if time.Since(r.lastSweep) < opportunisticSweepEvery {
		return
	}
	r.sweepLocked()
}

func (r *Registry) sweepLocked() int {
	cutoff := time.Now().Add(-r.idleTimeout)
	removed := 0
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	r.lastSweep = time.Now()
	if removed > 0 {
		slog.Info("idle sessions reclaimed", "count", removed)
	}
	return removed
}

// Sweeper periodically reclaims idle sessions in the background.
type Sweeper struct {
	registry *Registry
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewSweeper starts a background sweep of registry every interval. Call
// [Sweeper.Stop] on shutdown.
func NewSweeper(registry *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	w := &Sweeper{
		registry: registry,
		interval: interval,
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Stop stops the sweeper.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Sweeper) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.registry.Sweep()
		}
	}
}
