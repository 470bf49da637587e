// Package security implements the request gate: per-client sliding-window
// rate limiting, client IP extraction behind trusted proxies, upload
// validation and the standard security response headers.
package security

import (
	"sort"
	"sync"
	"time"
)

// Decision is the outcome of one rate-limit check, carrying everything the
// wire layer needs for the X-RateLimit-* headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration // set when denied
}

type bucket struct {
	starts       []time.Time
	blockedUntil time.Time
}

// RateLimiter tracks request starts per client IP over a sliding window.
// Exceeding the limit puts the client on a block list for the block
// duration. Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	max    int
	window time.Duration
	block  time.Duration
}

// NewRateLimiter allows max requests per window; offenders are blocked for
// block.
func NewRateLimiter(max int, window, block time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		max:     max,
		window:  window,
		block:   block,
	}
}

// Allow records a request start for ip and decides whether it may proceed.
// The request at the limit boundary is still allowed; the next one trips the
// block.
func (rl *RateLimiter) Allow(ip string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{}
		rl.buckets[ip] = b
	}

	if b.blockedUntil.After(now) {
		return Decision{
			Limit:      rl.max,
			Reset:      b.blockedUntil,
			RetryAfter: b.blockedUntil.Sub(now),
		}
	}

	cutoff := now.Add(-rl.window)
	kept := b.starts[:0]
	for _, ts := range b.starts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.starts = kept

	if len(b.starts) >= rl.max {
		b.blockedUntil = now.Add(rl.block)
		return Decision{
			Limit:      rl.max,
			Reset:      b.blockedUntil,
			RetryAfter: rl.block,
		}
	}

	b.starts = append(b.starts, now)
	return Decision{
		Allowed:   true,
		Limit:     rl.max,
		Remaining: rl.max - len(b.starts),
		Reset:     b.starts[0].Add(rl.window),
	}
}

// Stats summarizes limiter state for the security endpoints.
type Stats struct {
	MaxRequests   int      `json:"max_requests"`
	WindowSeconds int      `json:"window_seconds"`
	BlockSeconds  int      `json:"block_seconds"`
	ActiveClients int      `json:"active_clients"`
	BlockedIPs    []string `json:"blocked_ips"`
}

// Stats returns the limiter configuration plus currently tracked clients.
func (rl *RateLimiter) Stats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	var blocked []string
	for ip, b := range rl.buckets {
		if b.blockedUntil.After(now) {
			blocked = append(blocked, ip)
		}
	}
	sort.Strings(blocked)
	return Stats{
		MaxRequests:   rl.max,
		WindowSeconds: int(rl.window.Seconds()),
		BlockSeconds:  int(rl.block.Seconds()),
		ActiveClients: len(rl.buckets),
		BlockedIPs:    blocked,
	}
}

// Clear drops all tracked clients and blocks.
func (rl *RateLimiter) Clear() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buckets = make(map[string]*bucket)
}
