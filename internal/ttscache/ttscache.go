// Package ttscache is a content-addressed cache of synthesized audio files.
// Entries are keyed by a digest of the reply text and the voice
// configuration, bounded by TTL, entry count and total bytes, and coupled to
// their backing files: evicting an entry deletes its file.
package ttscache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTTL        = time.Hour
	DefaultMaxEntries = 100
	DefaultByteLimit  = 100 << 20 // 100 MiB

	// byteEvictTarget is the fill ratio eviction drives usage down to after
	// the byte limit is exceeded.
	byteEvictTarget = 0.8
)

// Key derives the cache key: lowercase hex SHA-256 over the text and the
// voice configuration serialized in sorted key order. Key is stable under
// map-iteration order.
func Key(text string, voice map[string]string) string {
	keys := make([]string, 0, len(voice))
	for k := range voice {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(text)
	for _, k := range keys {
		b.WriteString("\x00")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(voice[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	key         string
	path        string
	size        int64
	createdAt   time.Time
	lastAccess  time.Time
	accessCount int64
}

// Stats is a point-in-time cache summary.
type Stats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	ByteLimit  int64 `json:"byte_limit"`
	MaxEntries int   `json:"max_entries"`
	TTLSeconds int   `json:"ttl_seconds"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
}

// Cache is the audio cache. All operations hold one exclusive lock for their
// full read-modify-write.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	dir        string
	ttl        time.Duration
	maxEntries int
	byteLimit  int64

	totalBytes int64
	hits       int64
	misses     int64
	evictions  int64
}

// Option configures a [Cache].
type Option func(*Cache)

// WithTTL sets the entry time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMaxEntries sets the entry-count bound.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithByteLimit sets the total-bytes bound.
func WithByteLimit(n int64) Option {
	return func(c *Cache) { c.byteLimit = n }
}

// New creates the cache directory if needed and returns an empty cache.
func New(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ttscache: create dir %q: %w", dir, err)
	}
	c := &Cache{
		entries:    make(map[string]*entry),
		dir:        dir,
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		byteLimit:  DefaultByteLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Get returns the cached file path for (text, voice), or "" and false on a
// miss. A TTL-expired entry counts as a miss and is reaped on the spot.
func (c *Cache) Get(text string, voice map[string]string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[Key(text, voice)]
	if !ok {
		c.misses++
		return "", false
	}
	if c.expired(e, time.Now()) {
		c.removeLocked(e)
		c.misses++
		return "", false
	}
	e.lastAccess = time.Now()
	e.accessCount++
	c.hits++
	return e.path, true
}

// Resolve returns the file path for a raw cache key, for serving previously
// issued TTS URLs. Expired entries miss.
func (c *Cache) Resolve(fileID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fileID]
	if !ok || c.expired(e, time.Now()) {
		return "", false
	}
	e.lastAccess = time.Now()
	e.accessCount++
	return e.path, true
}

// Put records path as the audio for (text, voice). The file must already
// exist; its size feeds the byte budget. Returns false when the file cannot
// be stat'ed.
func (c *Cache) Put(text string, voice map[string]string, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("ttscache: rejecting unreadable file", "path", path, "err", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(text, voice)
	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}

	now := time.Now()
	c.entries[key] = &entry{
		key:        key,
		path:       path,
		size:       info.Size(),
		createdAt:  now,
		lastAccess: now,
	}
	c.totalBytes += info.Size()

	c.enforceCountLocked()
	c.enforceBytesLocked()
	return true
}

// Sweep reaps TTL-expired entries. Returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, e := range c.entries {
		if c.expired(e, now) {
			c.removeLocked(e)
			removed++
		}
	}
	return removed
}

// Clear drops every entry and deletes the backing files. Returns the number
// of entries removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	for _, e := range c.entries {
		c.removeLocked(e)
	}
	return n
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:    len(c.entries),
		TotalBytes: c.totalBytes,
		ByteLimit:  c.byteLimit,
		MaxEntries: c.maxEntries,
		TTLSeconds: int(c.ttl.Seconds()),
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
	}
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.createdAt) > c.ttl
}

// removeLocked drops an entry and best-effort deletes its file.
func (c *Cache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.totalBytes -= e.size
	c.evictions++
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("ttscache: failed to delete evicted file", "path", e.path, "err", err)
	}
}

// enforceCountLocked evicts least-recently-accessed entries until the count
// bound holds.
func (c *Cache) enforceCountLocked() {
	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		if lru := c.lruLocked(); lru != nil {
			c.removeLocked(lru)
		}
	}
}

// enforceBytesLocked evicts least-recently-accessed entries until usage is at
// or below 80% of the byte limit, once the limit has been exceeded.
func (c *Cache) enforceBytesLocked() {
	if c.byteLimit <= 0 || c.totalBytes <= c.byteLimit {
		return
	}
	target := int64(float64(c.byteLimit) * byteEvictTarget)
	for c.totalBytes > target && len(c.entries) > 0 {
		if lru := c.lruLocked(); lru != nil {
			c.removeLocked(lru)
		}
	}
}

func (c *Cache) lruLocked() *entry {
	var lru *entry
	for _, e := range c.entries {
		if lru == nil || e.lastAccess.Before(lru.lastAccess) {
			lru = e
		}
	}
	return lru
}

// Sweeper periodically reaps TTL-expired entries.
type Sweeper struct {
	cache    *Cache
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewSweeper starts a background sweep of cache every interval. Call
// [Sweeper.Stop] on shutdown.
func NewSweeper(cache *Cache, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	w := &Sweeper{
		cache:    cache,
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
			if n := w.cache.Sweep(); n > 0 {
				slog.Debug("ttscache: expired entries reaped", "count", n)
			}
		}
	}
}
