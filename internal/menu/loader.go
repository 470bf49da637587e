package menu

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"
)

// document is the on-disk menu schema.
type document struct {
	Restaurant    Restaurant           `json:"restaurant"`
	Categories    []string             `json:"categories"`
	Items         map[string]*docItem  `json:"items"`
	SetPricing    map[string]int64     `json:"set_pricing"`
	OptionPricing map[string]int64     `json:"option_pricing"`
}

// docItem is an item entry in the menu document; the map key is the name.
type docItem struct {
	Category         string              `json:"category"`
	Price            int64               `json:"price"`
	Description      string              `json:"description"`
	AvailableOptions map[string][]string `json:"available_options"`
	Available        *bool               `json:"available"` // nil means true
}

// Load reads the menu document at path and returns a ready Catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("menu: read %q: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("menu: stat %q: %w", path, err)
	}
	snap, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("menu: parse %q: %w", path, err)
	}

	c := &Catalog{path: path, lastMtime: info.ModTime()}
	c.snap.Store(snap)
	return c, nil
}

// LoadBytes builds a Catalog directly from menu document bytes, with no
// backing file (and therefore no hot reload). Useful in tests.
func LoadBytes(data []byte) (*Catalog, error) {
	snap, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("menu: parse document: %w", err)
	}
	c := &Catalog{}
	c.snap.Store(snap)
	return c, nil
}

// parse decodes and validates a menu document, returning the snapshot it
// describes.
func parse(data []byte) (*snapshot, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if len(doc.Items) == 0 {
		return nil, errors.New("menu document has no items")
	}

	declared := make(map[string]bool, len(doc.Categories))
	for _, cat := range doc.Categories {
		declared[cat] = true
	}

	s := &snapshot{
		restaurant:    doc.Restaurant,
		categories:    doc.Categories,
		items:         make(map[string]*Item, len(doc.Items)),
		setPricing:    doc.SetPricing,
		optionPricing: doc.OptionPricing,
	}
	if s.setPricing == nil {
		s.setPricing = map[string]int64{}
	}
	if s.optionPricing == nil {
		s.optionPricing = map[string]int64{}
	}

	var errs []error
	for name, di := range doc.Items {
		key := foldKey(name)
		if _, dup := s.items[key]; dup {
			errs = append(errs, fmt.Errorf("duplicate item name %q", name))
			continue
		}
		if !declared[di.Category] {
			errs = append(errs, fmt.Errorf("item %q: category %q is not declared", name, di.Category))
			continue
		}
		if di.Price < 0 {
			errs = append(errs, fmt.Errorf("item %q: price must be non-negative", name))
			continue
		}
		available := di.Available == nil || *di.Available
		s.items[key] = &Item{
			Name:             name,
			Category:         di.Category,
			Price:            di.Price,
			Description:      di.Description,
			AvailableOptions: di.AvailableOptions,
			Available:        available,
		}
		s.names = append(s.names, name)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	// Deterministic iteration order regardless of JSON map ordering.
	sortNames(s)
	s.keywords = buildKeywordIndex(s)
	return s, nil
}

// sortNames orders names by (declared category order, name).
func sortNames(s *snapshot) {
	slices.SortFunc(s.names, func(a, b string) int {
		ia, ib := s.items[foldKey(a)], s.items[foldKey(b)]
		if ra, rb := s.categoryRank(ia.Category), s.categoryRank(ib.Category); ra != rb {
			return ra - rb
		}
		return compareStrings(a, b)
	})
}

// Reload re-parses the source file when its modification time is newer than
// the one observed at the previous load. Readers keep seeing the old snapshot
// until the new one is fully built. Returns true when a reload happened.
func (c *Catalog) Reload() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return false, nil
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return false, fmt.Errorf("menu: stat %q: %w", c.path, err)
	}
	if !info.ModTime().After(c.lastMtime) {
		return false, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return false, fmt.Errorf("menu: read %q: %w", c.path, err)
	}
	snap, err := parse(data)
	if err != nil {
		// Keep the old snapshot; the caller decides whether to log or fail.
		return false, fmt.Errorf("menu: parse %q: %w", c.path, err)
	}

	c.snap.Store(snap)
	c.lastMtime = info.ModTime()
	return true, nil
}

// Watcher monitors the menu file for changes and reloads the catalog when the
// file is modified. It uses polling (not fsnotify) to keep dependencies
// minimal; [Catalog.Reload] skips the re-parse unless the mtime advanced.
type Watcher struct {
	catalog  *Catalog
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher starts a background poller that reloads catalog every interval.
// Call [Watcher.Stop] on shutdown.
func NewWatcher(catalog *Catalog, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w := &Watcher{
		catalog:  catalog,
		interval: interval,
		done:     make(chan struct{}),
	}
	go w.poll()
	return w
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

// poll runs in a background goroutine, checking the menu file periodically.
func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			reloaded, err := w.catalog.Reload()
			if err != nil {
				slog.Warn("menu watcher: reload failed, keeping current catalog", "err", err)
				continue
			}
			if reloaded {
				slog.Info("menu watcher: catalog reloaded", "path", w.catalog.path)
			}
		}
	}
}
