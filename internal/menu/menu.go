// Package menu provides the immutable in-memory menu catalog: items,
// categories, pricing, option validation, keyword and substring search, and
// hot reloading from the menu document.
//
// The catalog is read-mostly. Readers always observe a complete, consistent
// snapshot; every mutation (availability change, reload) builds a fresh
// snapshot and swaps it in atomically.
package menu

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Item is a single menu entry. Immutable after load except availability,
// which is changed through [Catalog.SetAvailability].
type Item struct {
	// Name is the unique catalog key.
	Name string `json:"name"`

	// Category is one of the catalog's declared category labels.
	Category string `json:"category"`

	// Price is the unit price in won.
	Price int64 `json:"price"`

	// Description is the human-readable description. Feeds the search index.
	Description string `json:"description"`

	// AvailableOptions maps an option key to its permitted values
	// (e.g., "type" -> ["단품", "세트", "라지세트"]).
	AvailableOptions map[string][]string `json:"available_options"`

	// Available reports whether the item can currently be ordered.
	Available bool `json:"available"`
}

// Restaurant holds display metadata from the menu document.
type Restaurant struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// snapshot is one immutable generation of the catalog. All maps are built
// once and never mutated afterwards.
type snapshot struct {
	restaurant    Restaurant
	categories    []string
	items         map[string]*Item // keyed by lowercased name
	names         []string         // original-case names, load order
	setPricing    map[string]int64 // option value -> surcharge (e.g., "세트" -> 2000)
	optionPricing map[string]int64 // "key=value" -> surcharge for non-type options
	keywords      map[string][]string
}

// Catalog is the concurrent-safe menu catalog.
type Catalog struct {
	mu   sync.Mutex // serialises snapshot replacement
	snap atomic.Pointer[snapshot]

	// source file state for hot reload; guarded by mu
	path      string
	lastMtime time.Time
}

// Validation error sentinels. The dialogue policy maps these to order error
// codes and user-facing messages.
var (
	ErrItemNotFound    = errors.New("menu: item not found")
	ErrItemUnavailable = errors.New("menu: item unavailable")
	ErrInvalidOption   = errors.New("menu: invalid option")
	ErrInvalidQuantity = errors.New("menu: quantity must be at least 1")
)

// Get returns the item with the given name (case-insensitive exact match).
func (c *Catalog) Get(name string) (*Item, bool) {
	it, ok := c.snap.Load().items[foldKey(name)]
	return it, ok
}

// Restaurant returns the restaurant metadata from the menu document.
func (c *Catalog) Restaurant() Restaurant {
	return c.snap.Load().restaurant
}

// Categories returns the declared category labels in document order.
func (c *Catalog) Categories() []string {
	return slices.Clone(c.snap.Load().categories)
}

// ItemsByCategory returns all items in the given category, ordered by name.
func (c *Catalog) ItemsByCategory(category string, availableOnly bool) []*Item {
	s := c.snap.Load()
	var out []*Item
	for _, name := range s.names {
		it := s.items[foldKey(name)]
		if it.Category != category {
			continue
		}
		if availableOnly && !it.Available {
			continue
		}
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b *Item) int {
		return compareStrings(a.Name, b.Name)
	})
	return out
}

// OptionSurcharge returns the price adjustment for an option value. The
// "type" option is priced from the set_pricing table; other options from
// option_pricing, keyed "key=value". Unknown values cost nothing.
func (c *Catalog) OptionSurcharge(key, value string) int64 {
	s := c.snap.Load()
	if key == "type" {
		return s.setPricing[value]
	}
	return s.optionPricing[key+"="+value]
}

// Validate checks that name resolves to an available item, that every option
// value appears in the item's permitted set, and that qty is at least 1.
func (c *Catalog) Validate(name string, qty int, options map[string]string) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	it, ok := c.Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, name)
	}
	if !it.Available {
		return fmt.Errorf("%w: %q", ErrItemUnavailable, name)
	}
	for key, value := range options {
		permitted, ok := it.AvailableOptions[key]
		if !ok || !slices.Contains(permitted, value) {
			return fmt.Errorf("%w: %s=%s for %q", ErrInvalidOption, key, value, name)
		}
	}
	return nil
}

// SetAvailability flips an item's availability flag and rebuilds the search
// index. Readers observe the change atomically.
func (c *Catalog) SetAvailability(name string, available bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.snap.Load()
	it, ok := old.items[foldKey(name)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, name)
	}
	if it.Available == available {
		return nil
	}

	next := old.clone()
	changed := *next.items[foldKey(name)]
	changed.Available = available
	next.items[foldKey(name)] = &changed
	next.keywords = buildKeywordIndex(next)
	c.snap.Store(next)
	return nil
}

// clone copies a snapshot deeply enough that item and index mutations on the
// copy never leak into the original.
func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		restaurant:    s.restaurant,
		categories:    slices.Clone(s.categories),
		items:         make(map[string]*Item, len(s.items)),
		names:         slices.Clone(s.names),
		setPricing:    s.setPricing,
		optionPricing: s.optionPricing,
	}
	for k, v := range s.items {
		next.items[k] = v
	}
	return next
}

// categoryRank returns the position of a category in the declared order.
// Unknown categories sort last.
func (s *snapshot) categoryRank(category string) int {
	if i := slices.Index(s.categories, category); i >= 0 {
		return i
	}
	return len(s.categories)
}
