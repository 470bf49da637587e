package menu

import (
	"slices"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for the fuzzy
// fallbacks ([Catalog.Search] stage 4 and [Catalog.ResolveName]).
const fuzzyThreshold = 0.85

// SearchResult carries one page of search hits plus the total match count
// before the limit was applied.
type SearchResult struct {
	Items []*Item
	Total int
}

// Search finds menu items matching query. Matching stages:
//
//  1. Exact name lookup (case-insensitive).
//  2. Keyword index: words of length >= 2 and their adjacent 2-grams, built
//     from names and descriptions at load time.
//  3. Substring scan over item names.
//  4. Fuzzy (Jaro-Winkler) name match, only when the stages above found
//     nothing.
//
// Results are de-duplicated and ordered by (category, name) using the
// declared category order; limit is applied after ordering. limit <= 0 means
// no limit. Search never mutates the catalog and is safe for concurrent use.
func (c *Catalog) Search(query, category string, availableOnly bool, limit int) SearchResult {
	s := c.snap.Load()
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}
	}

	seen := make(map[string]bool)
	var hits []*Item
	add := func(it *Item) {
		key := foldKey(it.Name)
		if seen[key] {
			return
		}
		seen[key] = true
		hits = append(hits, it)
	}

	// Stage 1: exact name.
	if it, ok := s.items[foldKey(query)]; ok {
		add(it)
	}

	// Stage 2: keyword index.
	for _, token := range tokenize(query) {
		for _, name := range s.keywords[token] {
			add(s.items[foldKey(name)])
		}
	}

	// Stage 3: substring scan over names.
	folded := foldKey(query)
	for _, name := range s.names {
		if strings.Contains(foldKey(name), folded) {
			add(s.items[foldKey(name)])
		}
	}

	// Stage 4: fuzzy fallback.
	if len(hits) == 0 {
		for _, name := range s.names {
			if matchr.JaroWinkler(folded, foldKey(name), true) >= fuzzyThreshold {
				add(s.items[foldKey(name)])
			}
		}
	}

	// Filter.
	filtered := hits[:0]
	for _, it := range hits {
		if category != "" && it.Category != category {
			continue
		}
		if availableOnly && !it.Available {
			continue
		}
		filtered = append(filtered, it)
	}

	slices.SortFunc(filtered, func(a, b *Item) int {
		if ra, rb := s.categoryRank(a.Category), s.categoryRank(b.Category); ra != rb {
			return ra - rb
		}
		return compareStrings(a.Name, b.Name)
	})

	total := len(filtered)
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return SearchResult{Items: slices.Clone(filtered), Total: total}
}

// ResolveName maps a possibly-imprecise item name (as extracted by the LLM)
// to a catalog name. Exact match wins; otherwise the closest fuzzy candidate
// above the threshold. Returns ok=false when nothing is close enough.
func (c *Catalog) ResolveName(name string) (string, bool) {
	s := c.snap.Load()
	if it, ok := s.items[foldKey(name)]; ok {
		return it.Name, true
	}

	best := ""
	bestScore := fuzzyThreshold
	folded := foldKey(name)
	for _, candidate := range s.names {
		score := matchr.JaroWinkler(folded, foldKey(candidate), true)
		if score >= bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best, best != ""
}

// buildKeywordIndex indexes every item under the tokens of its name and
// description. Tokens are alphanumeric/CJK words of length >= 2 plus every
// adjacent 2-gram within each word.
func buildKeywordIndex(s *snapshot) map[string][]string {
	idx := make(map[string][]string)
	for _, name := range s.names {
		it := s.items[foldKey(name)]
		tokens := tokenize(it.Name + " " + it.Description)
		for _, token := range tokens {
			if !slices.Contains(idx[token], it.Name) {
				idx[token] = append(idx[token], it.Name)
			}
		}
	}
	return idx
}

// tokenize splits text into lowercase alphanumeric/CJK words of length >= 2
// and appends every adjacent 2-gram within each word.
func tokenize(text string) []string {
	var tokens []string
	var word []rune
	flush := func() {
		if len(word) >= 2 {
			tokens = append(tokens, string(word))
			for i := 0; i+1 < len(word); i++ {
				tokens = append(tokens, string(word[i:i+2]))
			}
		}
		word = word[:0]
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word = append(word, r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// foldKey normalises a name for use as a map key.
func foldKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// compareStrings is a strings.Compare shim used by the sort callbacks.
func compareStrings(a, b string) int {
	return strings.Compare(a, b)
}
