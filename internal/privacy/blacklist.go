package privacy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/raaihank/lexmask/internal/alias"
	"github.com/raaihank/lexmask/internal/storage"
)

// Blacklist holds the user's literal terms. It is persisted as a
// comma-separated string under its storage key.
type Blacklist struct {
	mu      sync.RWMutex
	terms    []string
	patterns []*regexp.Regexp // longest term first

	backend storage.Store
	key     string
}

// NewBlacklist creates an empty blacklist. backend may be nil, in which
// case changes are kept in memory only.
func NewBlacklist(backend storage.Store, key string) *Blacklist {
	return &Blacklist{backend: backend, key: key}
}

// ParseTerms splits a comma-separated list, trimming blanks and dropping
// empty and duplicate terms.
func ParseTerms(raw string) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

// Load reads the persisted terms. It reports false when nothing was stored.
func (b *Blacklist) Load(ctx context.Context) (bool, error) {
	if b.backend == nil {
		return false, nil
	}

	raw, err := b.backend.Get(ctx, b.key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load blacklist: %w", err)
	}

	b.swap(ParseTerms(raw))
	return true, nil
}

// Set replaces the terms and persists them. Terms containing commas are
// split, since the stored form is comma-separated.
func (b *Blacklist) Set(ctx context.Context, terms []string) error {
	normalized := ParseTerms(strings.Join(terms, ","))

	if b.backend != nil {
		if err := b.backend.Set(ctx, b.key, strings.Join(normalized, ",")); err != nil {
			return fmt.Errorf("failed to persist blacklist: %w", err)
		}
	}

	b.swap(normalized)
	return nil
}

func (b *Blacklist) swap(terms []string) {
	patterns := make([]*regexp.Regexp, 0, len(terms))
	for _, t := range longestFirst(terms) {
		patterns = append(patterns, literalPattern(t))
	}

	b.mu.Lock()
	b.terms = terms
	b.patterns = patterns
	b.mu.Unlock()
}

// Terms returns a copy of the current terms.
func (b *Blacklist) Terms() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string{}, b.terms...)
}

func (b *Blacklist) snapshot() []*regexp.Regexp {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.patterns
}

func (b *Blacklist) Name() string { return DetectorBlacklist }

// Find matches every term as a whole word, longer terms first so they win
// overlaps with their own prefixes.
func (b *Blacklist) Find(_ context.Context, p *Pass) []Span {
	var spans []Span
	for _, re := range b.snapshot() {
		spans = append(spans, wordSpans(re, p.Text, alias.CategoryCustom)...)
	}
	return spans
}
