// Package alias implements the bidirectional alias store: a persistent,
// bijective mapping between sensitive originals and [Category_N] tokens.
package alias

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/storage"
	"go.uber.org/zap"
)

var (
	// ErrEmptyOriginal is returned for originals that are empty after trimming.
	ErrEmptyOriginal = errors.New("alias: original is empty")
	// ErrTokenOriginal is returned when the original is itself a token.
	ErrTokenOriginal = errors.New("alias: original is already a token")
)

// Entry is one stored alias.
type Entry struct {
	Original string   `json:"original"`
	Token    string   `json:"token"`
	Category Category `json:"category"`
}

// Store is the process-wide alias map. Mutations are serialised and each one
// is persisted to the backend before GetOrCreate returns, so the durable copy
// is always a prefix of the sequence of mints.
type Store struct {
	mu      sync.RWMutex
	backend storage.Store
	key     string
	logger  *logger.Logger

	forward map[string]string // original -> token
	reverse map[string]string // token -> original
	entries []Entry
	seq     map[Category]int // last sequence number minted per category
}

func newStore(backend storage.Store, key string, log *logger.Logger) *Store {
	return &Store{
		backend: backend,
		key:     key,
		logger:  log,
		forward: make(map[string]string),
		reverse: make(map[string]string),
		seq:     make(map[Category]int),
	}
}

// Load reads the alias list stored under key. A missing key yields an empty
// store. A malformed value is copied to <key>.corrupt and also yields an
// empty store. Backend read failures are returned.
func Load(ctx context.Context, backend storage.Store, key string, log *logger.Logger) (*Store, error) {
	s := newStore(backend, key, log)

	data, err := backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("Alias store initialized empty", zap.String("key", key))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alias store: %w", err)
	}

	pairs, err := decodePairs(data)
	if err != nil {
		log.Warn("Persisted alias list is malformed, starting empty",
			zap.String("key", key),
			zap.Error(err),
		)
		if berr := backend.Set(ctx, key+".corrupt", data); berr != nil {
			log.Error("Failed to back up malformed alias list", zap.Error(berr))
		}
		return s, nil
	}

	dropped := s.restore(pairs)
	if dropped > 0 {
		log.Warn("Dropped inconsistent alias pairs", zap.Int("dropped", dropped))
	}

	log.Info("Alias store loaded",
		zap.String("key", key),
		zap.Int("aliases", len(s.entries)),
	)
	return s, nil
}

// restore rebuilds the maps from decoded pairs and returns the number of
// pairs that could not be used.
func (s *Store) restore(pairs [][2]string) int {
	dropped := 0
	used := make([]bool, len(pairs))
	counts := make(map[Category]int)

	add := func(original, token string) bool {
		original = strings.TrimSpace(original)
		if original == "" || IsToken(original) {
			return false
		}
		c, n, ok := ParseToken(token)
		if !ok {
			return false
		}
		if _, exists := s.forward[original]; exists {
			return false
		}
		if _, exists := s.reverse[token]; exists {
			return false
		}
		s.insert(Entry{Original: original, Token: token, Category: c})
		counts[c]++
		if n > s.seq[c] {
			s.seq[c] = n
		}
		return true
	}

	// Forward halves first, in persisted order.
	for i, p := range pairs {
		if !IsToken(p[0]) {
			used[i] = add(p[0], p[1])
		}
	}

	// A reverse half without its forward partner still identifies an alias.
	for i, p := range pairs {
		if used[i] || !IsToken(p[0]) {
			continue
		}
		if original, ok := s.reverse[p[0]]; ok && original == strings.TrimSpace(p[1]) {
			used[i] = true
			continue
		}
		used[i] = add(p[1], p[0])
	}

	for i := range pairs {
		if !used[i] {
			dropped++
		}
	}

	// The next sequence number must be past both the count and the highest
	// stored number so a gap in a hand-edited list never causes a collision.
	for c, n := range counts {
		if n > s.seq[c] {
			s.seq[c] = n
		}
	}
	return dropped
}

func (s *Store) insert(e Entry) {
	s.forward[e.Original] = e.Token
	s.reverse[e.Token] = e.Original
	s.entries = append(s.entries, e)
}

// GetOrCreate returns the token for original, minting and persisting a new
// one if the trimmed original has not been seen before.
func (s *Store) GetOrCreate(ctx context.Context, original string, category Category) (string, error) {
	key := strings.TrimSpace(original)
	if key == "" {
		return "", ErrEmptyOriginal
	}
	if IsToken(key) {
		return "", ErrTokenOriginal
	}
	if _, err := ParseCategory(string(category)); err != nil {
		return "", err
	}

	s.mu.RLock()
	token, ok := s.forward[key]
	s.mu.RUnlock()
	if ok {
		return token, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.forward[key]; ok {
		return token, nil
	}

	n := s.seq[category] + 1
	token = FormatToken(category, n)
	s.insert(Entry{Original: key, Token: token, Category: category})
	s.seq[category] = n

	if err := s.persistLocked(ctx); err != nil {
		delete(s.forward, key)
		delete(s.reverse, token)
		s.entries = s.entries[:len(s.entries)-1]
		s.seq[category] = n - 1
		return "", err
	}

	s.logger.Debug("Alias minted",
		zap.String("category", string(category)),
		zap.String("token", token),
	)
	return token, nil
}

// persistLocked writes the full pair list. Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context) error {
	data, err := encodePairs(s.entries)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		s.logger.Error("Failed to persist alias store", zap.Error(err))
		return fmt.Errorf("failed to persist alias store: %w", err)
	}
	return nil
}

// Resolve returns the original for token, or token itself when unknown.
func (s *Store) Resolve(token string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if original, ok := s.reverse[token]; ok {
		return original
	}
	return token
}

// Lookup returns the token already assigned to original, if any.
func (s *Store) Lookup(original string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.forward[strings.TrimSpace(original)]
	return token, ok
}

// Len returns the number of aliases.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of all aliases in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// CountByCategory returns the number of aliases per category.
func (s *Store) CountByCategory() map[Category]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Category]int, len(Categories))
	for _, e := range s.entries {
		counts[e.Category]++
	}
	return counts
}
