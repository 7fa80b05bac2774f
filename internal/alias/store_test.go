package alias

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testKey = "lexmask_entity_map"

func emptyStore(t require.TestingT) (*Store, *storage.MemoryStore) {
	backend := storage.NewMemoryStore()
	s, err := Load(context.Background(), backend, testKey, logger.Nop())
	require.NoError(t, err)
	return s, backend
}

func TestGetOrCreateMintsSequentialTokens(t *testing.T) {
	ctx := context.Background()
	s, _ := emptyStore(t)

	tok, err := s.GetOrCreate(ctx, "John Smith", CategoryPerson)
	require.NoError(t, err)
	assert.Equal(t, "[Client_1]", tok)

	tok, err = s.GetOrCreate(ctx, "jane@example.com", CategoryEmail)
	require.NoError(t, err)
	assert.Equal(t, "[Email_1]", tok)

	tok, err = s.GetOrCreate(ctx, "Jane Doe", CategoryPerson)
	require.NoError(t, err)
	assert.Equal(t, "[Client_2]", tok)
}

func TestGetOrCreateIsIdempotentOnTrimmedKey(t *testing.T) {
	ctx := context.Background()
	s, _ := emptyStore(t)

	first, err := s.GetOrCreate(ctx, "  Acme Corp ", CategoryOrganization)
	require.NoError(t, err)
	second, err := s.GetOrCreate(ctx, "Acme Corp", CategoryOrganization)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "Acme Corp", s.Resolve(first))
}

func TestGetOrCreateRejectsInvalidOriginals(t *testing.T) {
	ctx := context.Background()
	s, _ := emptyStore(t)

	_, err := s.GetOrCreate(ctx, "   ", CategoryPerson)
	assert.ErrorIs(t, err, ErrEmptyOriginal)

	_, err = s.GetOrCreate(ctx, "[Client_4]", CategoryPerson)
	assert.ErrorIs(t, err, ErrTokenOriginal)

	_, err = s.GetOrCreate(ctx, "x", Category("Planet"))
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestResolveUnknownTokenPassesThrough(t *testing.T) {
	s, _ := emptyStore(t)
	assert.Equal(t, "[Client_999]", s.Resolve("[Client_999]"))
	assert.Equal(t, "plain", s.Resolve("plain"))
}

func TestPersistedShapeIsPairList(t *testing.T) {
	ctx := context.Background()
	s, backend := emptyStore(t)

	_, err := s.GetOrCreate(ctx, "John Smith", CategoryPerson)
	require.NoError(t, err)

	data, err := backend.Get(ctx, testKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[["John Smith","[Client_1]"],["[Client_1]","John Smith"]]`, data)
}

func TestLoadRestoresMapping(t *testing.T) {
	ctx := context.Background()
	s, backend := emptyStore(t)

	for i, name := range []string{"Alice Archer", "Bob Baker"} {
		tok, err := s.GetOrCreate(ctx, name, CategoryPerson)
		require.NoError(t, err)
		assert.Equal(t, FormatToken(CategoryPerson, i+1), tok)
	}
	_, err := s.GetOrCreate(ctx, "Initech LLC", CategoryOrganization)
	require.NoError(t, err)

	reloaded, err := Load(ctx, backend, testKey, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, s.Entries(), reloaded.Entries())

	tok, err := reloaded.GetOrCreate(ctx, "Carol Chen", CategoryPerson)
	require.NoError(t, err)
	assert.Equal(t, "[Client_3]", tok)
	assert.Equal(t, "Bob Baker", reloaded.Resolve("[Client_2]"))
}

func TestLoadCorruptDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	require.NoError(t, backend.Set(ctx, testKey, `{"not":"pairs"`))

	s, err := Load(ctx, backend, testKey, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	backup, err := backend.Get(ctx, testKey+".corrupt")
	require.NoError(t, err)
	assert.Equal(t, `{"not":"pairs"`, backup)
}

func TestLoadSkipsGapsWithoutCollision(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	require.NoError(t, backend.Set(ctx, testKey,
		`[["A One","[Client_1]"],["[Client_1]","A One"],["C Three","[Client_3]"],["[Client_3]","C Three"]]`))

	s, err := Load(ctx, backend, testKey, logger.Nop())
	require.NoError(t, err)

	tok, err := s.GetOrCreate(ctx, "D Four", CategoryPerson)
	require.NoError(t, err)
	assert.Equal(t, "[Client_4]", tok)
}

func TestLoadDropsConflictingPairs(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStore()
	require.NoError(t, backend.Set(ctx, testKey,
		`[["Alpha","[Client_1]"],["Beta","[Client_1]"],["Gamma","not-a-token"],["[Email_1]","a@b.co"]]`))

	s, err := Load(ctx, backend, testKey, logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, "Alpha", s.Resolve("[Client_1]"))
	assert.Equal(t, "a@b.co", s.Resolve("[Email_1]"))
	_, ok := s.Lookup("Beta")
	assert.False(t, ok)
	_, ok = s.Lookup("Gamma")
	assert.False(t, ok)
}

func TestLoadPropagatesBackendFailure(t *testing.T) {
	_, err := Load(context.Background(), failingBackend{}, testKey, logger.Nop())
	assert.Error(t, err)
}

func TestPersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s, backend := emptyStore(t)

	backend.FailWrites = errors.New("disk full")
	_, err := s.GetOrCreate(ctx, "John Smith", CategoryPerson)
	require.Error(t, err)
	assert.Equal(t, 0, s.Len())

	backend.FailWrites = nil
	tok, err := s.GetOrCreate(ctx, "John Smith", CategoryPerson)
	require.NoError(t, err)
	assert.Equal(t, "[Client_1]", tok, "sequence number must not be burned by a failed write")
}

func TestCountByCategory(t *testing.T) {
	ctx := context.Background()
	s, _ := emptyStore(t)

	for _, v := range []string{"a@b.co", "c@d.co"} {
		_, err := s.GetOrCreate(ctx, v, CategoryEmail)
		require.NoError(t, err)
	}
	_, err := s.GetOrCreate(ctx, "Project Falcon", CategoryCustom)
	require.NoError(t, err)

	counts := s.CountByCategory()
	assert.Equal(t, 2, counts[CategoryEmail])
	assert.Equal(t, 1, counts[CategoryCustom])
	assert.Zero(t, counts[CategoryPerson])
}

func TestAliasingInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s, backend := emptyStore(t)

		originals := rapid.SliceOfN(rapid.StringMatching(`[A-Za-z][A-Za-z .@]{0,10}`), 1, 40).Draw(t, "originals")
		minted := make(map[Category][]string)
		seen := make(map[string]string)

		for i, original := range originals {
			category := rapid.SampledFrom(Categories).Draw(t, fmt.Sprintf("category_%d", i))
			key := strings.TrimSpace(original)

			tok, err := s.GetOrCreate(ctx, original, category)
			if err != nil {
				t.Fatalf("GetOrCreate(%q): %v", original, err)
			}

			if prev, ok := seen[key]; ok {
				if prev != tok {
					t.Fatalf("original %q got %s then %s", key, prev, tok)
				}
				continue
			}
			seen[key] = tok
			c, _, _ := ParseToken(tok)
			minted[c] = append(minted[c], tok)
		}

		// Sequence numbers per category are exactly 1..N.
		for c, tokens := range minted {
			for i, tok := range tokens {
				if want := FormatToken(c, i+1); tok != want {
					t.Fatalf("category %s: token %d is %s, want %s", c, i, tok, want)
				}
			}
		}

		// Bijective in both directions.
		if s.Len() != len(seen) {
			t.Fatalf("store has %d entries, want %d", s.Len(), len(seen))
		}
		for original, tok := range seen {
			if got := s.Resolve(tok); got != original {
				t.Fatalf("Resolve(%s) = %q, want %q", tok, got, original)
			}
		}

		// Reload reproduces the same mapping.
		reloaded, err := Load(ctx, backend, testKey, logger.Nop())
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if len(reloaded.Entries()) != s.Len() {
			t.Fatalf("reloaded %d entries, want %d", len(reloaded.Entries()), s.Len())
		}
	})
}

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func (failingBackend) Set(context.Context, string, string) error {
	return errors.New("connection refused")
}

func (failingBackend) Close() error { return nil }
