package privacy

import (
	"context"
	"strings"
	"testing"

	"github.com/raaihank/lexmask/internal/alias"
	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/storage"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRoundTripProperty(t *testing.T) {
	word := rapid.StringMatching(`[a-z]{1,8}`)
	email := rapid.StringMatching(`[a-z]{1,6}@[a-z]{1,6}\.(com|org|net)`)
	name := rapid.StringMatching(`[A-Z][a-z]{2,6} [A-Z][a-z]{2,6}`)

	rapid.Check(t, func(rt *rapid.T) {
		parts := rapid.SliceOfN(rapid.OneOf(word, word, email, name), 1, 12).Draw(rt, "parts")
		text := strings.Join(parts, " , ")

		store, err := alias.Load(context.Background(), storage.NewMemoryStore(), "k", logger.Nop())
		require.NoError(rt, err)
		e, err := New(config.GetDefaults().Privacy, store, nil, nil, logger.Nop())
		require.NoError(rt, err)

		res, err := e.Redact(context.Background(), text)
		require.NoError(rt, err)
		require.Equal(rt, text, e.Restore(res.Text))

		again, err := e.Redact(context.Background(), res.Text)
		require.NoError(rt, err)
		require.Equal(rt, res.Text, again.Text)
	})
}
