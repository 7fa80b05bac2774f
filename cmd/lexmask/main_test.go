package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/raaihank/lexmask/internal/alias"
	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/privacy"
	"github.com/raaihank/lexmask/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnce(t *testing.T) {
	store, err := alias.Load(context.Background(), storage.NewMemoryStore(), "k", logger.Nop())
	require.NoError(t, err)
	engine, err := privacy.New(config.GetDefaults().Privacy, store, nil, nil, logger.Nop())
	require.NoError(t, err)

	var masked bytes.Buffer
	require.NoError(t, runOnce(context.Background(), engine, "redact", strings.NewReader("write to a@b.com\n"), &masked))
	assert.Equal(t, "write to [Email_1]\n", masked.String())

	var restored bytes.Buffer
	require.NoError(t, runOnce(context.Background(), engine, "restore", &masked, &restored))
	assert.Equal(t, "write to a@b.com\n", restored.String())
}
