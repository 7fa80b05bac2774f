package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg := GetDefaults()
	require.NoError(t, validateConfig(cfg))
	assert.Equal(t, "auto", cfg.Privacy.ProperNounFallback)
	assert.Equal(t, "lexmask_entity_map", cfg.Storage.AliasKey)
	assert.Equal(t, "lexmask_blacklist", cfg.Storage.BlacklistKey)
	assert.Contains(t, cfg.Privacy.OrganizationSuffixes, "GmbH")
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
privacy:
  blacklist: ["Project Falcon", "acme"]
  proper_noun_fallback: never
storage:
  backend: memory
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"Project Falcon", "acme"}, cfg.Privacy.Blacklist)
	assert.Equal(t, "never", cfg.Privacy.ProperNounFallback)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	// untouched sections keep their defaults
	assert.Equal(t, " 🔒", cfg.Privacy.Marker)
	assert.Equal(t, "lexmask_entity_map", cfg.Storage.AliasKey)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port", "server:\n  port: 70000\n"},
		{"fallback", "privacy:\n  proper_noun_fallback: sometimes\n"},
		{"backend", "storage:\n  backend: floppy\n"},
		{"level", "logging:\n  level: verbose\n"},
		{"ner backend", "ner:\n  enabled: true\n  backend: spacy\n"},
		{"trusted proxy", "security:\n  trusted_proxies: [\"10.0.0.0/33\"]\n"},
		{"password only", "server:\n  password: hunter2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}
