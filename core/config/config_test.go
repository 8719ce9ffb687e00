package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 3, cfg.Retrieval.MemoryLimit)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
database:
  path: /tmp/custom.db
retrieval:
  memory_limit: 7
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, 7, cfg.Retrieval.MemoryLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: /tmp/from-yaml.db\n"), 0o644))

	t.Setenv("ENGRAM_DB_PATH", "/tmp/from-env.db")
	t.Setenv("ENGRAM_MEMORY_LIMIT", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Retrieval.MemoryLimit)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = ""
	assert.ErrorIs(t, cfg.Validate(), ErrMissingDBPath)

	cfg = DefaultConfig()
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKey = ""
	assert.ErrorIs(t, cfg.Validate(), ErrMissingProviderKey)

	cfg = DefaultConfig()
	cfg.Retrieval.MinVectorScore = 1.5
	assert.Error(t, cfg.Validate())

	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidateLocalProviderNeedsNoKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "local"
	cfg.Embedding.APIKey = ""
	assert.NoError(t, cfg.Validate())
}
