package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	full := writeTempJSON(t, dir, "full.json", map[string]any{
		"database_dsn":         "postgres://x",
		"master_key":           validKey,
		"log_backend":          "zap",
		"operation_timeout":    "2s",
		"migration_batch_size": 10,
		"migration_workers":    2,
		"hard_delete_notes":    true,
	})
	partial := writeTempJSON(t, dir, "partial.json", map[string]any{
		"log_backend": "zap",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", full}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "postgres://x", cfg.DatabaseDSN)
		assert.Equal(t, validKey, cfg.MasterKey)
		assert.Equal(t, "zap", cfg.LogBackend)
		assert.Equal(t, 2*time.Second, cfg.OperationTimeout)
		assert.Equal(t, 10, cfg.MigrationBatchSize)
		assert.Equal(t, 2, cfg.MigrationWorkers)
		assert.True(t, cfg.HardDeleteNotes)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "zap", cfg.LogBackend)
		assert.Equal(t, 10*time.Second, cfg.OperationTimeout)
		assert.Equal(t, 100, cfg.MigrationBatchSize)
	})

	t.Run("no config flag leaves config untouched", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{DatabaseDSN: "keep"}
		parseJson(cfg)
		assert.Equal(t, "keep", cfg.DatabaseDSN)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		os.Args = []string{"testbin", "-config", bad}

		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
