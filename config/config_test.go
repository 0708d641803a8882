package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
store_root: /data/tables
lock:
  retries: 10
  retry_interval: 250ms
workers: 8
compaction:
  max_delta_files: 2
cleanup:
  rate_per_second: 50
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/tables", c.StoreRoot)
	assert.Equal(t, 10, c.Lock.Retries)
	assert.Equal(t, 250*time.Millisecond, c.Lock.RetryInterval)
	assert.Equal(t, 8, c.Workers)
	assert.Equal(t, 2, c.Compaction.MaxDeltaFiles)
	// Untouched keys keep their defaults.
	assert.Equal(t, Default().Compaction.MaxDeltaBytes, c.Compaction.MaxDeltaBytes)
	assert.Equal(t, 50.0, c.Cleanup.RatePerSecond)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, "workers: -1\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "workers")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "lock: [not a map\n")
	_, err := Load(path)
	require.Error(t, err)
}
