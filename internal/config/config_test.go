package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KARTOTEKA_TEST_KEY", "s3cret")

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
  api_key: ${KARTOTEKA_TEST_KEY}
  rate_limit:
    rps: 5
database:
  path: `+filepath.Join(dir, "data", "k.db")+`
locking:
  backend: redis
  wait_seconds: 2
ledger:
  max_range_days: 90
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort())
	assert.Equal(t, "s3cret", cfg.HTTP.APIKey)
	rps, burst := cfg.RateLimit()
	assert.Equal(t, 5.0, rps)
	assert.Equal(t, 20, burst)
	assert.Equal(t, LockRedis, cfg.LockBackend())
	assert.Equal(t, 2*time.Second, cfg.LockWait())
	assert.Equal(t, 10*time.Second, cfg.LockTTL())
	assert.Equal(t, 90, cfg.Ledger.MaxRangeDays)
	assert.Equal(t, "configs/catalog.yaml", cfg.Catalog.Path)
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestDefaults(t *testing.T) {
	var cfg Config
	assert.Equal(t, 8080, cfg.HTTPPort())
	assert.Equal(t, LockLocal, cfg.LockBackend())
	assert.Equal(t, 5*time.Minute, cfg.CatalogTTL())
	assert.Equal(t, 30*time.Second, cfg.CatalogReloadInterval())
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval())
	assert.Equal(t, 7*24*time.Hour, cfg.BackupRetention())
	assert.Equal(t, "backups", cfg.BackupPath())
	assert.Equal(t, "kartoteka.reservations", cfg.EventsQueue())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
