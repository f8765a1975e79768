package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigReadsYAML(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: /tmp/gift.db
lock:
  driver: local
  wait_timeout: 2s
gift:
  exchange_rate: "0.1"
  shares:
    owner: "0.05"
  luck_table:
    - { multiple: 5, weight: 10 }
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "local", cfg.Lock.Driver)
	assert.Equal(t, 2*time.Second, cfg.Lock.WaitTimeout)
	assert.Equal(t, "0.1", cfg.Gift.ExchangeRate)
	assert.Equal(t, "0.05", cfg.Gift.Shares.Owner)
	assert.Equal(t, "0", cfg.Gift.Shares.Host, "unset share falls back to default")
	require.Len(t, cfg.Gift.LuckTable, 1)
	assert.Equal(t, int64(5), cfg.Gift.LuckTable[0].Multiple)
	assert.Equal(t, int64(500), cfg.Gift.BroadcastThreshold)
	assert.Equal(t, time.Second, cfg.Gift.RoomNoticeDelay)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "oracle"},
		Lock:     LockConfig{Driver: "zookeeper"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "database.dsn")
	assert.Contains(t, err.Error(), "lock.driver")
	assert.Contains(t, err.Error(), "lock.wait_timeout")
}
