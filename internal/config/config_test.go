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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
  log_path: logs/tmatic.log
ledger:
  database_path: data/test.db
  append_queue: 64
http:
  enabled: true
  listen: ":9000"
instruments_path: configs/instruments.yaml
markets:
  - name: Binance
    account: 1001
    strategies: [bot1, bot2]
    limits:
      - strategy: bot1
        symbol: BTCUSDT
        limit: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "data/test.db", cfg.Ledger.DatabasePath)
	assert.Equal(t, 64, cfg.Ledger.AppendQueue)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, ":9000", cfg.HTTP.Listen)
	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, int64(1001), cfg.Markets[0].Account)
	assert.Equal(t, []string{"bot1", "bot2"}, cfg.Markets[0].Strategies)
	require.Len(t, cfg.Markets[0].Limits, 1)
	assert.Equal(t, 10.0, cfg.Markets[0].Limits[0].Limit)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
markets:
  - name: Binance
    account: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "data/ledger.db", cfg.Ledger.DatabasePath)
	assert.Equal(t, "data/recon_log.db", cfg.Ledger.EventLogPath)
	assert.Equal(t, 1024, cfg.Ledger.AppendQueue)
	assert.Equal(t, 4096, cfg.Dispatch.QueueCapacity)
	assert.Equal(t, 1024, cfg.Dispatch.NotifyCapacity)
	assert.Equal(t, ":8880", cfg.HTTP.Listen)
	assert.False(t, cfg.HTTP.Enabled)
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	_, err := Load("  ")
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateNoMarkets(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: info
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one market")
}

func TestValidateDuplicateMarket(t *testing.T) {
	path := writeConfig(t, `
markets:
  - name: Binance
  - name: Binance
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate market")
}

func TestValidateNegativeLimit(t *testing.T) {
	path := writeConfig(t, `
markets:
  - name: Binance
    limits:
      - strategy: bot1
        symbol: BTCUSDT
        limit: -1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative limit")
}
