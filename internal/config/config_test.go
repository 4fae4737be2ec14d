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
	path := filepath.Join(t.TempDir(), "fisr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
risk:
  fat_finger_limit: 1.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "fisr.db", cfg.Database.DSN)
	assert.Equal(t, "yahoo", cfg.MarketData.Provider)
	assert.Equal(t, 5*24*time.Hour, cfg.MarketData.Lookback)
	assert.Equal(t, map[string]float64{"SHY": 1.92, "IEF": 7.45, "TLT": 16.80}, cfg.Universe.Candidates)
	assert.Equal(t, 100000.0, cfg.Universe.Floor())
	assert.Equal(t, 0.2, cfg.Rebalance.DriftThreshold)
	assert.Equal(t, 0.1, cfg.Rebalance.MinTradeShares)
	assert.Equal(t, 100000.0, cfg.Risk.ReferenceEquity)
	assert.Equal(t, 1.0, cfg.Risk.FatFingerLimit)
	assert.Equal(t, 0.20, cfg.Risk.TurnoverLimit)
	assert.False(t, cfg.Allocation.Enabled())
	assert.Equal(t, 0.10, cfg.Allocation.Threshold)
	assert.Equal(t, 5*time.Minute, cfg.MarketData.CacheTTL)
	assert.NotEmpty(t, cfg.Scheduler.Jobs)
}

func TestLoadRequiresFatFingerLimit(t *testing.T) {
	_, err := Load(writeConfig(t, "app:\n  name: fisr\n"))
	assert.ErrorContains(t, err, "fat_finger_limit")

	_, err = Load(writeConfig(t, "risk:\n  fat_finger_limit: 1.5\n"))
	assert.ErrorContains(t, err, "fat_finger_limit")
}

func TestLoadCandidatesReplaceDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
universe:
  candidates:
    VGSH: 1.9
    VGLT: 15.2
  liquidity_floor: 0
risk:
  fat_finger_limit: 0.5
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"VGSH": 1.9, "VGLT": 15.2}, cfg.Universe.Candidates)
	assert.Equal(t, 0.0, cfg.Universe.Floor())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FISR_DB_DRIVER", "postgres")
	t.Setenv("FISR_DB_DSN", "postgres://fisr@localhost/fisr?sslmode=disable")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("HTTP_PORT", "9191")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "risk:\n  fat_finger_limit: 1.0\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://fisr@localhost/fisr?sslmode=disable", cfg.Database.DSN)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]string{
		"unknown provider":  "marketdata:\n  provider: bloomberg\n",
		"rest without url":  "marketdata:\n  provider: rest\n",
		"static w/o quotes": "marketdata:\n  provider: static\n",
		"anchor not listed": "allocation:\n  anchor: BIL\n",
		"bad driver":        "database:\n  driver: mysql\n",
		"scrape w/o url":    "universe:\n  duration_refresh:\n    enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body+"risk:\n  fat_finger_limit: 1.0\n"))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
