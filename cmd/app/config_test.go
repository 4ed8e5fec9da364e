package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ecoquest_miniapp/internal/model"
	"ecoquest_miniapp/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "logLevel: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, repository.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, cacheStoreMemory, cfg.Cache.Store)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL.StatsTTL)
	assert.Equal(t, time.Minute, cfg.Cache.TTL.MissionsTTL)
	assert.Equal(t, 10*time.Second, cfg.Cache.TTL.FenceTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.SweepInterval)
	assert.Equal(t, 100, cfg.Progression.XPPerLevel)
	assert.Equal(t, int64(10), cfg.Vitality.DecayAmount)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, []string{"127.0.0.1/32", "::1/128"}, cfg.Internal.AllowedCIDRs)
	assert.Equal(t, 24*time.Hour, cfg.TelegramAuth.Expiry)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  path: /tmp/eco.db
cache:
  store: redis
  missionsTTL: 30s
missions:
  daily:
    easy: 3
    medium: 2
progression:
  xpPerLevel: 250
internal:
  port: "9090"
  allowedCIDRs: ["10.0.0.0/8"]
timezone: Europe/Berlin
`)
	t.Setenv("APP_INTERNAL_TOKEN", "from-env")
	t.Setenv("APP_VITALITY_DECAYAMOUNT", "15")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, repository.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/eco.db", cfg.Database.Path)
	assert.Equal(t, cacheStoreRedis, cfg.Cache.Store)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL.MissionsTTL)
	assert.Equal(t, 3, cfg.Missions.Daily[model.DifficultyEasy])
	assert.Equal(t, 2, cfg.Missions.Daily[model.DifficultyMedium])
	assert.Equal(t, 250, cfg.Progression.XPPerLevel)
	assert.Equal(t, "9090", cfg.Internal.Port)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Internal.AllowedCIDRs)
	assert.Equal(t, "from-env", cfg.Internal.Token)
	assert.Equal(t, int64(15), cfg.Vitality.DecayAmount)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "cache:\n  store: memcached\n"))
	assert.Error(t, err)
}
