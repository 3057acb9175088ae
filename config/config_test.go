package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 40, cfg.Feed.PageSize)
	assert.Equal(t, 55*time.Minute, cfg.Feed.SessionTTL)
	assert.Equal(t, 0.6, cfg.Ledger.UserPercentage)
	assert.Equal(t, 0.1, cfg.Ledger.ReferralPercentage)
	assert.Equal(t, int64(5000), cfg.Ledger.MinCashoutAmount)
	assert.Equal(t, 30*time.Minute, cfg.Worker.ReconcileInterval)
	assert.Equal(t, "events:achievements", cfg.Worker.EventQueue)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CBL_DATABASE_HOST", "db.internal")
	t.Setenv("CBL_LEDGER_BONUS_PERCENTAGE", "0.25")
	t.Setenv("CBL_WORKER_RECONCILE_INTERVAL", "5m")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 0.25, cfg.Ledger.BonusPercentage)
	assert.Equal(t, 5*time.Minute, cfg.Worker.ReconcileInterval)
}

func TestLoad_FileConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
ledger:
  min_cashout_amount: 10000
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(10000), cfg.Ledger.MinCashoutAmount)
	assert.Equal(t, "localhost", cfg.Database.Host, "unset keys fall back to defaults")
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db", Port: 5432, User: "app", Password: "secret",
		DBName: "ledger", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://app:secret@db:5432/ledger?sslmode=disable", d.DSN())
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())
}
