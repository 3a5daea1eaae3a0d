package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"ENVIRONMENT", "DB_DRIVER", "DB_DSN", "REDIS_URL", "USE_REDIS_LOCKS",
		"SETTLEMENT_LOCK_TTL", "HOUSE_ACCOUNT_ID", "ENABLE_METRICS",
		"METRICS_PORT", "MONITOR_INTERVAL",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.False(t, cfg.UseRedisLocks)
	assert.Equal(t, 30*time.Second, cfg.SettlementLockTTL)
	assert.True(t, cfg.EnableMetrics)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("USE_REDIS_LOCKS", "true")
	t.Setenv("SETTLEMENT_LOCK_TTL", "45s")
	t.Setenv("HOUSE_ACCOUNT_ID", "acc-1")
	t.Setenv("METRICS_PORT", "9100")

	cfg := LoadConfig()
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.True(t, cfg.UseRedisLocks)
	assert.Equal(t, 45*time.Second, cfg.SettlementLockTTL)
	assert.Equal(t, "acc-1", cfg.HouseAccountID)
	assert.Equal(t, "9100", cfg.MetricsPort)
}

func TestDurationFallback(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL", "not-a-duration")
	cfg := LoadConfig()
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval)
}
