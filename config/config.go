package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Environment string

	// Database configuration
	DBDriver string
	DBDSN    string

	// Redis configuration (distributed locking)
	RedisURL          string
	UseRedisLocks     bool
	SettlementLockTTL time.Duration

	// House account credited by event settlements
	HouseAccountID string

	// PubNub configuration (settlement notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubUserID       string

	// Monitoring
	EnableMetrics   bool
	MetricsPort     string
	MonitorInterval time.Duration
}

func LoadConfig() *Config {
	// .env is optional, real deployments set the environment directly
	_ = godotenv.Load()

	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Database
		DBDriver: getEnv("DB_DRIVER", "sqlite"),
		DBDSN:    getEnv("DB_DSN", "file:ledger.db?_pragma=busy_timeout(5000)"),

		// Redis
		RedisURL:          getEnv("REDIS_URL", "localhost:6379"),
		UseRedisLocks:     getEnvAsBool("USE_REDIS_LOCKS", false),
		SettlementLockTTL: getEnvAsDuration("SETTLEMENT_LOCK_TTL", "30s"),

		// Ledger
		HouseAccountID: getEnv("HOUSE_ACCOUNT_ID", ""),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "ledger-server"),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		MonitorInterval: getEnvAsDuration("MONITOR_INTERVAL", "30s"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
