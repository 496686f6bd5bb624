package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Redis price cache (optional; empty address disables caching)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PriceCacheTTL time.Duration

	// Market data provider
	MarketDataBaseURL string
	MarketDataTimeout time.Duration

	// Background jobs (cron specs with a seconds field)
	PriceSyncSchedule  string
	SnapshotSchedule   string
	CommissionSchedule string
	BroadcastSchedule  string

	// Pipeline endpoints (external triggers)
	PipelineAPIKey string
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "custodia"),
		DBPassword: getEnv("DB_PASSWORD", "custodia"),
		DBName:     getEnv("DB_NAME", "custodia"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Market data
		MarketDataBaseURL: getEnv("MARKET_DATA_BASE_URL", "https://query1.finance.yahoo.com"),

		// Jobs: daily sync after market close, metric snapshots once prices
		// have settled, commission run on the 1st, live-price broadcast
		// every five seconds.
		PriceSyncSchedule:  getEnv("PRICE_SYNC_SCHEDULE", "0 0 19 * * MON-FRI"),
		SnapshotSchedule:   getEnv("SNAPSHOT_SCHEDULE", "0 30 19 * * MON-FRI"),
		CommissionSchedule: getEnv("COMMISSION_SCHEDULE", "0 0 2 1 * *"),
		BroadcastSchedule:  getEnv("BROADCAST_SCHEDULE", "*/5 * * * * *"),

		PipelineAPIKey: getEnv("PIPELINE_API_KEY", ""),
	}

	config.JWTExpirationDur = getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour)
	config.PriceCacheTTL = getEnvDuration("PRICE_CACHE_TTL", time.Hour)
	config.MarketDataTimeout = getEnvDuration("MARKET_DATA_TIMEOUT", 15*time.Second)

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer environment variable, falling back on error.
func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration parses a duration environment variable, falling back on error.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}
