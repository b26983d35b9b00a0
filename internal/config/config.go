package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName    string
	AppVersion string
	Port       string

	Environment   string
	AdminAPIToken string

	// Queue store selection: "postgres" (durable server-side variant) or
	// "file" (single-document JSON store for standalone deployments).
	StoreBackend string
	StorePath    string

	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Coordinator behaviour.
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryCapDelay     time.Duration
	MaxInFlight       int
	DrainPollInterval time.Duration
	DrainBatchSize    int

	// Reachability probing.
	ProbeInterval time.Duration

	// Update notifier polling.
	UpdateCheckInterval time.Duration

	SnowflakeNodeID int64
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	_ = godotenv.Load()
	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "syncwave"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Port:          getenv("PORT", "8082"),
		Environment:   environment,
		AdminAPIToken: strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),

		StoreBackend: strings.ToLower(getenv("STORE_BACKEND", "postgres")),
		StorePath:    getenv("STORE_PATH", "data/syncwave-queue.json"),

		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "syncwave"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     10,
		DBMaxOpenConn:     100,
		DBConnMaxLifetime: 3600,
		DBConnMaxIdleTime: 60,

		MaxAttempts:       getenvInt("SYNC_MAX_ATTEMPTS", 5),
		RetryBaseDelay:    time.Second * time.Duration(getenvInt("SYNC_RETRY_BASE_DELAY", 10)),
		RetryCapDelay:     time.Second * time.Duration(getenvInt("SYNC_RETRY_CAP_DELAY", 300)),
		MaxInFlight:       getenvInt("SYNC_MAX_IN_FLIGHT", 1),
		DrainPollInterval: time.Second * time.Duration(getenvInt("SYNC_DRAIN_POLL_INTERVAL", 5)),
		DrainBatchSize:    getenvInt("SYNC_DRAIN_BATCH_SIZE", 25),

		ProbeInterval: time.Second * time.Duration(getenvInt("REACHABILITY_PROBE_INTERVAL", 45)),

		UpdateCheckInterval: time.Second * time.Duration(getenvInt("UPDATE_CHECK_INTERVAL", 60)),

		SnowflakeNodeID: getenvInt64("SNOWFLAKE_NODE_ID", 1),
	}

	return &cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
