package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the gateway, the settlement worker,
// the notifier and the reporter. Each binary reads the subset it needs.
type Config struct {
	AppName  string
	LogLevel string
	HTTPPort string

	DatabaseURL string
	RedisAddr   string
	AmqpURL     string

	JobQueue        string
	NotifyQueue     string
	DeadLetterQueue string
	PrefetchCount   int
	WorkerCount     int

	JobLogPath string

	// WhatsApp settings from the environment override the stored
	// configuration row, which overrides the hardcoded defaults.
	WhatsAppDeviceID   string
	WhatsAppAdminGroup string
	WhaCenterBaseURL   string

	AIBaseURL string

	ProviderTimeout     time.Duration
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration

	ReportTimezone string
}

// Load reads the environment (an optional .env file first) and validates
// the fields every binary depends on.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:  getEnv("APP_NAME", "chika-settlement"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),
		AmqpURL:     getEnv("AMQP_URL", ""),

		JobQueue:        getEnv("JOB_QUEUE", "settlement.jobs"),
		NotifyQueue:     getEnv("NOTIFY_QUEUE", "whatsapp.outbox"),
		DeadLetterQueue: getEnv("DEAD_LETTER_QUEUE", "settlement.dlq"),
		PrefetchCount:   getEnvAsInt("PREFETCH_COUNT", 50),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 5),

		JobLogPath: getEnv("JOB_LOG_PATH", "./data/joblog.db"),

		WhatsAppDeviceID:   getEnv("WHATSAPP_DEVICE_ID", ""),
		WhatsAppAdminGroup: getEnv("WHATSAPP_ADMIN_GROUP", ""),
		WhaCenterBaseURL:   getEnv("WHACENTER_BASE_URL", "https://app.whacenter.com"),

		AIBaseURL: getEnv("AI_BASE_URL", "http://localhost:9002"),

		ProviderTimeout:     getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
		RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 4),
		RetryInitialBackoff: getEnvAsDuration("RETRY_INITIAL_BACKOFF", time.Second),
		RetryMaxBackoff:     getEnvAsDuration("RETRY_MAX_BACKOFF", 15*time.Second),

		ReportTimezone: getEnv("REPORT_TIMEZONE", "Asia/Jakarta"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.AmqpURL == "" {
		missing = append(missing, "AMQP_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

func getEnv(key, def string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
