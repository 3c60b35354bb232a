package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PaymentChannel     string

	// Lock configuration. LockTTL is the single TTL shared by all callers;
	// it is not configurable per request.
	LockTTL      time.Duration
	SlotMutexTTL time.Duration
	MutexWait    time.Duration

	// Sweep configuration
	SweepInterval time.Duration
	SweepCron     string

	// Cancellation policy fallback when a turf has no cancellation_hours.
	DefaultCancellationNotice time.Duration

	// Deadline applied to multi-document store reads.
	StoreTimeout time.Duration

	// Payment webhook HMAC key and the bcrypt hash of the cleanup ops token.
	PaymentWebhookKey string
	CleanupTokenHash  string

	// Rate limiting
	LockRateLimit  int
	LockRateWindow time.Duration

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PaymentChannel:     getEnv("PAYMENT_CHANNEL", "payment-notifications"),

		// Locks
		LockTTL:      getEnvAsDuration("SLOT_LOCK_TTL", "10m"),
		SlotMutexTTL: getEnvAsDuration("SLOT_MUTEX_TTL", "3s"),
		MutexWait:    getEnvAsDuration("SLOT_MUTEX_WAIT", "500ms"),

		// Sweep
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", "2m"),
		SweepCron:     getEnv("SWEEP_CRON", "*/2 * * * *"),

		// Cancellation
		DefaultCancellationNotice: getEnvAsDuration("DEFAULT_CANCELLATION_NOTICE", "1h"),

		// Store deadlines
		StoreTimeout: getEnvAsDuration("STORE_TIMEOUT", "5s"),

		// Payment / ops
		PaymentWebhookKey: getEnv("PAYMENT_WEBHOOK_KEY", ""),
		CleanupTokenHash:  getEnv("CLEANUP_TOKEN_HASH", ""),

		// Rate limiting
		LockRateLimit:  getEnvAsInt("LOCK_RATE_LIMIT", 30),
		LockRateWindow: getEnvAsDuration("LOCK_RATE_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
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
