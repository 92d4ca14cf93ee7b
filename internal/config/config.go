// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port       int
	AppEnv     string // "development" or "production"
	AppVersion string
	RuntimeEnv string

	// Database
	DatabaseURL string
	DBMaxOpen   int
	DBMaxIdle   int

	// Encryption
	AppSecretKey  string
	EncryptionKey []byte // 32-byte key for AES-256-GCM, derived from AppSecretKey

	// CORS
	CORSOrigins []string

	// Worker
	WorkerPollInterval  time.Duration // idle sleep between claim attempts
	CancelPollInterval  time.Duration // how often running handlers re-read job status
	EntryBatchSize      int           // results per write transaction in entry processing
	EntryConcurrency    int           // semaphore size for concurrent link I/O
	ScrapeTimeout       time.Duration
	ProviderTimeout     time.Duration // default LLM call timeout
	ProviderSlowTimeout time.Duration // timeout for providers known to be slow
}

// Load reads configuration from environment variables.
// APP_SECRET_KEY is required; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 3000),
		AppEnv:      getEnv("APP_ENV", "development"),
		AppVersion:  getEnv("APP_VERSION", "dev"),
		RuntimeEnv:  getEnv("RUNTIME_ENV", "local"),
		DatabaseURL: getEnv("DATABASE_URL", "file:loreforge.db?_journal=WAL&_timeout=5000"),
		DBMaxOpen:   getEnvInt("DB_MAX_OPEN_CONNS", 300),
		DBMaxIdle:   getEnvInt("DB_MAX_IDLE_CONNS", 10),

		AppSecretKey: os.Getenv("APP_SECRET_KEY"),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:5173"}),

		WorkerPollInterval:  getEnvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		CancelPollInterval:  getEnvDuration("CANCEL_POLL_INTERVAL", 5*time.Second),
		EntryBatchSize:      getEnvInt("ENTRY_BATCH_SIZE", 10),
		EntryConcurrency:    getEnvInt("ENTRY_CONCURRENCY", 10),
		ScrapeTimeout:       getEnvDuration("SCRAPE_TIMEOUT", 10*time.Second),
		ProviderTimeout:     getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),
		ProviderSlowTimeout: getEnvDuration("PROVIDER_SLOW_TIMEOUT", 300*time.Second),
	}

	if cfg.AppSecretKey == "" {
		return nil, fmt.Errorf("APP_SECRET_KEY is required")
	}
	cfg.EncryptionKey = deriveEncryptionKey(cfg.AppSecretKey)

	return cfg, nil
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// deriveEncryptionKey creates a 32-byte AES-256 key from the app secret using
// HKDF-SHA256. The salt and info strings bind the key to its purpose; changing
// either invalidates every stored ciphertext.
func deriveEncryptionKey(secret string) []byte {
	salt := []byte("loreforge-encryption-key-v1")
	info := []byte("aes-256-gcm-credentials")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
