// Package config loads daemon configuration from environment variables and
// the optional YAML watchlist file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds daemon configuration.
type Config struct {
	Port     string
	LogLevel string

	// AgentID is the identity used for agent-authorized vault calls.
	AgentID string

	// StoreBackend selects the record store: "sqlite", "postgres", "memory".
	StoreBackend string
	SQLitePath   string
	DatabaseURL  string

	// ArchiveBackend selects the payload archive: "memory", "fs", "s3", "gcs".
	ArchiveBackend string
	ArchivePath    string
	ArchiveBucket  string
	ArchivePrefix  string
	S3Endpoint     string
	S3Region       string

	// SealKeyHex is the hex-encoded 32-byte payload sealing key. Empty
	// disables sealing.
	SealKeyHex string

	PollInterval time.Duration
	CallTimeout  time.Duration
	RatePerSec   float64
	WarningDust  uint64
	KillSwitch   bool

	// ResolutionPolicy is the optional CEL gate for confirm_death.
	ResolutionPolicy string

	WatchlistFile string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWTSecret enables bearer-token auth on the HTTP surface when set.
	JWTSecret string

	OTELEnabled  bool
	OTELEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     envOr("PORT", "8080"),
		LogLevel: envOr("LOG_LEVEL", "INFO"),
		AgentID:  envOr("AGENT_ID", "sentinel-agent"),

		StoreBackend: envOr("STORE_BACKEND", "sqlite"),
		SQLitePath:   envOr("SQLITE_PATH", "sentinel.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		ArchiveBackend: envOr("ARCHIVE_BACKEND", "memory"),
		ArchivePath:    envOr("ARCHIVE_PATH", "archive"),
		ArchiveBucket:  os.Getenv("ARCHIVE_BUCKET"),
		ArchivePrefix:  envOr("ARCHIVE_PREFIX", "payloads"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3Region:       envOr("S3_REGION", "us-east-1"),

		SealKeyHex: os.Getenv("SEAL_KEY"),

		PollInterval: envDuration("POLL_INTERVAL", time.Minute),
		CallTimeout:  envDuration("CALL_TIMEOUT", 30*time.Second),
		RatePerSec:   envFloat("RATE_PER_SEC", 5),
		WarningDust:  envUint("WARNING_DUST", 0),
		KillSwitch:   os.Getenv("KILL_SWITCH") == "true",

		ResolutionPolicy: os.Getenv("RESOLUTION_POLICY"),
		WatchlistFile:    os.Getenv("WATCHLIST_FILE"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       int(envUint("REDIS_DB", 0)),

		JWTSecret: os.Getenv("JWT_SECRET"),

		OTELEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTELEndpoint: envOr("OTEL_ENDPOINT", "localhost:4317"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envUint(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
