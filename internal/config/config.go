// Package config loads server configuration from the environment, following
// shiv248-kolabpad/cmd/server/main.go's Config struct + getEnv/getEnvInt
// helpers, extended with godotenv so a local .env file can seed the same
// environment variables (SPEC_FULL.md AMBIENT STACK).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every option named in spec.md §6 plus the ambient operational
// knobs the teacher/kolabpad carry for a websocket service of this shape.
type Config struct {
	Port      string
	ClientURL string

	StoreURI string

	BusAddr     string
	BusPassword string
	BusDB       int

	JWTSecret    string
	JWTIssuer    string
	JWTExpiresIn time.Duration

	NodeEnv string

	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	WSPingInterval time.Duration

	OperationBufferSize int
	VersionHistorySize  int
	CleanupInterval     time.Duration
	BroadcastBufferSize int

	ArchiveRegion string
	ArchiveBucket string
}

// Load reads configuration from the process environment, first merging in
// any .env file found in the working directory (godotenv.Load is a no-op,
// not a fatal error, when no .env file exists).
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:      getEnv("PORT", "5000"),
		ClientURL: getEnv("CLIENT_URL", "http://localhost:3000"),

		StoreURI: os.Getenv("STORE_URI"),

		BusAddr:     getEnv("BUS_ADDR", "localhost:6379"),
		BusPassword: os.Getenv("BUS_PASSWORD"),
		BusDB:       getEnvInt("BUS_DB", 0),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTIssuer:    getEnv("JWT_ISSUER", "realtime-docs"),
		JWTExpiresIn: time.Duration(getEnvInt("JWT_EXPIRES_IN_MINUTES", 60)) * time.Minute,

		NodeEnv: getEnv("NODE_ENV", "development"),

		WSReadTimeout:  time.Duration(getEnvInt("WS_READ_TIMEOUT_SECONDS", 60)) * time.Second,
		WSWriteTimeout: time.Duration(getEnvInt("WS_WRITE_TIMEOUT_SECONDS", 10)) * time.Second,
		WSPingInterval: time.Duration(getEnvInt("WS_PING_INTERVAL_SECONDS", 25)) * time.Second,

		OperationBufferSize: getEnvInt("OPERATION_BUFFER_SIZE", 200),
		VersionHistorySize:  getEnvInt("VERSION_HISTORY_SIZE", 50),
		CleanupInterval:     time.Duration(getEnvInt("CLEANUP_INTERVAL_SECONDS", 300)) * time.Second,
		BroadcastBufferSize: getEnvInt("BROADCAST_BUFFER_SIZE", 16),

		ArchiveRegion: getEnv("ARCHIVE_REGION", "us-east-1"),
		ArchiveBucket: os.Getenv("ARCHIVE_BUCKET"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
