package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for both the client and the
// in-memory devserver.
type Config struct {
	LogLevel  string
	LogFormat string

	// Client settings.
	ServerBaseURL string
	ChannelURL    string
	// ExamID optionally pins the client to one exam; a ticket minted for a
	// different exam is rejected at startup. Empty accepts any ticket.
	ExamID     string
	ExamTicket string
	LocalStoreDir string
	// AnswerDebounce is the quiet period coalescing answer writes per question.
	AnswerDebounce time.Duration
	// OfflineGrace delays the offline indicator to avoid flapping on brief drops.
	OfflineGrace   time.Duration
	RequestTimeout time.Duration

	// Devserver settings.
	ServerPort string
	GinMode    string
	JWTSecret  string
	JWTExpiry  time.Duration
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),

		ServerBaseURL:  getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		ChannelURL:     getEnv("CHANNEL_URL", "ws://localhost:8080/ws/v1/candidate/stream"),
		ExamID:         getEnv("EXAM_ID", ""),
		ExamTicket:     getEnv("EXAM_TICKET", ""),
		LocalStoreDir:  getEnv("LOCAL_STORE_DIR", defaultStateDir()),
		AnswerDebounce: time.Duration(getEnvInt("ANSWER_DEBOUNCE_MS", 1000)) * time.Millisecond,
		OfflineGrace:   time.Duration(getEnvInt("OFFLINE_GRACE_MS", 3000)) * time.Millisecond,
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_S", 10)) * time.Second,

		ServerPort:     getEnv("SERVER_PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		JWTSecret:      getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:      time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 6)) * time.Hour,
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "exstem-client"
	}
	return "."
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
