// Package config provides environment configuration for the orchestration engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// Scheduler trigger token (empty disables the check)
	SchedulerToken string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultModel    string
	LLMTimeout      time.Duration

	// Reasoning loop
	MaxTurns      int
	HistoryWindow int

	// Aggregation queue
	DefaultGroupingInterval time.Duration

	// Delivery pipeline
	ComposingDelay  time.Duration
	InterChunkDelay time.Duration
	MinChunkLength  int
	MaxChunkLength  int

	// Outbound messaging provider
	ProviderBaseURL   string
	ProviderAPIKey    string
	SendRetryAttempts int
	SendRetryInterval time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Auth
		JWTSecret:      getEnv("JWT_SECRET", "development-secret-change-in-production"),
		SchedulerToken: getEnv("SCHEDULER_TOKEN", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "gpt-4o"),
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", 60*time.Second),

		// Reasoning loop
		MaxTurns:      getIntEnv("ENGINE_MAX_TURNS", 5),
		HistoryWindow: getIntEnv("ENGINE_HISTORY_WINDOW", 30),

		// Aggregation
		DefaultGroupingInterval: getDurationEnv("GROUPING_INTERVAL", 10*time.Second),

		// Delivery
		ComposingDelay:  getDurationEnv("DELIVERY_COMPOSING_DELAY", 2*time.Second),
		InterChunkDelay: getDurationEnv("DELIVERY_INTER_CHUNK_DELAY", 1*time.Second),
		MinChunkLength:  getIntEnv("DELIVERY_MIN_CHUNK_LENGTH", 40),
		MaxChunkLength:  getIntEnv("DELIVERY_MAX_CHUNK_LENGTH", 280),

		// Provider
		ProviderBaseURL:   getEnv("PROVIDER_BASE_URL", "http://localhost:8081"),
		ProviderAPIKey:    getEnv("PROVIDER_API_KEY", ""),
		SendRetryAttempts: getIntEnv("SEND_RETRY_ATTEMPTS", 3),
		SendRetryInterval: getDurationEnv("SEND_RETRY_INTERVAL", 2*time.Second),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 300),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
