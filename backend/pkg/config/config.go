package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "silent-partners/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port        string
	Env         string
	CORSOrigins []string
	MaxBodySize int64 // Upper bound on request bodies, in bytes

	// AI
	OpenAIBaseURL string
	OpenAIAPIKey  string
	ModelID       string
	PricingFile   string // Optional YAML file overriding the model pricing table

	// Source fetching
	FetchTimeout      time.Duration
	FetchConcurrency  int
	FetchAllowPrivate bool // Lets source URLs reach loopback and private hosts
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "5000"),
		Env:              getEnv("ENV", "development"),
		CORSOrigins:      getEnvList("CORS_ORIGINS", []string{"*"}),
		MaxBodySize:      int64(getEnvInt("MAX_BODY_BYTES", 5<<20)),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		ModelID:          getEnv("MODEL_ID", "gpt-4.1-mini"),
		PricingFile:      getEnv("PRICING_FILE", ""),
		FetchTimeout:     time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 15)) * time.Second,
		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", 4),
	}
	cfg.FetchAllowPrivate = getEnvBool("FETCH_ALLOW_PRIVATE", false)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Port == "" {
		return apperrors.NewConfigMissingRequired("PORT")
	}
	if c.ModelID == "" {
		return apperrors.NewConfigMissingRequired("MODEL_ID")
	}
	if c.OpenAIBaseURL == "" {
		return apperrors.NewConfigMissingRequired("OPENAI_BASE_URL")
	}
	if c.MaxBodySize <= 0 {
		return apperrors.NewConfigValidationFailed("MAX_BODY_BYTES", "must be positive")
	}
	if c.FetchTimeout <= 0 {
		return apperrors.NewConfigValidationFailed("FETCH_TIMEOUT_SECONDS", "must be positive")
	}
	if c.FetchConcurrency <= 0 {
		return apperrors.NewConfigValidationFailed("FETCH_CONCURRENCY", "must be positive")
	}
	// The API key is optional: extraction endpoints answer 503 without it
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AllowsAnyOrigin reports whether CORS is open to every origin
func (c *Config) AllowsAnyOrigin() bool {
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
