package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Storage
	DataDir string

	// AI
	LLMBaseURL string
	LLMAPIKey  string
	ModelID    string

	// Retrieval
	ScrapeTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		DataDir:       getEnv("NEXUS_DATA_DIR", defaultDataDir()),
		LLMBaseURL:    getEnv("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:     getEnv("LLM_API_KEY", ""),
		ModelID:       getEnv("MODEL_ID", "gpt-4o-mini"),
		ScrapeTimeout: time.Duration(getEnvInt("SCRAPE_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("NEXUS_DATA_DIR is required")
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	// LLM API key is optional: without it the engine runs with
	// content intelligence disabled and neutral fallbacks.
	return nil
}

// LLMConfigured returns true if a content intelligence key is present
func (c *Config) LLMConfigured() bool {
	return c.LLMAPIKey != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func defaultDataDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "data"
	}
	return filepath.Join(wd, "data")
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
