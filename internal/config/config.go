/**
 * Configuration for ErrorScope Analysis Worker
 *
 * Loads configuration from environment variables matching .env.errorscope
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (job queue + analysis cache)
	RedisURL string

	// PostgreSQL configuration
	DatabaseURL string

	// Qdrant vector database configuration
	QdrantURL        string
	QdrantCollection string

	// API keys
	VoyageAPIKey     string
	OpenRouterAPIKey string

	// Classifier LLM
	OpenRouterModel string

	// Vision LLM OCR engine (optional, disabled when URL is empty)
	VisionOCRURL        string
	VisionOCRModel      string
	VisionOCRConfidence float64

	// Google Cloud Vision engine toggle (credentials come from ADC)
	GoogleVisionEnabled bool

	// OCR configuration
	OCRLanguages    []string
	EngineTimeoutMs int
	MinImageWidth   int

	// Web search
	SearchTimeoutSec int
	MaxSearchResults int

	// Worker configuration
	WorkerConcurrency int
	ProcessingTimeout int
	CacheTTLSec       int

	// Logging
	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:         getEnvOrThrow("DATABASE_URL"),
		QdrantURL:           getEnvOrDefault("QDRANT_URL", "localhost:6334"),
		QdrantCollection:    getEnvOrDefault("QDRANT_COLLECTION", "errorscope_solutions"),
		VoyageAPIKey:        getEnvOrDefault("VOYAGE_API_KEY", ""),
		OpenRouterAPIKey:    getEnvOrDefault("OPENROUTER_API_KEY", ""),
		OpenRouterModel:     getEnvOrDefault("OPENROUTER_MODEL", "meta-llama/llama-3.1-8b-instruct"),
		VisionOCRURL:        getEnvOrDefault("VISION_OCR_URL", ""),
		VisionOCRModel:      getEnvOrDefault("VISION_OCR_MODEL", "gpt-4o-mini"),
		VisionOCRConfidence: getEnvAsFloatOrDefault("VISION_OCR_CONFIDENCE", 80.0),
		GoogleVisionEnabled: getEnvOrDefault("GOOGLE_VISION_ENABLED", "") != "",
		OCRLanguages:        strings.Split(getEnvOrDefault("OCR_LANGUAGES", "rus+eng"), "+"),
		EngineTimeoutMs:     getEnvAsIntOrDefault("OCR_ENGINE_TIMEOUT_MS", 30000),
		MinImageWidth:       getEnvAsIntOrDefault("MIN_IMAGE_WIDTH", 800),
		SearchTimeoutSec:    getEnvAsIntOrDefault("SEARCH_TIMEOUT", 10),
		MaxSearchResults:    getEnvAsIntOrDefault("MAX_SEARCH_RESULTS", 5),
		WorkerConcurrency:   getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:   getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		CacheTTLSec:         getEnvAsIntOrDefault("CACHE_TTL", 3600),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.EngineTimeoutMs < 1000 {
		return fmt.Errorf("OCR_ENGINE_TIMEOUT_MS must be at least 1000, got %d", c.EngineTimeoutMs)
	}

	if len(c.OCRLanguages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES must name at least one language")
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrThrow gets environment variable or panics when unset
func getEnvOrThrow(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
