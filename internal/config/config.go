/**
 * Configuration for the Extraction Auditor Worker
 *
 * Loads service configuration from environment variables (see .env.auditor).
 * Scoring thresholds live in thresholds.go and can be overridden from YAML.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL       string
	QueueName      string
	QueueTransport string // "redis" (BRPOP list) or "asynq"

	// PostgreSQL configuration (empty disables report persistence)
	DatabaseURL string

	// Qdrant vector database configuration
	QdrantURL        string
	QdrantCollection string

	// Service URLs
	MageAgentURL      string
	MageAgentTimeout  time.Duration
	FileProcessAPIURL string // artifact storage for JSON reports
	UploadReports     bool

	// HTTP API
	HTTPPort    string
	CORSOrigins []string

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout time.Duration

	// OCR engines to benchmark, in order: tesseract, tesseract-cli, vision, vision-accurate
	OCREngines    []string
	OCRLanguage   string
	TesseractPath string
	// Image cleanup before Tesseract: none, basic or advanced
	OCRPreprocess string

	// Rendering
	PdftoppmPath   string
	RenderDPI      int
	MaxRenderPages int

	// Temporary directory for file processing
	TempDir string

	// Optional YAML file with scoring threshold overrides
	ThresholdsFile string
	Thresholds     Thresholds

	Environment string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "audit:jobs"),
		QueueTransport:    getEnvOrDefault("QUEUE_TRANSPORT", "redis"),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:         getEnvOrDefault("QDRANT_URL", "nexus-qdrant:6334"),
		QdrantCollection:  getEnvOrDefault("QDRANT_COLLECTION", "audit_profiles"),
		MageAgentURL:      getEnvOrDefault("MAGEAGENT_URL", ""),
		MageAgentTimeout:  getEnvAsDurationOrDefault("MAGEAGENT_TIMEOUT", 120*time.Second),
		FileProcessAPIURL: getEnvOrDefault("FILEPROCESS_API_URL", "http://nexus-fileprocess-api:8096"),
		UploadReports:     getEnvAsBoolOrDefault("UPLOAD_REPORTS", false),
		HTTPPort:          getEnvOrDefault("HTTP_PORT", "8097"),
		CORSOrigins:       getEnvAsListOrDefault("CORS_ORIGINS", []string{"*"}),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		MaxFileSize:       getEnvAsInt64OrDefault("MAX_FILE_SIZE", 524288000), // 500MB
		ProcessingTimeout: getEnvAsDurationOrDefault("PROCESSING_TIMEOUT", 5*time.Minute),
		OCREngines:        getEnvAsListOrDefault("OCR_ENGINES", []string{"tesseract"}),
		OCRLanguage:       getEnvOrDefault("OCR_LANGUAGE", "eng"),
		TesseractPath:     getEnvOrDefault("TESSERACT_PATH", "/usr/bin/tesseract"),
		OCRPreprocess:     getEnvOrDefault("OCR_PREPROCESS", "advanced"),
		PdftoppmPath:      getEnvOrDefault("PDFTOPPM_PATH", "pdftoppm"),
		RenderDPI:         getEnvAsIntOrDefault("RENDER_DPI", 150),
		MaxRenderPages:    getEnvAsIntOrDefault("MAX_RENDER_PAGES", 20),
		TempDir:           getEnvOrDefault("TEMP_DIR", "/tmp/extraction-auditor"),
		ThresholdsFile:    getEnvOrDefault("THRESHOLDS_FILE", ""),
		Environment:       getEnvOrDefault("ENVIRONMENT", "development"),
	}

	thresholds, err := LoadThresholds(cfg.ThresholdsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	cfg.Thresholds = thresholds

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

	if c.QueueTransport != "redis" && c.QueueTransport != "asynq" {
		return fmt.Errorf("QUEUE_TRANSPORT must be redis or asynq, got %q", c.QueueTransport)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 10737418240 { // 1KB to 10GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 10GB, got %d", c.MaxFileSize)
	}

	if c.ProcessingTimeout < time.Second {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1s, got %v", c.ProcessingTimeout)
	}

	if c.RenderDPI < 36 || c.RenderDPI > 600 {
		return fmt.Errorf("RENDER_DPI must be between 36 and 600, got %d", c.RenderDPI)
	}

	for _, engine := range c.OCREngines {
		switch engine {
		case "tesseract", "tesseract-cli":
		case "vision", "vision-accurate":
			if c.MageAgentURL == "" {
				return fmt.Errorf("OCR engine %s requires MAGEAGENT_URL", engine)
			}
		default:
			return fmt.Errorf("unknown OCR engine %q", engine)
		}
	}

	switch c.OCRPreprocess {
	case "", "none", "basic", "advanced":
	default:
		return fmt.Errorf("OCR_PREPROCESS must be none, basic or advanced, got %q", c.OCRPreprocess)
	}

	if c.UploadReports && c.FileProcessAPIURL == "" {
		return fmt.Errorf("UPLOAD_REPORTS requires FILEPROCESS_API_URL")
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

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or bare milliseconds
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsListOrDefault splits a comma separated variable
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
