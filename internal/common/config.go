package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Gateway   GatewayConfig
	Pipeline  PipelineConfig
	Extractor ExtractorConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	MaxUploadSizeMB int64
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// GatewayConfig holds extraction-gateway configuration
type GatewayConfig struct {
	BaseURL          string
	APIKey           string
	Model            string
	Timeout          time.Duration
	ConcurrencyLimit int64
	MinCallSpacing   time.Duration
	MaxRetries       int
	BaseBackoff      time.Duration
}

// PipelineConfig holds orchestrator configuration
type PipelineConfig struct {
	ScratchDir string
}

// ExtractorConfig holds per-kind extractor tuning
type ExtractorConfig struct {
	MaxImageWidth   int
	MaxImageHeight  int
	MinCharsPerPage int
	TextPageRatio   float64
	MaxPDFPages     int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			MaxUploadSizeMB: int64(getEnvAsInt("MAX_UPLOAD_SIZE_MB", 300)),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Gateway: GatewayConfig{
			BaseURL:          getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			APIKey:           getEnv("GEMINI_API_KEY", ""),
			Model:            getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
			Timeout:          getEnvAsDuration("GEMINI_TIMEOUT", 30*time.Second),
			ConcurrencyLimit: int64(getEnvAsInt("GEMINI_CONCURRENCY_LIMIT", 5)),
			MinCallSpacing:   getEnvAsDuration("GEMINI_MIN_CALL_SPACING", 6*time.Second),
			MaxRetries:       getEnvAsInt("GEMINI_MAX_RETRIES", 5),
			BaseBackoff:      getEnvAsDuration("GEMINI_BASE_BACKOFF", 3*time.Second),
		},
		Pipeline: PipelineConfig{
			ScratchDir: getEnv("SCRATCH_DIR", os.TempDir()),
		},
		Extractor: ExtractorConfig{
			MaxImageWidth:   getEnvAsInt("MAX_IMAGE_WIDTH", 2048),
			MaxImageHeight:  getEnvAsInt("MAX_IMAGE_HEIGHT", 2048),
			MinCharsPerPage: getEnvAsInt("PDF_MIN_CHARS_PER_PAGE", 50),
			TextPageRatio:   getEnvAsFloat64("PDF_TEXT_PAGE_RATIO", 0.5),
			MaxPDFPages:     getEnvAsInt("PDF_MAX_PAGES", 10),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Gateway.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Gateway.ConcurrencyLimit <= 0 {
		return NewAppError("CONFIG_ERROR", "GEMINI_CONCURRENCY_LIMIT must be positive", ErrInvalidInput)
	}
	return nil
}
