package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only acceptable outside production
const DefaultJWTSecret = "smartpest-dev-secret-change-me"

// Config holds all application configuration
type Config struct {
	// Deployment environment ("development", "production", ...)
	Env string

	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Model     ModelConfig
	Upload    UploadConfig
	Reference ReferenceConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Sentry    SentryConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	MigrationsPath string
}

// AuthConfig holds token settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
}

// ModelConfig holds classifier settings
type ModelConfig struct {
	PrimaryPath  string
	FallbackPath string
	ClassesPath  string
	// RuntimeLibrary is the path to the onnxruntime shared library; empty uses the system default
	RuntimeLibrary string
	// InputSize is used when the model declares a dynamic spatial shape
	InputSize     int
	EagerLoad     bool
	MockMinConf   float64
	MockMaxConf   float64
	InputName     string
	OutputName    string
	DownloadURL   string
	DownloadLimit int64 // in bytes
}

// UploadConfig holds prediction upload settings
type UploadConfig struct {
	MaxUploadSize   int64 // in bytes
	TempDir         string
	JanitorInterval time.Duration
	StaleAfter      time.Duration
}

// ReferenceConfig points at the pest information tables
type ReferenceConfig struct {
	DescriptionsPath string
	PesticidesPath   string
	CatalogCacheTTL  time.Duration
}

// RateLimitConfig holds /predict throttling settings
type RateLimitConfig struct {
	PredictPerSecond float64
	PredictBurst     int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// SentryConfig enables panic reporting when DSN is set
type SentryConfig struct {
	DSN         string
	Environment string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	env := getEnv("ENV", "production")

	cfg := &Config{
		Env: env,
		Server: ServerConfig{
			Port:            getEnv("PORT", "8000"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			Name:           getEnv("DB_NAME", "smartpest"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:    getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", DefaultJWTSecret),
			TokenTTL:  getDurationEnv("AUTH_TOKEN_TTL", 72*time.Hour),
			Issuer:    getEnv("AUTH_ISSUER", "smartpest-api"),
		},
		Model: ModelConfig{
			PrimaryPath:    getEnv("MODEL_PRIMARY_PATH", "./models/best_model_b5.onnx"),
			FallbackPath:   getEnv("MODEL_FALLBACK_PATH", "./models/pretrained_efficientnet_b0.onnx"),
			ClassesPath:    getEnv("MODEL_CLASSES_PATH", "./models/classes.txt"),
			RuntimeLibrary: getEnv("ONNXRUNTIME_LIB", ""),
			InputSize:      getIntEnv("MODEL_INPUT_SIZE", 600),
			EagerLoad:      getBoolEnv("MODEL_EAGER_LOAD", false),
			MockMinConf:    getFloatEnv("MODEL_MOCK_MIN_CONFIDENCE", 0.70),
			MockMaxConf:    getFloatEnv("MODEL_MOCK_MAX_CONFIDENCE", 0.95),
			InputName:      getEnv("MODEL_INPUT_NAME", ""),
			OutputName:     getEnv("MODEL_OUTPUT_NAME", ""),
			DownloadURL:    getEnv("MODEL_DOWNLOAD_URL", ""),
			DownloadLimit:  getInt64Env("MODEL_DOWNLOAD_LIMIT", 1024*1024*1024), // 1GB
		},
		Upload: UploadConfig{
			MaxUploadSize:   getInt64Env("MAX_UPLOAD_SIZE", 20*1024*1024), // 20MB
			TempDir:         getEnv("UPLOAD_DIR", os.TempDir()),
			JanitorInterval: getDurationEnv("UPLOAD_JANITOR_INTERVAL", 10*time.Minute),
			StaleAfter:      getDurationEnv("UPLOAD_STALE_AFTER", time.Hour),
		},
		Reference: ReferenceConfig{
			DescriptionsPath: getEnv("PEST_DESCRIPTIONS_PATH", "./data/pest_description.json"),
			PesticidesPath:   getEnv("PESTICIDES_INFO_PATH", "./data/pesticides_info.json"),
			CatalogCacheTTL:  getDurationEnv("CATALOG_CACHE_TTL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			PredictPerSecond: getFloatEnv("PREDICT_RATE_LIMIT", 5),
			PredictBurst:     getIntEnv("PREDICT_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Environment: env,
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Env == "production" && c.Auth.JWTSecret == DefaultJWTSecret {
		return fmt.Errorf("AUTH_JWT_SECRET must be changed in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if c.Upload.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}
	if c.Model.InputSize <= 0 {
		return fmt.Errorf("MODEL_INPUT_SIZE must be positive")
	}
	if c.Model.MockMinConf < 0 || c.Model.MockMaxConf > 1 || c.Model.MockMinConf > c.Model.MockMaxConf {
		return fmt.Errorf("mock confidence range [%v, %v] must lie within [0, 1]",
			c.Model.MockMinConf, c.Model.MockMaxConf)
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
