package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Database Configuration
	DBDriver    string // "mongo" or "postgres"
	MongoURI    string
	MongoDB     string
	DatabaseUrl string

	// Storage Configuration
	StorageProvider string // "local", "r2" or "minio"

	// Local Storage (development)
	LocalStoragePath string // Base directory for uploaded crop photos
	LocalStorageURL  string // URL prefix the files are served under

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	// MinIO Storage (on-premise)
	MinIOEndpoint        string
	MinIOAccessKeyID     string
	MinIOSecretAccessKey string
	MinIOBucketName      string
	MinIOUseSSL          bool
	MinIOPublicURL       string

	MaxUploadSize int64

	// Classifier Configuration
	AIProvider        string // "anthropic", "remote" or "mock"
	AnthropicAPIKey   string
	AnthropicModel    string
	ClassifierURL     string
	ClassifierTimeout time.Duration
	AIMaxRetries      int
	AIRetryBaseDelay  time.Duration

	// Event publishing
	EventsProvider     string // "none", "kafka" or "sqs"
	KafkaBrokers       []string
	KafkaTopic         string
	SQSQueueURL        string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Statistics cache. Disabled when RedisURL is empty.
	RedisURL      string
	StatsCacheTTL time.Duration

	// Orphan upload sweeper
	SweeperEnabled  bool
	SweeperInterval time.Duration
	SweeperMinAge   time.Duration

	CORSAllowedOrigins []string

	// Max diagnosis submissions per client IP per minute
	DiagnoseRateLimit int

	// Support contact shown on every diagnosis response
	SupportPhone    string
	SupportWhatsApp string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// IsProduction reports whether ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		DBDriver:    getEnv("DB_DRIVER", "mongo"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "agropal"),
		DatabaseUrl: getEnv("DATABASE_URL", ""),

		// Storage defaults to local filesystem served at /uploads
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./uploads"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "/uploads"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinIOAccessKeyID:     getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretAccessKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucketName:      getEnv("MINIO_BUCKET", "agropal"),
		MinIOUseSSL:          getEnvBool("MINIO_USE_SSL", false),
		MinIOPublicURL:       getEnv("MINIO_PUBLIC_URL", ""),

		MaxUploadSize: int64(getEnvInt("MAX_UPLOAD_SIZE", 10*1024*1024)),

		// Classifier defaults
		AIProvider:        getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		ClassifierURL:     getEnv("CLASSIFIER_URL", ""),
		ClassifierTimeout: getEnvDuration("CLASSIFIER_TIMEOUT", 60*time.Second),
		AIMaxRetries:      getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay:  getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),

		EventsProvider:     getEnv("EVENTS_PROVIDER", "none"),
		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "agropal.diagnoses"),
		SQSQueueURL:        getEnv("SQS_QUEUE_URL", ""),
		AWSRegion:          getEnv("AWS_REGION", "eu-west-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		RedisURL:      getEnv("REDIS_URL", ""),
		StatsCacheTTL: getEnvDuration("STATS_CACHE_TTL", 5*time.Minute),

		SweeperEnabled:  getEnvBool("SWEEPER_ENABLED", true),
		SweeperInterval: getEnvDuration("SWEEPER_INTERVAL", 1*time.Hour),
		SweeperMinAge:   getEnvDuration("SWEEPER_MIN_AGE", 24*time.Hour),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),

		DiagnoseRateLimit: getEnvInt("DIAGNOSE_RATE_LIMIT", 10),

		SupportPhone:    getEnv("SUPPORT_PHONE", "+234-800-AGROPAL"),
		SupportWhatsApp: getEnv("SUPPORT_WHATSAPP", "+234-901-234-5678"),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when DB_DRIVER is 'mongo'")
		}
	case "postgres":
		if c.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER is 'postgres'")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be either 'mongo' or 'postgres', got: %s", c.DBDriver)
	}

	switch c.StorageProvider {
	case "local":
	case "r2":
		if c.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	case "minio":
		if c.MinIOAccessKeyID == "" || c.MinIOSecretAccessKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when STORAGE_PROVIDER is 'minio'")
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be one of 'local', 'r2' or 'minio', got: %s", c.StorageProvider)
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got: %d", c.MaxUploadSize)
	}

	switch c.AIProvider {
	case "mock":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	case "remote":
		if c.ClassifierURL == "" {
			return fmt.Errorf("CLASSIFIER_URL is required when AI_PROVIDER is 'remote'")
		}
	default:
		return fmt.Errorf("AI_PROVIDER must be one of 'anthropic', 'remote' or 'mock', got: %s", c.AIProvider)
	}
	if c.ClassifierTimeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be positive, got: %s", c.ClassifierTimeout)
	}

	switch c.EventsProvider {
	case "none":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_PROVIDER is 'kafka'")
		}
	case "sqs":
		if c.SQSQueueURL == "" {
			return fmt.Errorf("SQS_QUEUE_URL is required when EVENTS_PROVIDER is 'sqs'")
		}
		if c.AWSAccessKeyID == "" || c.AWSSecretAccessKey == "" {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required when EVENTS_PROVIDER is 'sqs'")
		}
	default:
		return fmt.Errorf("EVENTS_PROVIDER must be one of 'none', 'kafka' or 'sqs', got: %s", c.EventsProvider)
	}

	if c.SweeperEnabled && c.SweeperInterval <= 0 {
		return fmt.Errorf("SWEEPER_INTERVAL must be positive, got: %s", c.SweeperInterval)
	}
	// Uploads younger than a classifier call may still be in flight.
	if c.SweeperEnabled && c.SweeperMinAge <= c.ClassifierTimeout {
		return fmt.Errorf("SWEEPER_MIN_AGE must exceed CLASSIFIER_TIMEOUT (%s), got: %s", c.ClassifierTimeout, c.SweeperMinAge)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
