package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends for submitted images.
const (
	StorageInline = "inline"
	StorageDrive  = "drive"
	StorageMinio  = "minio"
)

// Record backends for the verification spreadsheet.
const (
	RecordsSheets   = "sheets"
	RecordsPostgres = "postgres"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Line         LineConfig
	Google       GoogleConfig
	Verification VerificationConfig
	Minio        MinioConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Session      SessionConfig
	Dedup        DedupConfig
	Logger       LoggerConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// LineConfig holds Messaging API channel credentials.
type LineConfig struct {
	ChannelAccessToken string
	ChannelSecret      string
	APIBaseURL         string
	DataAPIBaseURL     string
	HTTPTimeout        time.Duration
}

// GoogleConfig holds service account credentials and target resources.
type GoogleConfig struct {
	ServiceAccountJSON string
	SpreadsheetID      string
	LookupRange        string
	AppendRange        string
	DriveFolderID      string
}

// VerificationConfig tunes the conversation flow.
type VerificationConfig struct {
	TriggerKeywords []string
	PendingMarker   string
	StorageBackend  string
	RecordBackend   string
	MaxConcurrency  int
}

// MinioConfig holds object storage connection values.
type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	PublicBaseURL string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig controls in-memory session lifetime.
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// DedupConfig controls webhook redelivery suppression.
type DedupConfig struct {
	TTL time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// NotificationConfig holds the optional outbound notification endpoint.
type NotificationConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	appEnv := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "member-verification-bot"),
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("PORT", "10000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 60),
		},
		Line: LineConfig{
			ChannelAccessToken: os.Getenv("CHANNEL_ACCESS_TOKEN"),
			ChannelSecret:      os.Getenv("CHANNEL_SECRET"),
			APIBaseURL:         getEnv("LINE_API_BASE_URL", "https://api.line.me"),
			DataAPIBaseURL:     getEnv("LINE_DATA_API_BASE_URL", "https://api-data.line.me"),
			HTTPTimeout:        getEnvAsDuration("LINE_HTTP_TIMEOUT", 30*time.Second),
		},
		Google: GoogleConfig{
			ServiceAccountJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
			SpreadsheetID:      os.Getenv("GOOGLE_SHEETS_ID"),
			LookupRange:        getEnv("GOOGLE_SHEETS_LOOKUP_RANGE", "Sheet1!A:A"),
			AppendRange:        getEnv("GOOGLE_SHEETS_APPEND_RANGE", "Sheet1!A:E"),
			DriveFolderID:      os.Getenv("GOOGLE_DRIVE_FOLDER_ID"),
		},
		Verification: VerificationConfig{
			TriggerKeywords: getEnvAsList("VERIFY_TRIGGER_KEYWORDS", []string{"驗證", "認證"}),
			PendingMarker:   getEnv("VERIFY_PENDING_MARKER", "待審核"),
			StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", StorageInline)),
			RecordBackend:   strings.ToLower(getEnv("RECORD_BACKEND", RecordsSheets)),
			MaxConcurrency:  getEnvAsInt("WEBHOOK_MAX_CONCURRENCY", 16),
		},
		Minio: MinioConfig{
			Endpoint:      os.Getenv("MINIO_ENDPOINT"),
			AccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey:     os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:        getEnvAsBool("MINIO_USE_SSL", false),
			Bucket:        getEnv("MINIO_BUCKET", "verification-images"),
			PublicBaseURL: os.Getenv("MINIO_PUBLIC_BASE_URL"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Session: SessionConfig{
			IdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 0),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		Dedup: DedupConfig{
			TTL: getEnvAsDuration("DEDUP_TTL", 10*time.Minute),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: appEnv != "production",
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Timeout:    getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
		},
	}

	return cfg, nil
}

// Validate reports missing or inconsistent settings. Any error is fatal at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Line.ChannelAccessToken == "" {
		errs = append(errs, errors.New("CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.Line.ChannelSecret == "" {
		errs = append(errs, errors.New("CHANNEL_SECRET is required"))
	}
	if len(c.Verification.TriggerKeywords) == 0 {
		errs = append(errs, errors.New("VERIFY_TRIGGER_KEYWORDS must not be empty"))
	}

	switch c.Verification.RecordBackend {
	case RecordsSheets:
		if c.Google.ServiceAccountJSON == "" {
			errs = append(errs, errors.New("GOOGLE_SERVICE_ACCOUNT_JSON is required for sheets records"))
		}
		if c.Google.SpreadsheetID == "" {
			errs = append(errs, errors.New("GOOGLE_SHEETS_ID is required for sheets records"))
		}
	case RecordsPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for postgres records"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RECORD_BACKEND %q", c.Verification.RecordBackend))
	}

	switch c.Verification.StorageBackend {
	case StorageInline:
	case StorageDrive:
		if c.Google.ServiceAccountJSON == "" {
			errs = append(errs, errors.New("GOOGLE_SERVICE_ACCOUNT_JSON is required for drive storage"))
		}
		if c.Google.DriveFolderID == "" {
			errs = append(errs, errors.New("GOOGLE_DRIVE_FOLDER_ID is required for drive storage"))
		}
	case StorageMinio:
		if c.Minio.Endpoint == "" || c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for minio storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Verification.StorageBackend))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsList splits a comma separated value, dropping blank entries.
func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
