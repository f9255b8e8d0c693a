package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Object storage drivers. An empty driver disables media uploads.
const (
	StorageDriverMinio = "minio"
	StorageDriverGCS   = "gcs"
	StorageDriverS3    = "s3"
)

// Message queue drivers. An empty driver disables session events.
const (
	MQDriverRabbitMQ = "rabbitmq"
	MQDriverPubSub   = "pubsub"
)

type Config struct {
	ServerPort  int    `env:"SERVER_PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	Log       LogConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	MQ        MQConfig
	Telemetry TelemetryConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type AuthConfig struct {
	// JWTSecret signs bearer tokens. There is no fallback: an empty secret
	// keeps the server from starting.
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"168h"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"wellspring"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	DBName   string `env:"DB_NAME" envDefault:"wellspring_db"`
	UseSSL   bool   `env:"DB_USE_SSL" envDefault:"false"`
}

type StorageConfig struct {
	Driver string `env:"STORAGE_DRIVER"`
	// PublicBaseURL prefixes object keys to build the URLs handed to clients,
	// e.g. https://cdn.example.com/media.
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL"`
	MaxUploadSize int64  `env:"STORAGE_MAX_UPLOAD_BYTES" envDefault:"10485760"`

	Minio MinioConfig
	GCS   GCSConfig
	S3    S3Config
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"wellspring"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

type S3Config struct {
	Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket       string `env:"S3_BUCKET"`
	AccessKey    string `env:"S3_ACCESS_KEY"`
	SecretKey    string `env:"S3_SECRET_KEY"`
	BaseEndpoint string `env:"S3_BASE_ENDPOINT"`
}

type MQConfig struct {
	Driver              string `env:"MQ_DRIVER"`
	SessionEventChannel string `env:"MQ_SESSION_EVENTS_CHANNEL" envDefault:"session-events"`

	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH_COUNT" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type TelemetryConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string `env:"OTEL_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"wellspring-apiserver"`
}

// LoadConfig reads configuration from the environment. In dev mode a local
// .env file is loaded first.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.MQ.Driver = strings.ToLower(strings.TrimSpace(c.MQ.Driver))
	c.Auth.JWTSecret = strings.TrimSpace(c.Auth.JWTSecret)
	c.Storage.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.PublicBaseURL), "/")
}

// Validate reports configuration the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d out of range", c.ServerPort))
	}

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.Storage.Driver {
	case "", StorageDriverMinio, StorageDriverGCS, StorageDriverS3:
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}

	switch c.MQ.Driver {
	case "", MQDriverRabbitMQ, MQDriverPubSub:
	default:
		errs = append(errs, fmt.Errorf("unsupported MQ_DRIVER %q", c.MQ.Driver))
	}

	return errors.Join(errs...)
}
