// Package config loads process configuration from the environment.
// A .env file in the working directory is read first when present.
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

// Email index backends.
const (
	IndexFirestore = "firestore"
	IndexRedis     = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server          ServerConfig
	Firebase        FirebaseConfig
	Redis           RedisConfig
	Kafka           KafkaConfig
	Mail            MailConfig
	EmailValidation EmailValidationConfig
	Migration       MigrationConfig
	Workflow        WorkflowConfig
	LogLevel        string
	EmailIndex      string
}

// ServerConfig holds HTTP server settings. No CORS origins allows any origin.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// FirebaseConfig identifies the Firebase project backing Firestore and auth.
type FirebaseConfig struct {
	ProjectID                    string
	GoogleApplicationCredentials string
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds profile event publishing settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// MailConfig holds SMTP settings. An empty host logs messages instead of sending them.
type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// EmailValidationConfig drives the email verification saga.
type EmailValidationConfig struct {
	CallbackURL       string
	TokenTTL          time.Duration
	FirstRetry        time.Duration
	MaxRetryInterval  time.Duration
	BackoffMultiplier float64
	MaxAttempts       int
}

// MigrationConfig throttles legacy preference migration writes.
// A zero rate disables throttling.
type MigrationConfig struct {
	RatePerSecond float64
	Burst         int
}

// WorkflowConfig bounds the in-process workflow host. Retention applies to
// finished instances in the Redis journal; zero keeps them.
type WorkflowConfig struct {
	Concurrency int
	Retention   time.Duration
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvAsSlice("CORS_ALLOWED_ORIGINS"),
		},
		Firebase: FirebaseConfig{
			ProjectID:                    firstNonEmpty(os.Getenv("FIREBASE_PROJECT_ID"), os.Getenv("GOOGLE_CLOUD_PROJECT")),
			GoogleApplicationCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS"),
			Topic:   getEnv("KAFKA_PROFILE_TOPIC", "profile-events"),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "no-reply@example.com"),
			FromName: getEnv("MAIL_FROM_NAME", ""),
		},
		EmailValidation: EmailValidationConfig{
			CallbackURL:       getEnv("VALIDATION_CALLBACK_URL", "http://localhost:8080/v1/email-validations"),
			TokenTTL:          getEnvAsDuration("VALIDATION_TOKEN_TTL", 30*24*time.Hour),
			FirstRetry:        getEnvAsDuration("EMAIL_VALIDATION_FIRST_RETRY", 5*time.Second),
			MaxRetryInterval:  getEnvAsDuration("EMAIL_VALIDATION_MAX_RETRY_INTERVAL", 10*time.Minute),
			BackoffMultiplier: getEnvAsFloat("EMAIL_VALIDATION_BACKOFF", 1.5),
			MaxAttempts:       getEnvAsInt("EMAIL_VALIDATION_MAX_ATTEMPTS", 10),
		},
		Migration: MigrationConfig{
			RatePerSecond: getEnvAsFloat("MIGRATION_RATE_PER_SECOND", 0),
			Burst:         getEnvAsInt("MIGRATION_BURST", 1),
		},
		Workflow: WorkflowConfig{
			Concurrency: getEnvAsInt("WORKFLOW_CONCURRENCY", 32),
			Retention:   getEnvAsDuration("WORKFLOW_RETENTION", 7*24*time.Hour),
		},
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		EmailIndex: strings.ToLower(getEnv("EMAIL_INDEX_BACKEND", IndexFirestore)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that would make the service misbehave at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Firebase.ProjectID == "" {
		errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required"))
	}
	if c.EmailValidation.MaxAttempts < 1 {
		errs = append(errs, errors.New("EMAIL_VALIDATION_MAX_ATTEMPTS must be at least 1"))
	}
	if c.EmailValidation.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("EMAIL_VALIDATION_BACKOFF must be at least 1"))
	}
	if c.Workflow.Concurrency < 1 {
		errs = append(errs, errors.New("WORKFLOW_CONCURRENCY must be at least 1"))
	}
	switch c.EmailIndex {
	case IndexFirestore:
	case IndexRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("EMAIL_INDEX_BACKEND=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_INDEX_BACKEND %q", c.EmailIndex))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
