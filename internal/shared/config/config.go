package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	EventStore EventStoreConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Compliance ComplianceConfig
	Notify     NotifyConfig
	Clinical   ClinicalConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// EventStoreConfig holds configuration for EventStoreDB/KurrentDB.
type EventStoreConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

type AuthConfig struct {
	JWTSecret string
}

// ComplianceConfig controls the compliance report runner.
type ComplianceConfig struct {
	// RunInterval is the period between scheduled report recomputations.
	// Zero disables the periodic runner; reports stay on-demand only.
	RunInterval time.Duration
	// SnapshotTTL bounds how long a cached report snapshot is served.
	SnapshotTTL time.Duration
}

type NotifyConfig struct {
	Workers    int
	BufferSize int
	WebhookURL string
	SMTPAddr   string
	SMTPFrom   string
}

// ClinicalConfig configures the read-only legacy clinical system adapter
// that contributes external visit events to the compliance engine.
type ClinicalConfig struct {
	Enabled       bool
	DSN           string
	EncounterView string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "casework"),
			Password: getEnv("DB_PASSWORD", "casework"),
			Database: getEnv("DB_NAME", "casework"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Compliance: ComplianceConfig{
			RunInterval: getEnvDuration("COMPLIANCE_RUN_INTERVAL", 1*time.Hour),
			SnapshotTTL: getEnvDuration("COMPLIANCE_SNAPSHOT_TTL", 15*time.Minute),
		},
		Notify: NotifyConfig{
			Workers:    getEnvInt("NOTIFY_WORKERS", 4),
			BufferSize: getEnvInt("NOTIFY_BUFFER_SIZE", 1000),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			SMTPAddr:   getEnv("NOTIFY_SMTP_ADDR", ""),
			SMTPFrom:   getEnv("NOTIFY_SMTP_FROM", "casework@localhost"),
		},
		Clinical: ClinicalConfig{
			Enabled:       getEnvBool("CLINICAL_ENABLED", false),
			DSN:           getEnv("CLINICAL_DSN", ""),
			EncounterView: getEnv("CLINICAL_ENCOUNTER_VIEW", "dbo.Encounters"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
