package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	ObjectStore ObjectStoreConfig
	Auth        AuthConfig
	Signing     SigningConfig
	Scheduler   SchedulerConfig
	Mail        MailConfig
	Log         LogConfig
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	DBName     string
	SSLMode    string
	TestDBName string // Separate database for testing
}

// ObjectStoreConfig holds the inbound batch-file bucket configuration.
// An empty endpoint disables the auto-import scheduler task.
type ObjectStoreConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	InboundPrefix  string
	ImportedPrefix string
}

// AuthConfig holds the staff authentication configuration
type AuthConfig struct {
	StaffJWTSecret string
}

// SigningConfig holds the capability-token and stale-entry policy
type SigningConfig struct {
	TokenTTLDays     int
	StalePendingDays int
}

// SchedulerConfig holds the periodic maintenance configuration
type SchedulerConfig struct {
	Interval time.Duration
	Enabled  bool
}

// MailConfig holds the outbound notification configuration.
// An empty endpoint disables approval emails.
type MailConfig struct {
	Endpoint string
	From     string
	FromName string
	BCC      string
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvAsInt("DB_PORT", 5432),
			Username:   getEnv("DB_USERNAME", "postgres"),
			Password:   getEnv("DB_PASSWORD", "password"),
			DBName:     getEnv("DB_NAME", "apprenticeship"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			TestDBName: getEnv("TEST_DB_NAME", "apprenticeship_test"),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:       getEnv("OBJECT_STORE_ENDPOINT", ""),
			AccessKey:      getEnv("OBJECT_STORE_ACCESS_KEY", ""),
			SecretKey:      getEnv("OBJECT_STORE_SECRET_KEY", ""),
			Bucket:         getEnv("OBJECT_STORE_BUCKET", "cima-batches"),
			UseSSL:         getEnvAsBool("OBJECT_STORE_USE_SSL", true),
			InboundPrefix:  getEnv("OBJECT_STORE_INBOUND_PREFIX", "cima-exports/"),
			ImportedPrefix: getEnv("OBJECT_STORE_IMPORTED_PREFIX", "cima-imported/"),
		},
		Auth: AuthConfig{
			StaffJWTSecret: getEnv("STAFF_JWT_SECRET", "your-secret-key-here"),
		},
		Signing: SigningConfig{
			TokenTTLDays:     getEnvAsInt("SIGN_TOKEN_TTL_DAYS", 7),
			StalePendingDays: getEnvAsInt("STALE_PENDING_DAYS", 14),
		},
		Scheduler: SchedulerConfig{
			Interval: getEnvAsDuration("SCHEDULER_INTERVAL", 24*time.Hour),
			Enabled:  getEnvAsBool("SCHEDULER_ENABLED", true),
		},
		Mail: MailConfig{
			Endpoint: getEnv("MAIL_ENDPOINT", ""),
			From:     getEnv("MAIL_FROM", ""),
			FromName: getEnv("MAIL_FROM_NAME", "Elevate Apprenticeship"),
			BCC:      getEnv("MAIL_BCC", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
