package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var global *Config

type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	Scylla      ScyllaConfig
	Kafka       KafkaConfig
	SMTP        SMTPConfig
	KMS         KMSConfig
	OTP         OTPConfig
	Session     SessionConfig
	Hashing     HashingConfig
	Bucketing   BucketingConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	EnableTLS    bool
	CertFile     string
	KeyFile      string
	CertDir      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers  []string
	OTPTopic string
}

// SMTPConfig configures the mail notifier. From is both the envelope
// sender and the From header.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type OTPConfig struct {
	Length                    int
	TTL                       time.Duration
	Notifier                  string // "smtp" or "kafka"
	AllowImplicitRegistration bool
}

type SessionConfig struct {
	TokenLength int
	TTL         time.Duration
	CookieName  string
}

type HashingConfig struct {
	Argon2MemoryCost   int
	Argon2TimeCost     int
	Argon2Parallelism  int
	PepperRotationDays int
}

type BucketingConfig struct {
	UserBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment. A .env file is
// loaded first when present so local development does not need exported
// variables.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			TLSPort:      getEnvAsInt("SERVER_TLS_PORT", 8443),
			EnableTLS:    getEnvAsBool("SERVER_ENABLE_TLS", false),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			CertDir:      getEnv("SERVER_CERT_DIR", ""),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvAsSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "otp_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:  getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			OTPTopic: getEnv("KAFKA_OTP_TOPIC", "otp-delivery"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@localhost"),
		},
		KMS: KMSConfig{
			Enabled: getEnvAsBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("KMS_REGION", "us-east-1"),
		},
		OTP: OTPConfig{
			Length:                    getEnvAsInt("OTP_LENGTH", 8),
			TTL:                       getEnvAsDuration("OTP_TTL", 300*time.Second),
			Notifier:                  getEnv("OTP_NOTIFIER", "smtp"),
			AllowImplicitRegistration: getEnvAsBool("OTP_ALLOW_IMPLICIT_REGISTRATION", true),
		},
		Session: SessionConfig{
			TokenLength: getEnvAsInt("SESSION_TOKEN_LENGTH", 48),
			TTL:         getEnvAsDuration("SESSION_TTL", 72*time.Hour),
			CookieName:  getEnv("SESSION_COOKIE_NAME", "session_token"),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:   getEnvAsInt("ARGON2_MEMORY_COST", 65536),
			Argon2TimeCost:     getEnvAsInt("ARGON2_TIME_COST", 3),
			Argon2Parallelism:  getEnvAsInt("ARGON2_PARALLELISM", 4),
			PepperRotationDays: getEnvAsInt("PEPPER_ROTATION_DAYS", 30),
		},
		Bucketing: BucketingConfig{
			UserBuckets: getEnvAsInt("USER_BUCKETS", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	global = cfg
	return cfg
}

// Get returns the last loaded config.
func Get() *Config {
	if global == nil {
		return LoadConfig()
	}
	return global
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Validate reports configuration combinations that cannot work at all.
func (c *Config) Validate() error {
	if c.OTP.Length < 4 {
		return fmt.Errorf("OTP_LENGTH must be at least 4, got %d", c.OTP.Length)
	}
	if c.Session.TokenLength < 32 {
		return fmt.Errorf("SESSION_TOKEN_LENGTH must be at least 32, got %d", c.Session.TokenLength)
	}
	if c.OTP.Notifier != "smtp" && c.OTP.Notifier != "kafka" {
		return fmt.Errorf("OTP_NOTIFIER must be smtp or kafka, got %q", c.OTP.Notifier)
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		return fmt.Errorf("KMS_KEY_ID is required when KMS_ENABLED is true")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
