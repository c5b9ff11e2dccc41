package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Settings holds the process configuration read from the environment
type Settings struct {
	Env      string
	Port     string
	LogLevel string

	DatabaseURL string
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string
	DBSSLMode   string
	DBTimeZone  string

	RedisURL string

	MetaAppSecret       string
	WhatsAppVerifyToken string
	WhatsAppAccessToken string
	GraphAPIBase        string
	GraphAPIVersion     string
	ProviderTimeout     time.Duration

	JWTSecret         string
	JWTAccessDuration time.Duration

	AMQPURL      string
	AMQPExchange string
}

// Load reads Settings from the environment, applying defaults
func Load() (*Settings, error) {
	s := &Settings{
		Env:      getEnvOrDefault("ENV", "production"),
		Port:     getEnvOrDefault("PORT", "8080"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnvOrDefault("DB_HOST", "localhost"),
		DBUser:      os.Getenv("DB_USER"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      getEnvOrDefault("DB_NAME", "wainbox"),
		DBPort:      getEnvOrDefault("DB_PORT", "5432"),
		DBSSLMode:   getEnvOrDefault("DB_SSLMODE", "disable"),
		DBTimeZone:  getEnvOrDefault("DB_TIMEZONE", "UTC"),

		RedisURL: getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),

		MetaAppSecret:       os.Getenv("META_APP_SECRET"),
		WhatsAppVerifyToken: os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		WhatsAppAccessToken: os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		GraphAPIBase:        strings.TrimRight(getEnvOrDefault("GRAPH_API_BASE", "https://graph.facebook.com"), "/"),
		GraphAPIVersion:     getEnvOrDefault("GRAPH_API_VERSION", "v21.0"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnvOrDefault("AMQP_EXCHANGE", "wainbox.realtime"),
	}

	var err error
	if s.ProviderTimeout, err = parseDuration("PROVIDER_TIMEOUT", "20s"); err != nil {
		return nil, err
	}
	if s.JWTAccessDuration, err = parseDuration("JWT_ACCESS_DURATION", "168h"); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks that the secrets the inbox cannot run without are present
func (s *Settings) Validate() error {
	var missing []string
	if s.MetaAppSecret == "" {
		missing = append(missing, "META_APP_SECRET")
	}
	if s.WhatsAppVerifyToken == "" {
		missing = append(missing, "WHATSAPP_VERIFY_TOKEN")
	}
	if s.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if s.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

// IsDevelopment reports whether the process runs in development mode
func (s *Settings) IsDevelopment() bool {
	return s.Env == "development"
}

// PostgresDSN returns DATABASE_URL when set, otherwise a DSN built from the DB_* keys
func (s *Settings) PostgresDSN() string {
	if s.DatabaseURL != "" {
		return s.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		s.DBHost, s.DBUser, s.DBPassword, s.DBName, s.DBPort, s.DBSSLMode, s.DBTimeZone,
	)
}

// RelayEnabled reports whether cross-process realtime fan-out is configured
func (s *Settings) RelayEnabled() bool {
	return s.AMQPURL != ""
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := getEnvOrDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
