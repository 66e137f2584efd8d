// Package config handles configuration loading from environment variables and optional YAML files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Google    GoogleConfig
	Booking   BookingConfig
	Auth      AuthConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Display   DisplayConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path          string
	BusyTimeoutMs int
}

// GoogleConfig holds Google OAuth and Calendar settings.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Timeout      time.Duration
}

// BookingConfig holds the visit booking policy.
type BookingConfig struct {
	MinDuration      time.Duration
	MaxDuration      time.Duration
	HoldTTL          time.Duration
	BusinessTimezone string
	OpenHour         int
	CloseHour        int
	SweepInterval    time.Duration
}

// AuthConfig holds secrets and admin credentials.
type AuthConfig struct {
	AdminKey      string
	SecretKey     string
	EncryptionKey string
}

// NotifyConfig holds operator webhook settings.
type NotifyConfig struct {
	Enabled        bool
	URL            string
	Token          string
	TimeoutSeconds int
	MaxRetries     int
	RetryBackoff   []int
}

// RateLimitConfig limits unauthenticated submission traffic per client IP.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// DisplayConfig holds display formatting settings.
type DisplayConfig struct {
	Timezone       string
	DatetimeFormat string
}

// RetentionConfig holds data retention settings.
type RetentionConfig struct {
	Enabled             bool
	AuditLogDays        int
	WebhookFailuresDays int
}

// Load reads configuration from environment variables with defaults,
// then applies an optional YAML file overlay (CONFIG_FILE).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Server = ServerConfig{
		Host:         getEnv("HOST", DefaultHost),
		Port:         getEnvInt("PORT", DefaultPort),
		BaseURL:      getEnv("BASE_URL", DefaultBaseURL),
		ReadTimeout:  getEnvDuration("READ_TIMEOUT", DefaultReadTimeout),
		WriteTimeout: getEnvDuration("WRITE_TIMEOUT", DefaultWriteTimeout),
	}

	cfg.Database = DatabaseConfig{
		Path:          getEnv("DATA_DIR", DefaultDataDir) + "/visitbook.db",
		BusyTimeoutMs: DefaultBusyTimeoutMs,
	}

	cfg.Google = GoogleConfig{
		ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		RedirectURI:  cfg.Server.BaseURL + "/oauth/callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/calendar.events",
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Timeout:      getEnvDuration("GOOGLE_TIMEOUT", DefaultProviderTimeout),
	}

	cfg.Booking = BookingConfig{
		MinDuration:      getEnvDuration("BOOKING_MIN_DURATION", DefaultMinVisitDuration),
		MaxDuration:      getEnvDuration("BOOKING_MAX_DURATION", DefaultMaxVisitDuration),
		HoldTTL:          getEnvDuration("BOOKING_HOLD_TTL", DefaultHoldTTL),
		BusinessTimezone: getEnv("BOOKING_BUSINESS_TIMEZONE", DefaultBusinessTimezone),
		OpenHour:         getEnvInt("BOOKING_OPEN_HOUR", DefaultOpenHour),
		CloseHour:        getEnvInt("BOOKING_CLOSE_HOUR", DefaultCloseHour),
		SweepInterval:    getEnvDuration("BOOKING_SWEEP_INTERVAL", DefaultSweepInterval),
	}

	cfg.Auth = AuthConfig{
		AdminKey:      getEnv("ADMIN_KEY", ""),
		SecretKey:     getEnv("SECRET_KEY", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
	}

	cfg.Notify = NotifyConfig{
		Enabled:        getEnvBool("NOTIFY_WEBHOOK_ENABLED", false),
		URL:            getEnv("NOTIFY_WEBHOOK_URL", ""),
		Token:          getEnv("NOTIFY_WEBHOOK_TOKEN", ""),
		TimeoutSeconds: getEnvInt("NOTIFY_WEBHOOK_TIMEOUT", 10),
		MaxRetries:     3,
		RetryBackoff:   []int{1, 5, 15},
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", DefaultRateLimitPerMinute),
		Burst:             getEnvInt("RATE_LIMIT_BURST", DefaultRateLimitBurst),
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", DefaultLogLevel),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	cfg.Display = DisplayConfig{
		Timezone:       getEnv("DISPLAY_TIMEZONE", DefaultDisplayTimezone),
		DatetimeFormat: "Jan 2, 2006 at 3:04 PM",
	}

	cfg.Retention = RetentionConfig{
		Enabled:             true,
		AuditLogDays:        getEnvInt("RETENTION_AUDIT_DAYS", DefaultAuditLogDays),
		WebhookFailuresDays: getEnvInt("RETENTION_WEBHOOK_FAILURES_DAYS", DefaultWebhookFailuresDays),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to apply config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings and policy sanity.
func (c *Config) Validate() error {
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	if c.Auth.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if c.Booking.MinDuration <= 0 || c.Booking.MaxDuration < c.Booking.MinDuration {
		return fmt.Errorf("invalid booking duration policy: min=%v max=%v",
			c.Booking.MinDuration, c.Booking.MaxDuration)
	}
	if c.Booking.OpenHour < 0 || c.Booking.CloseHour > 24 || c.Booking.OpenHour >= c.Booking.CloseHour {
		return fmt.Errorf("invalid business window: %02d:00-%02d:00",
			c.Booking.OpenHour, c.Booking.CloseHour)
	}
	if c.Booking.HoldTTL <= 0 {
		return fmt.Errorf("booking hold TTL must be positive")
	}
	if _, err := time.LoadLocation(c.Booking.BusinessTimezone); err != nil {
		return fmt.Errorf("invalid business timezone %q: %w", c.Booking.BusinessTimezone, err)
	}
	return nil
}

// BusinessLocation resolves the configured business timezone. Validate
// guarantees the zone loads; UTC is the fallback for unvalidated configs.
func (b BookingConfig) BusinessLocation() *time.Location {
	loc, err := time.LoadLocation(b.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Environment helpers

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		// Accept plain seconds for compatibility with container env files
		if secs, serr := strconv.Atoi(value); serr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}
