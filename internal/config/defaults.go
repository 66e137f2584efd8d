// Package config provides default values for configuration.
package config

import "time"

// Server defaults
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8080
	DefaultBaseURL      = "http://localhost:8080"
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// Database defaults
const (
	DefaultDataDir       = "/data"
	DefaultBusyTimeoutMs = 5000
)

// Booking policy defaults
const (
	DefaultMinVisitDuration = 4 * time.Hour
	DefaultMaxVisitDuration = 12 * time.Hour
	DefaultHoldTTL          = 6 * time.Hour
	DefaultBusinessTimezone = "Asia/Shanghai"
	DefaultOpenHour         = 7
	DefaultCloseHour        = 21
	DefaultSweepInterval    = 2 * time.Minute
)

// Google defaults
const (
	DefaultProviderTimeout = 15 * time.Second
)

// Rate limit defaults for the public submission endpoints
const (
	DefaultRateLimitPerMinute = 30
	DefaultRateLimitBurst     = 10
)

// Logging defaults
const (
	DefaultLogLevel = "info"
)

// Display defaults
const (
	DefaultDisplayTimezone = "Asia/Shanghai"
)

// Retention defaults
const (
	DefaultAuditLogDays        = 365
	DefaultWebhookFailuresDays = 30
)
