package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileDuration time.Duration

func (d *fileDuration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!int" {
			var seconds int64
			if err := value.Decode(&seconds); err != nil {
				return err
			}
			*d = fileDuration(time.Duration(seconds) * time.Second)
			return nil
		}
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = fileDuration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration type")
	}
}

// configFile mirrors Config with pointer fields so only keys present in the
// YAML file override the environment-derived values.
type configFile struct {
	Server *struct {
		Host         *string       `yaml:"host"`
		Port         *int          `yaml:"port"`
		BaseURL      *string       `yaml:"base_url"`
		ReadTimeout  *fileDuration `yaml:"read_timeout"`
		WriteTimeout *fileDuration `yaml:"write_timeout"`
	} `yaml:"server"`
	Database *struct {
		Path          *string `yaml:"path"`
		BusyTimeoutMs *int    `yaml:"busy_timeout_ms"`
	} `yaml:"database"`
	Google *struct {
		ClientID     *string       `yaml:"client_id"`
		ClientSecret *string       `yaml:"client_secret"`
		RedirectURI  *string       `yaml:"redirect_uri"`
		Scopes       *[]string     `yaml:"scopes"`
		Timeout      *fileDuration `yaml:"timeout"`
	} `yaml:"google"`
	Booking *struct {
		MinDuration      *fileDuration `yaml:"min_duration"`
		MaxDuration      *fileDuration `yaml:"max_duration"`
		HoldTTL          *fileDuration `yaml:"hold_ttl"`
		BusinessTimezone *string       `yaml:"business_timezone"`
		OpenHour         *int          `yaml:"open_hour"`
		CloseHour        *int          `yaml:"close_hour"`
		SweepInterval    *fileDuration `yaml:"sweep_interval"`
	} `yaml:"booking"`
	Auth *struct {
		AdminKey      *string `yaml:"admin_key"`
		SecretKey     *string `yaml:"secret_key"`
		EncryptionKey *string `yaml:"encryption_key"`
	} `yaml:"auth"`
	Notify *struct {
		Enabled        *bool   `yaml:"enabled"`
		URL            *string `yaml:"url"`
		Token          *string `yaml:"token"`
		TimeoutSeconds *int    `yaml:"timeout_seconds"`
		MaxRetries     *int    `yaml:"max_retries"`
		RetryBackoff   *[]int  `yaml:"retry_backoff"`
	} `yaml:"notify"`
	RateLimit *struct {
		Enabled           *bool `yaml:"enabled"`
		RequestsPerMinute *int  `yaml:"requests_per_minute"`
		Burst             *int  `yaml:"burst"`
	} `yaml:"rate_limit"`
	Logging *struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"logging"`
	Retention *struct {
		Enabled             *bool `yaml:"enabled"`
		AuditLogDays        *int  `yaml:"audit_log_days"`
		WebhookFailuresDays *int  `yaml:"webhook_failures_days"`
	} `yaml:"retention"`
}

// applyFile overlays values from a YAML file onto cfg.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if f := file.Server; f != nil {
		setString(&cfg.Server.Host, f.Host)
		setInt(&cfg.Server.Port, f.Port)
		setString(&cfg.Server.BaseURL, f.BaseURL)
		setDuration(&cfg.Server.ReadTimeout, f.ReadTimeout)
		setDuration(&cfg.Server.WriteTimeout, f.WriteTimeout)
	}
	if f := file.Database; f != nil {
		setString(&cfg.Database.Path, f.Path)
		setInt(&cfg.Database.BusyTimeoutMs, f.BusyTimeoutMs)
	}
	if f := file.Google; f != nil {
		setString(&cfg.Google.ClientID, f.ClientID)
		setString(&cfg.Google.ClientSecret, f.ClientSecret)
		setString(&cfg.Google.RedirectURI, f.RedirectURI)
		if f.Scopes != nil {
			cfg.Google.Scopes = *f.Scopes
		}
		setDuration(&cfg.Google.Timeout, f.Timeout)
	}
	if f := file.Booking; f != nil {
		setDuration(&cfg.Booking.MinDuration, f.MinDuration)
		setDuration(&cfg.Booking.MaxDuration, f.MaxDuration)
		setDuration(&cfg.Booking.HoldTTL, f.HoldTTL)
		setString(&cfg.Booking.BusinessTimezone, f.BusinessTimezone)
		setInt(&cfg.Booking.OpenHour, f.OpenHour)
		setInt(&cfg.Booking.CloseHour, f.CloseHour)
		setDuration(&cfg.Booking.SweepInterval, f.SweepInterval)
	}
	if f := file.Auth; f != nil {
		setString(&cfg.Auth.AdminKey, f.AdminKey)
		setString(&cfg.Auth.SecretKey, f.SecretKey)
		setString(&cfg.Auth.EncryptionKey, f.EncryptionKey)
	}
	if f := file.Notify; f != nil {
		setBool(&cfg.Notify.Enabled, f.Enabled)
		setString(&cfg.Notify.URL, f.URL)
		setString(&cfg.Notify.Token, f.Token)
		setInt(&cfg.Notify.TimeoutSeconds, f.TimeoutSeconds)
		setInt(&cfg.Notify.MaxRetries, f.MaxRetries)
		if f.RetryBackoff != nil {
			cfg.Notify.RetryBackoff = *f.RetryBackoff
		}
	}
	if f := file.RateLimit; f != nil {
		setBool(&cfg.RateLimit.Enabled, f.Enabled)
		setInt(&cfg.RateLimit.RequestsPerMinute, f.RequestsPerMinute)
		setInt(&cfg.RateLimit.Burst, f.Burst)
	}
	if f := file.Logging; f != nil {
		setString(&cfg.Logging.Level, f.Level)
		setString(&cfg.Logging.Format, f.Format)
	}
	if f := file.Retention; f != nil {
		setBool(&cfg.Retention.Enabled, f.Enabled)
		setInt(&cfg.Retention.AuditLogDays, f.AuditLogDays)
		setInt(&cfg.Retention.WebhookFailuresDays, f.WebhookFailuresDays)
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *fileDuration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}
