package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"mailprobe/internal/constants"
	"mailprobe/internal/models"
	"mailprobe/internal/security"
)

var (
	ErrMissingDBPath = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.RateLimitRequests <= 0 {
		c.Server.RateLimitRequests = constants.DefaultRateLimitRequests
	}
	if c.Server.RateLimitWindowSec <= 0 {
		c.Server.RateLimitWindowSec = constants.DefaultRateLimitWindowSec
	}
	if c.Server.QuotaResetIntervalHr <= 0 {
		c.Server.QuotaResetIntervalHr = constants.DefaultQuotaResetIntervalHours
	}

	if c.Probe.HeloDomain == "" {
		c.Probe.HeloDomain = constants.DefaultHeloDomain
	}
	if c.Probe.HealthCheckTimeoutSec <= 0 {
		c.Probe.HealthCheckTimeoutSec = constants.DefaultHealthCheckTimeoutSec
	}
	if c.Probe.SendTimeoutSec <= 0 {
		c.Probe.SendTimeoutSec = constants.DefaultSendTimeoutSec
	}
	if c.Probe.BreakerMaxFailures <= 0 {
		c.Probe.BreakerMaxFailures = constants.DefaultBreakerMaxFailures
	}
	if c.Probe.BreakerResetSec <= 0 {
		c.Probe.BreakerResetSec = constants.DefaultBreakerResetSec
	}

	if c.Bounce.DelayMinSec <= 0 {
		c.Bounce.DelayMinSec = constants.DefaultBounceDelayMinSec
	}
	if c.Bounce.DelayMaxSec <= 0 {
		c.Bounce.DelayMaxSec = constants.DefaultBounceDelayMaxSec
	}
	if c.Bounce.DelayMaxSec < c.Bounce.DelayMinSec {
		return models.ConfigError{Message: "bounce delay max must not be below min"}
	}
	if c.Bounce.RecentWindow <= 0 {
		c.Bounce.RecentWindow = constants.DefaultRecentWindow
	}
	if c.Bounce.ScanTimeoutSec <= 0 {
		c.Bounce.ScanTimeoutSec = constants.DefaultScanTimeoutSec
	}
	if c.Bounce.Workers <= 0 {
		c.Bounce.Workers = constants.DefaultBounceWorkers
	}
	if c.Bounce.QueueSize <= 0 {
		c.Bounce.QueueSize = constants.DefaultBounceQueueSize
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultRetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("MAILPROBE_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if port := os.Getenv("MAILPROBE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if level := os.Getenv("MAILPROBE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if helo := os.Getenv("MAILPROBE_HELO_DOMAIN"); helo != "" {
		c.Probe.HeloDomain = helo
	}
}

// validateSecurity enforces production-only requirements after env overrides
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("MAILPROBE_ENV") == "production"

	if isProduction {
		// The API key guards every operator endpoint
		apiKey := os.Getenv("MAILPROBE_API_KEY")
		if apiKey == "" {
			return models.ConfigError{Message: "API key is required in production (set MAILPROBE_API_KEY environment variable)"}
		}
		if len(apiKey) < 32 {
			return models.ConfigError{Message: "API key must be at least 32 characters long"}
		}

		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		if os.Getenv("MAILPROBE_API_KEY") == "" {
			fmt.Fprintf(os.Stderr, "WARNING: API key not set. Set MAILPROBE_API_KEY environment variable to protect operator endpoints.\n")
		}
	}

	return nil
}
