package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig   `json:"server"`
	Database      DatabaseConfig `json:"database"`
	Probe         ProbeConfig    `json:"probe"`
	Bounce        BounceConfig   `json:"bounce"`
	Retry         RetryConfig    `json:"retry"`
	Tracing       TracingConfig  `json:"tracing"`
	LogLevel      string         `json:"log_level"`
	RetentionDays int            `json:"retentionDays"`
}

// ServerConfig holds HTTP server related configurations
type ServerConfig struct {
	Port                 int `json:"port"`
	ReadTimeoutSec       int `json:"readTimeoutSec"`
	WriteTimeoutSec      int `json:"writeTimeoutSec"`
	IdleTimeoutSec       int `json:"idleTimeoutSec"`
	RateLimitRequests    int `json:"rateLimitRequests"`
	RateLimitWindowSec   int `json:"rateLimitWindowSec"`
	QuotaResetIntervalHr int `json:"quotaResetIntervalHours"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ProbeConfig holds outbound probing configurations shared by the health
// checker and the dispatch send path.
type ProbeConfig struct {
	HeloDomain            string `json:"heloDomain"`
	HealthCheckTimeoutSec int    `json:"healthCheckTimeoutSec"`
	SendTimeoutSec        int    `json:"sendTimeoutSec"`
	BreakerMaxFailures    int    `json:"breakerMaxFailures"`
	BreakerResetSec       int    `json:"breakerResetSec"`
}

// BounceConfig holds bounce detection configurations
type BounceConfig struct {
	DelayMinSec    int `json:"delayMinSec"`
	DelayMaxSec    int `json:"delayMaxSec"`
	RecentWindow   int `json:"recentWindow"`
	ScanTimeoutSec int `json:"scanTimeoutSec"`
	Workers        int `json:"workers"`
	QueueSize      int `json:"queueSize"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry related configurations
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
