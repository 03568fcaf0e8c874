package constants

// Default server configuration values
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Default probe configuration values
const (
	DefaultHealthCheckTimeoutSec = 10
	DefaultSendTimeoutSec        = 30
	DefaultHeloDomain            = "localhost"
	DefaultSMTPPort              = 587
	DefaultIMAPPort              = 993
	DefaultDailyLimit            = 100
)

// Default bounce detection values
const (
	DefaultBounceDelayMinSec = 5
	DefaultBounceDelayMaxSec = 10
	DefaultRecentWindow      = 100
	DefaultScanTimeoutSec    = 60
	DefaultBounceWorkers     = 4
	DefaultBounceQueueSize   = 64
)

// Default maintenance values
const (
	DefaultQuotaResetIntervalHours = 24
	DefaultRetentionDays           = 30
)

// Default retry values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
)

// Default rate limiting values for the verify endpoint
const (
	DefaultRateLimitRequests  = 60
	DefaultRateLimitWindowSec = 60
)

// Relay circuit breaker defaults
const (
	DefaultBreakerMaxFailures = 3
	DefaultBreakerResetSec    = 300
)

// Address validation bounds (RFC 5321)
const (
	MaxAddressLength   = 254
	MaxLocalPartLength = 64
)

// Encryption key derivation parameters
const (
	EncryptionSalt       = "mailprobe-relay-credentials-v1"
	EncryptionLookupSalt = "mailprobe-recipient-lookup-v1"
)
