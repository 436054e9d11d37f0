package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 60 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Outbound mail
const (
	SMTPTimeout     = 10 * time.Second
	MailBurst       = 5
	MailSendTimeout = 30 * time.Second
)

// Background job tick budgets
const (
	DeliveryTickTimeout = 2 * time.Minute
	OvertimeTickTimeout = time.Minute
	ReportRunTimeout    = 10 * time.Minute
)

// Per-session webhook lock
const (
	SessionLockTTL     = 15 * time.Second
	SessionLockWait    = 3 * time.Second
	SessionLockBackoff = 100 * time.Millisecond
)

// Webhook route rate limit (per client IP)
const (
	WebhookRateLimitPerMin = 300
	RateLimitWindow        = time.Minute
)

// Request body caps
const (
	MaxObservationLength = 500
	MaxBodySize          = 1 << 20
)
