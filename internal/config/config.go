// Package config loads the server configuration from environment variables.
// Defaults cover everything except optional integrations; every setting is
// validated on startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Session  SessionConfig
	Fit      FitConfig
	Plot     PlotConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the optional result store connection.
// Fit results and edit history are only persisted when URL is set.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Supports DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// UploadConfig holds data file upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted file size in bytes (default: 32MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"33554432"`
}

// SessionConfig bounds the number and lifetime of open fitting sessions.
type SessionConfig struct {
	MaxSessions int `env:"SESSION_MAX" default:"100"`

	// IdleTimeout closes sessions that have not been used for this long (default: 2h)
	IdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" default:"2h"`

	// SweepInterval is how often idle sessions are looked for (default: 5m)
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" default:"5m"`

	// HistoryLimit caps the in-memory edit history per session (default: 500)
	HistoryLimit int `env:"SESSION_HISTORY_LIMIT" default:"500"`
}

// FitConfig holds solver settings.
type FitConfig struct {
	// Method is the minimiser: nelder-mead or lbfgs (default: nelder-mead)
	Method string `env:"FIT_METHOD" default:"nelder-mead"`

	MaxIterations int     `env:"FIT_MAX_ITERATIONS" default:"10000"`
	Tolerance     float64 `env:"FIT_TOLERANCE" default:"1e-12"`

	// Timeout bounds a single fit (default: 30s)
	Timeout time.Duration `env:"FIT_TIMEOUT" default:"30s"`

	// MaxConcurrent is the maximum number of fits running at once (default: 4)
	MaxConcurrent int `env:"FIT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a fit waits for a slot (default: 10s)
	MaxWaitTime time.Duration `env:"FIT_MAX_WAIT_TIME" default:"10s"`
}

// PlotConfig holds figure settings.
type PlotConfig struct {
	// WidthInches and HeightInches set the figure size (default: 6x4)
	WidthInches  float64 `env:"PLOT_WIDTH_INCHES" default:"6"`
	HeightInches float64 `env:"PLOT_HEIGHT_INCHES" default:"4"`

	// Samples is the number of points used to draw a curve (default: 200)
	Samples int  `env:"PLOT_SAMPLES" default:"200"`
	Grid    bool `env:"PLOT_GRID" default:"true"`
	Legend  bool `env:"PLOT_LEGEND" default:"true"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

// SecurityConfig holds response hardening settings.
type SecurityConfig struct {
	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// AllowedOrigins is a comma-separated list of origins allowed to call the API.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP / X-Forwarded-For are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
