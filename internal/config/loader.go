package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, fills in the struct
// tag defaults and validates the result. Every unparsable variable is
// reported, not just the first.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envTag is the parsed form of a field's env, envAlt, default and required
// tags.
type envTag struct {
	names    []string // looked up in order
	def      string
	required bool
}

func parseTag(f reflect.StructField) (envTag, bool) {
	name := f.Tag.Get("env")
	if name == "" {
		return envTag{}, false
	}
	tag := envTag{
		names:    []string{name},
		def:      f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}
	if alt := f.Tag.Get("envAlt"); alt != "" {
		tag.names = append(tag.names, alt)
	}
	return tag, true
}

// value returns the first non-empty variable, else the default.
func (t envTag) value() (string, error) {
	for _, n := range t.names {
		if v := os.Getenv(n); v != "" {
			return v, nil
		}
	}
	if t.required {
		return "", fmt.Errorf("required environment variable %s is not set", t.names[0])
	}
	return t.def, nil
}

// parsers convert a variable to a field's type.
var parsers = map[reflect.Type]func(string) (any, error){
	reflect.TypeFor[string]():        func(s string) (any, error) { return s, nil },
	reflect.TypeFor[int]():           func(s string) (any, error) { return strconv.Atoi(s) },
	reflect.TypeFor[int64]():         func(s string) (any, error) { return strconv.ParseInt(s, 10, 64) },
	reflect.TypeFor[float64]():       func(s string) (any, error) { return strconv.ParseFloat(s, 64) },
	reflect.TypeFor[bool]():          func(s string) (any, error) { return strconv.ParseBool(s) },
	reflect.TypeFor[time.Duration](): func(s string) (any, error) { return time.ParseDuration(s) },
	reflect.TypeFor[[]string]():      func(s string) (any, error) { return splitList(s), nil },
}

// splitList splits a comma-separated list, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadStruct fills the tagged fields of v and of its nested structs.
func loadStruct(v reflect.Value) error {
	var errs []error
	t := v.Type()
	for i := range t.NumField() {
		f, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			if err := loadStruct(fv); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		tag, ok := parseTag(f)
		if !ok {
			continue
		}
		raw, err := tag.value()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if raw == "" {
			continue
		}

		parse, ok := parsers[f.Type]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unsupported field type %s", tag.names[0], f.Type))
			continue
		}
		parsed, err := parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", tag.names[0], raw, err))
			continue
		}
		fv.Set(reflect.ValueOf(parsed))
	}
	return errors.Join(errs...)
}

// problems collects validation failures.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func oneOf(s string, allowed ...string) bool {
	s = strings.ToLower(s)
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var p problems

	if db := c.Database; db.Enabled() {
		p.check(db.MaxConns >= db.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", db.MaxConns, db.MinConns)
		p.check(db.MaxConns > 0, "DB_MAX_CONNS must be positive")
		p.check(db.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
	}

	srv := c.Server
	p.check(srv.Port > 0 && srv.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", srv.Port)
	p.check(srv.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(srv.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	p.check(c.Upload.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")

	ses := c.Session
	p.check(ses.MaxSessions > 0, "SESSION_MAX must be positive")
	p.check(ses.IdleTimeout > 0, "SESSION_IDLE_TIMEOUT must be positive")
	p.check(ses.SweepInterval > 0, "SESSION_SWEEP_INTERVAL must be positive")
	p.check(ses.HistoryLimit >= 0, "SESSION_HISTORY_LIMIT must be non-negative")

	fit := c.Fit
	p.check(oneOf(fit.Method, "nelder-mead", "lbfgs"), "FIT_METHOD (%q) must be one of: nelder-mead, lbfgs", fit.Method)
	p.check(fit.MaxIterations > 0, "FIT_MAX_ITERATIONS must be positive")
	p.check(fit.Tolerance > 0, "FIT_TOLERANCE must be positive")
	p.check(fit.Timeout > 0, "FIT_TIMEOUT must be positive")
	p.check(fit.MaxConcurrent > 0, "FIT_MAX_CONCURRENT must be positive")
	p.check(fit.MaxWaitTime > 0, "FIT_MAX_WAIT_TIME must be positive")

	p.check(c.Plot.WidthInches > 0 && c.Plot.HeightInches > 0, "PLOT_WIDTH_INCHES and PLOT_HEIGHT_INCHES must be positive")
	p.check(c.Plot.Samples >= 2, "PLOT_SAMPLES must be at least 2")

	p.check(!c.Rate.Enabled || c.Rate.RequestsPerMinute > 0,
		"RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	p.check(!c.Security.RequireAPIKey || len(c.Security.APIKeys) > 0, "API_KEYS must be set when REQUIRE_API_KEY is true")

	p.check(oneOf(c.Logging.Level, "debug", "info", "warn", "error"),
		"LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	p.check(oneOf(c.Logging.Format, "text", "json"), "LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

// String summarises the config for the startup log with the database URL
// masked.
func (c *Config) String() string {
	db := "disabled"
	if c.Database.Enabled() {
		db = "[MASKED]"
	}
	return fmt.Sprintf("Config{Server: {Addr: %s}, Database: {URL: %s, MaxConns: %d}, "+
		"Session: {Max: %d, IdleTimeout: %s}, Fit: {Method: %q, Timeout: %s, MaxConcurrent: %d}, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Addr(), db, c.Database.MaxConns,
		c.Session.MaxSessions, c.Session.IdleTimeout,
		c.Fit.Method, c.Fit.Timeout, c.Fit.MaxConcurrent,
		c.Logging.Level, c.Logging.Format)
}
