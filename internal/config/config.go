// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"

	"github.com/JonMunkholm/ingest/internal/formdata"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Multipart MultipartConfig
	Upload    UploadConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Audit     AuditConfig
}

// AppConfig identifies the running application.
type AppConfig struct {
	// Name scopes the default temp directory (default: ingest)
	Name string `env:"APP_NAME" default:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// MultipartConfig holds the application wide multipart settings.
// Sizes accept human readable values such as 100kb or 10mb.
type MultipartConfig struct {
	// Mode is stream or file (default: stream)
	Mode string `env:"MULTIPART_MODE" default:"stream"`

	// FileModeMatch lists paths ingested automatically in stream mode
	FileModeMatch []string `env:"MULTIPART_FILE_MODE_MATCH"`

	// AutoFields absorbs fields into the session instead of yielding them
	AutoFields bool `env:"MULTIPART_AUTO_FIELDS" default:"false"`

	DefaultCharset      string `env:"MULTIPART_DEFAULT_CHARSET" default:"utf8"`
	DefaultParamCharset string `env:"MULTIPART_DEFAULT_PARAM_CHARSET" default:"utf8"`

	FieldNameSize formdata.ByteSize `env:"MULTIPART_FIELD_NAME_SIZE" default:"100"`
	FieldSize     formdata.ByteSize `env:"MULTIPART_FIELD_SIZE" default:"100kb"`
	Fields        int               `env:"MULTIPART_FIELDS" default:"10"`
	FileSize      formdata.ByteSize `env:"MULTIPART_FILE_SIZE" default:"10mb"`
	Files         int               `env:"MULTIPART_FILES" default:"10"`

	// Parts caps fields plus files (default: 0, unlimited)
	Parts int `env:"MULTIPART_PARTS" default:"0"`

	// FileExtensions extends the default extension whitelist
	FileExtensions []string `env:"MULTIPART_FILE_EXTENSIONS"`

	// Whitelist replaces the default extension whitelist when set
	Whitelist []string `env:"MULTIPART_WHITELIST"`

	// AllowArrayField collects repeated fields as arrays
	AllowArrayField bool `env:"MULTIPART_ALLOW_ARRAY_FIELD" default:"false"`

	// TmpDir is where saved files go (default: <os tmp>/multipart-tmp/<APP_NAME>)
	TmpDir string `env:"MULTIPART_TMPDIR"`

	// CleanCron is the temp directory sweep schedule, with seconds
	CleanCron string `env:"MULTIPART_CLEAN_CRON" default:"0 30 4 * * *"`

	// CleanDisable turns the temp directory sweep off
	CleanDisable bool `env:"MULTIPART_CLEAN_DISABLE" default:"false"`
}

// UploadConfig holds upload concurrency settings.
type UploadConfig struct {
	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey guards the /api routes with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// AuditConfig holds the optional upload audit trail settings.
type AuditConfig struct {
	// DatabaseURL is the PostgreSQL connection string. Auditing is off when empty.
	DatabaseURL string `env:"AUDIT_DATABASE_URL" envAlt:"DATABASE_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"AUDIT_DB_MAX_CONNS" default:"4"`
}

// Enabled reports whether an audit database is configured.
func (c AuditConfig) Enabled() bool { return c.DatabaseURL != "" }

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// TmpDir returns the configured temp directory or the default for the app.
func (c *Config) TmpDir() string {
	if c.Multipart.TmpDir != "" {
		return c.Multipart.TmpDir
	}
	return formdata.DefaultTmpDir(c.App.Name)
}

// Formdata converts the multipart settings for formdata.New.
func (c *Config) Formdata() formdata.Config {
	m := c.Multipart
	cfg := formdata.Config{
		Mode:                formdata.Mode(m.Mode),
		FileModeMatch:       m.FileModeMatch,
		AutoFields:          m.AutoFields,
		DefaultCharset:      m.DefaultCharset,
		DefaultParamCharset: m.DefaultParamCharset,
		FieldNameSize:       m.FieldNameSize,
		FieldSize:           m.FieldSize,
		Fields:              m.Fields,
		FileSize:            m.FileSize,
		Files:               m.Files,
		Parts:               m.Parts,
		FileExtensions:      m.FileExtensions,
		AllowArrayField:     m.AllowArrayField,
		TmpDir:              c.TmpDir(),
		CleanSchedule: formdata.CleanSchedule{
			Cron:    m.CleanCron,
			Disable: m.CleanDisable,
		},
	}
	if len(m.Whitelist) > 0 {
		cfg.Whitelist = formdata.AllowExtensions(m.Whitelist...)
	}
	return cfg
}
