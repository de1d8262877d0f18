package config

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	durationType  = reflect.TypeOf(time.Duration(0))
	unmarshalType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// Load builds the service configuration from the environment. Each field
// names its variable in an env tag, with envAlt as a fallback name and
// default applied when both are unset. Multipart sizes such as
// MULTIPART_FILE_SIZE accept "10mb" style values.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := fill(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// fill walks the sections of Config and sets every tagged field.
func fill(section reflect.Value) error {
	t := section.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), section.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			if err := fill(fv); err != nil {
				return err
			}
			continue
		}

		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		raw, ok := lookup(name, sf.Tag.Get("envAlt"))
		if !ok {
			raw = sf.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, raw, err)
		}
	}
	return nil
}

// lookup returns the first non-empty value among the given variable names.
func lookup(names ...string) (string, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v := os.Getenv(n); v != "" {
			return v, true
		}
	}
	return "", false
}

// assign parses raw into fv. formdata.ByteSize and other TextUnmarshalers
// parse themselves.
func assign(fv reflect.Value, raw string) error {
	if fv.CanAddr() && fv.Addr().Type().Implements(unmarshalType) {
		return fv.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw))
	}
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", fv.Type().Elem().Kind())
		}
		fv.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", fv.Kind())
	}
	return nil
}

// splitList reads a comma separated list such as MULTIPART_FILE_EXTENSIONS
// or TRUSTED_PROXIES. Blank entries are dropped.
func splitList(raw string) []string {
	var out []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate reports every problem at once so a bad deployment can be fixed
// in one pass. Multipart settings are checked by formdata itself.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	check(c.Server.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	check(c.App.Name != "" || c.Multipart.TmpDir != "", "APP_NAME or MULTIPART_TMPDIR is required")
	check(c.Multipart.Fields > 0, "MULTIPART_FIELDS must be positive")
	check(c.Multipart.Files > 0, "MULTIPART_FILES must be positive")
	check(c.Multipart.FileSize > 0, "MULTIPART_FILE_SIZE must be positive")
	if err := c.Formdata().Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	check(c.Upload.MaxConcurrent > 0, "UPLOAD_MAX_CONCURRENT must be positive")
	check(c.Upload.MaxWaitTime > 0, "UPLOAD_MAX_WAIT_TIME must be positive")

	if c.Rate.Enabled {
		check(c.Rate.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		check(c.Rate.UploadLimit > 0, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}
	if c.Audit.Enabled() {
		check(c.Audit.MaxConns > 0, "AUDIT_DB_MAX_CONNS must be positive")
	}
	check(!c.Security.RequireAPIKey || len(c.Security.APIKeys) > 0,
		"REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		check(false, "LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		check(false, "LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("validation failed:\n  - " + strings.Join(problems, "\n  - "))
}

// String summarizes the config for the startup log. API keys and the
// audit database URL are never printed.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Config{App: {Name: %q}, ", c.App.Name)
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Multipart: {Mode: %q, FieldSize: %s, FileSize: %s, Fields: %d, Files: %d, TmpDir: %q}, ",
		c.Multipart.Mode, c.Multipart.FieldSize, c.Multipart.FileSize,
		c.Multipart.Fields, c.Multipart.Files, c.TmpDir())
	fmt.Fprintf(&b, "Upload: {MaxConcurrent: %d, MaxWaitTime: %s}, ", c.Upload.MaxConcurrent, c.Upload.MaxWaitTime)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: [%d MASKED]}, ", c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Audit: {Enabled: %v, DatabaseURL: [MASKED]}, ", c.Audit.Enabled())
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}}", c.Logging.Level, c.Logging.Format)
	return b.String()
}
