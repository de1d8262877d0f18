package formdata

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/dustin/go-humanize"
)

// Built-in ceilings, used when neither the call nor the application
// configuration sets a value.
const (
	DefaultFieldNameSize ByteSize = 100
	DefaultFieldSize     ByteSize = 100 * units.KiB
	DefaultFields                 = 10
	DefaultFileSize      ByteSize = 10 * units.MiB
	DefaultFiles                  = 10
	DefaultCharset                = "utf8"
)

// ByteSize is a byte count that can be written as a human readable string
// such as "100kb" or "10mb". Multiples are binary: 1kb is 1024 bytes.
type ByteSize int64

// ParseByteSize converts s into a byte count. Plain digits are bytes.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must not be negative", s)
	}
	return ByteSize(n), nil
}

// MustByteSize is like ParseByteSize but panics on malformed input.
// Use it for constants in code, never for user input.
func MustByteSize(s string) ByteSize {
	b, err := ParseByteSize(s)
	if err != nil {
		panic(err)
	}
	return b
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	v, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.IBytes(uint64(b))
}

// CheckFileFunc inspects a file part before it is handed out.
// A non-nil error aborts the session.
type CheckFileFunc func(fieldName string, hasStream bool, filename string) error

// Limits is the effective, immutable configuration of one session.
type Limits struct {
	FieldNameSize       ByteSize
	FieldSize           ByteSize
	Fields              int
	FileSize            ByteSize
	Files               int
	Parts               int // 0 means unlimited
	DefaultCharset      string
	DefaultParamCharset string
	CheckFile           CheckFileFunc
}

// LimitOptions overrides ceilings for a single call. Zero values are unset.
type LimitOptions struct {
	FieldNameSize ByteSize
	FieldSize     ByteSize
	Fields        int
	FileSize      ByteSize
	Files         int
	Parts         int
}

// Options are the per-call overrides accepted by Multipart,
// SaveRequestFiles and GetFileStream.
type Options struct {
	// AutoFields absorbs field parts into Session.Fields instead of
	// yielding them. Nil falls back to the application setting.
	AutoFields *bool

	DefaultCharset      string
	DefaultParamCharset string

	// Deprecated: use DefaultCharset.
	DefCharset string
	// Deprecated: use DefaultParamCharset.
	DefParamCharset string

	Limits    LimitOptions
	CheckFile CheckFileFunc

	// AllowNoFile lets GetFileStream return an empty stream when the form
	// carries no file instead of failing with ErrNoFile.
	AllowNoFile bool
}

// Bool returns a pointer to b, for Options.AutoFields.
func Bool(b bool) *bool { return &b }

// Resolve merges per-call options over the application configuration over
// the built-in defaults.
func Resolve(opts Options, cfg Config) Limits {
	l := Limits{
		FieldNameSize:       DefaultFieldNameSize,
		FieldSize:           DefaultFieldSize,
		Fields:              DefaultFields,
		FileSize:            DefaultFileSize,
		Files:               DefaultFiles,
		DefaultCharset:      DefaultCharset,
		DefaultParamCharset: DefaultCharset,
	}

	overlay(&l, LimitOptions{
		FieldNameSize: cfg.FieldNameSize,
		FieldSize:     cfg.FieldSize,
		Fields:        cfg.Fields,
		FileSize:      cfg.FileSize,
		Files:         cfg.Files,
		Parts:         cfg.Parts,
	})
	overlay(&l, opts.Limits)

	l.DefaultCharset = firstNonEmpty(opts.DefaultCharset, opts.DefCharset, cfg.DefaultCharset, l.DefaultCharset)
	l.DefaultParamCharset = firstNonEmpty(opts.DefaultParamCharset, opts.DefParamCharset, cfg.DefaultParamCharset, l.DefaultParamCharset)

	l.CheckFile = cfg.checkFile
	if opts.CheckFile != nil {
		l.CheckFile = opts.CheckFile
	}
	return l
}

func overlay(l *Limits, o LimitOptions) {
	if o.FieldNameSize > 0 {
		l.FieldNameSize = o.FieldNameSize
	}
	if o.FieldSize > 0 {
		l.FieldSize = o.FieldSize
	}
	if o.Fields > 0 {
		l.Fields = o.Fields
	}
	if o.FileSize > 0 {
		l.FileSize = o.FileSize
	}
	if o.Files > 0 {
		l.Files = o.Files
	}
	if o.Parts > 0 {
		l.Parts = o.Parts
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
