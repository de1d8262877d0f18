// Package formdata ingests multipart/form-data request bodies.
//
// An Ingestor is created once per application from a Config. For each
// request it can:
//
//   - open a Session (Multipart) and pull fields and file streams one at a
//     time, in body order;
//   - save every file to temporary storage and collect the fields
//     (SaveRequestFiles), removing already written files if anything fails;
//   - hand out a single file stream (GetFileStream, deprecated);
//   - delete saved files (CleanupRequestFiles).
//
// Saved files live under tmpdir/YYYY/MM/DD/HH and are reclaimed by the
// Reaper on a cron schedule.
//
// Every request may be parsed at most once; the state that enforces this
// is the *Request attached by Middleware.
package formdata

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
)

// Mode selects how multipart requests are ingested.
type Mode string

const (
	// ModeStream leaves parsing to handlers. FileModeMatch may still enable
	// automatic ingestion for some paths.
	ModeStream Mode = "stream"
	// ModeFile ingests every multipart request before the handler runs.
	ModeFile Mode = "file"
)

// DefaultCleanCron runs the temp directory sweep daily at 04:30:00.
const DefaultCleanCron = "0 30 4 * * *"

// CleanSchedule configures the temp directory sweep.
type CleanSchedule struct {
	Cron    string
	Disable bool
}

// Config is the application wide multipart configuration.
type Config struct {
	Mode Mode

	// FileModeMatch restricts automatic ingestion in stream mode to
	// matching request paths. See NewPathMatcher for the pattern syntax.
	FileModeMatch []string
	// FileModeFunc is an additional matcher evaluated with FileModeMatch.
	FileModeFunc func(*http.Request) bool

	AutoFields          bool
	DefaultCharset      string
	DefaultParamCharset string

	FieldNameSize ByteSize
	FieldSize     ByteSize
	Fields        int
	FileSize      ByteSize
	Files         int
	Parts         int

	// FileExtensions extends the default whitelist. Ignored when Whitelist
	// is not the default.
	FileExtensions []string
	Whitelist      Whitelist

	AllowArrayField bool

	// TmpDir is where saved files go. TmpDirFunc, when set, is called for
	// every session and wins over TmpDir.
	TmpDir     string
	TmpDirFunc func() string

	CleanSchedule CleanSchedule

	// Fs is the filesystem for saved files. Defaults to the OS filesystem.
	Fs afero.Fs

	// ErrorHandler renders ingestion errors raised by Middleware.
	// Defaults to WriteError.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)

	checkFile CheckFileFunc
}

// DefaultTmpDir returns the default temp directory for an application.
func DefaultTmpDir(appName string) string {
	return filepath.Join(os.TempDir(), "multipart-tmp", appName)
}

// Validate reports configuration mistakes that must stop the application
// from starting.
func (c Config) Validate() error {
	switch c.Mode {
	case "", ModeStream, ModeFile:
	default:
		return fmt.Errorf("Expect mode to be 'stream' or 'file', but got '%s'", c.Mode)
	}
	if c.Mode == ModeFile && (len(c.FileModeMatch) > 0 || c.FileModeFunc != nil) {
		return fmt.Errorf("`fileModeMatch` options only work on stream mode, please remove it")
	}
	if c.FieldNameSize < 0 || c.FieldSize < 0 || c.FileSize < 0 {
		return fmt.Errorf("size limits must not be negative")
	}
	if c.Fields < 0 || c.Files < 0 || c.Parts < 0 {
		return fmt.Errorf("count limits must not be negative")
	}
	if c.TmpDir == "" && c.TmpDirFunc == nil {
		return fmt.Errorf("tmpdir is required")
	}
	if !c.CleanSchedule.Disable && c.CleanSchedule.Cron != "" {
		if _, err := cronParser.Parse(c.CleanSchedule.Cron); err != nil {
			return fmt.Errorf("invalid clean schedule %q: %w", c.CleanSchedule.Cron, err)
		}
	}
	return nil
}

var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Ingestor exposes the multipart operations to request handlers.
type Ingestor struct {
	cfg     Config
	store   *TempStore
	matcher *PathMatcher
}

// New validates cfg and builds an Ingestor.
func New(cfg Config) (*Ingestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeStream
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = WriteError
	}
	if cfg.CleanSchedule.Cron == "" {
		cfg.CleanSchedule.Cron = DefaultCleanCron
	}
	cfg.checkFile = NewExtensionGate(cfg.Whitelist, cfg.FileExtensions).Check

	matcher, err := NewPathMatcher(cfg.FileModeMatch, cfg.FileModeFunc)
	if err != nil {
		return nil, err
	}

	root := cfg.TmpDirFunc
	if root == nil {
		dir := cfg.TmpDir
		root = func() string { return dir }
	}

	return &Ingestor{
		cfg:     cfg,
		store:   NewTempStore(cfg.Fs, root),
		matcher: matcher,
	}, nil
}

// Config returns the normalized configuration.
func (m *Ingestor) Config() Config { return m.cfg }

// Store returns the temp file store.
func (m *Ingestor) Store() *TempStore { return m.store }

// Reaper returns a reaper over the same temp directory.
func (m *Ingestor) Reaper() *Reaper {
	return NewReaper(m.cfg.Fs, m.store.Root)
}
