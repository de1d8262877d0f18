package formdata

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"

	"github.com/JonMunkholm/ingest/internal/logging"
)

// Reaper deletes old temp buckets. Each sweep removes last year's
// directory, the three previous months and the seven previous days.
// The current day is never touched.
type Reaper struct {
	fs   afero.Fs
	root func() string
	now  func() time.Time
}

// NewReaper builds a reaper over the temp root returned by root.
func NewReaper(fs afero.Fs, root func() string) *Reaper {
	return &Reaper{fs: fs, root: root, now: time.Now}
}

// Targets lists the directories a sweep at now considers, relative to
// the temp root, oldest granularity first.
func Targets(now time.Time) []string {
	targets := []string{fmt.Sprintf("%04d", now.Year()-1)}

	for i := 1; i <= 3; i++ {
		month := time.Date(now.Year(), now.Month()-time.Month(i), 1, 0, 0, 0, 0, now.Location())
		targets = append(targets, month.Format("2006/01"))
	}
	for i := 1; i <= 7; i++ {
		day := now.AddDate(0, 0, -i)
		targets = append(targets, day.Format("2006/01/02"))
	}
	return targets
}

// Sweep removes the existing target directories. Failures are logged and
// the sweep continues. It returns the directories that were removed.
func (r *Reaper) Sweep(ctx context.Context) []string {
	logger := logging.FromContext(ctx)
	root := r.root()

	var removed []string
	for _, rel := range Targets(r.now()) {
		if ctx.Err() != nil {
			break
		}
		dir := filepath.Join(root, filepath.FromSlash(rel))
		exists, err := afero.DirExists(r.fs, dir)
		if err != nil {
			logger.Error("stat temp dir failed", "dir", dir, "error", err)
			continue
		}
		if !exists {
			continue
		}
		logger.Info("removing tmpdir", "dir", dir)
		if err := r.fs.RemoveAll(dir); err != nil {
			logger.Error("remove tmpdir failed", "dir", dir, "error", err)
			continue
		}
		logger.Info("removed tmpdir", "dir", dir)
		removed = append(removed, dir)
	}
	return removed
}

// Start runs Sweep on the cron schedule spec (with a seconds field) until
// ctx is done.
func (r *Reaper) Start(ctx context.Context, spec string) error {
	logger := logging.FromContext(ctx)
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLogger{logger}),
	)
	if _, err := c.AddFunc(spec, func() {
		removed := r.Sweep(ctx)
		logger.Debug("tmpdir sweep finished", "removed", len(removed))
	}); err != nil {
		return fmt.Errorf("schedule tmpdir sweep: %w", err)
	}

	c.Start()
	logger.Info("tmpdir reaper started", "root", r.root(), "schedule", spec)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		logger.Info("tmpdir reaper stopped")
	}()
	return nil
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
