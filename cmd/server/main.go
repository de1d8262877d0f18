package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/ingest/internal/audit"
	"github.com/JonMunkholm/ingest/internal/config"
	"github.com/JonMunkholm/ingest/internal/formdata"
	"github.com/JonMunkholm/ingest/internal/logging"
	"github.com/JonMunkholm/ingest/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	fc := cfg.Formdata()
	fc.ErrorHandler = web.IngestErrorHandler
	ingestor, err := formdata.New(fc)
	if err != nil {
		slog.Error("invalid multipart configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"mode", fc.Mode,
		"tmpdir", fc.TmpDir,
		"file_size", humanize.IBytes(uint64(fc.FileSize)),
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"audit_enabled", cfg.Audit.Enabled(),
	)

	// Cancelled on shutdown; stops the reaper and rate limiter cleanup
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	recorder, closeAudit := openAudit(jobCtx, cfg.Audit)
	defer closeAudit()

	if !fc.CleanSchedule.Disable {
		if err := ingestor.Reaper().Start(jobCtx, ingestor.Config().CleanSchedule.Cron); err != nil {
			slog.Error("failed to start tmpdir reaper", "error", err)
			os.Exit(1)
		}
	}

	limiter := web.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	server := web.NewServer(jobCtx, cfg, ingestor, recorder, limiter)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for uploads to complete", "active", active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openAudit connects the audit trail when a database is configured and
// falls back to a no-op recorder otherwise.
func openAudit(ctx context.Context, cfg config.AuditConfig) (audit.Recorder, func()) {
	if !cfg.Enabled() {
		return audit.Nop{}, func() {}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to parse audit database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to audit database", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping audit database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.DatabaseURL); err == nil {
		slog.Info("connected to audit database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	recorder := audit.NewPgRecorder(pool)
	if err := recorder.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create audit schema", "error", err)
		os.Exit(1)
	}
	return recorder, pool.Close
}
