package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kaptiv/sequencer/config"
	"github.com/kaptiv/sequencer/internal/health"
	"github.com/kaptiv/sequencer/internal/infrastructure/postgres"
	ctxlog "github.com/kaptiv/sequencer/internal/log"
	"github.com/kaptiv/sequencer/internal/mail"
	"github.com/kaptiv/sequencer/internal/metrics"
	"github.com/kaptiv/sequencer/internal/scheduler"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// The worker daemon is an alternative to triggering /api/run_scheduled_jobs
// from an external scheduler: the same tick, driven by an in-process cron.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	credRepo := postgres.NewCredentialRepository(pool)
	seqRepo := postgres.NewSequenceRepository(pool)
	jobRepo := postgres.NewJobRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)

	oauthCfg := mail.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.RedirectURI)
	sender, replies := mail.NewSender(cfg.Env, oauthCfg, cfg.EmailFrom, logger)

	worker := scheduler.NewWorker(
		jobRepo, credRepo, seqRepo, eventRepo,
		sender, replies, logger,
		cfg.JobBatchSize, cfg.MaxAttempts, cfg.EmailFrom,
	)

	c := cron.New()
	if _, err := c.AddFunc(cfg.WorkerCron, func() {
		if _, err := worker.Run(ctx); err != nil {
			logger.Error("worker tick", "error", err)
		}
	}); err != nil {
		stop()
		log.Fatalf("worker cron %q: %v", cfg.WorkerCron, err)
	}
	c.Start()
	logger.Info("worker started", "cron", cfg.WorkerCron, "batch_size", cfg.JobBatchSize)

	if cfg.ReclaimAfterMin > 0 {
		staleAge := time.Duration(cfg.ReclaimAfterMin) * time.Minute
		reaper := scheduler.NewReaper(jobRepo, logger, time.Minute, staleAge)
		go reaper.Start(ctx)
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	cronCtx := c.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("worker shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
