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

	"github.com/gin-gonic/gin"
	"github.com/kaptiv/sequencer/config"
	"github.com/kaptiv/sequencer/internal/health"
	"github.com/kaptiv/sequencer/internal/infrastructure/postgres"
	ctxlog "github.com/kaptiv/sequencer/internal/log"
	"github.com/kaptiv/sequencer/internal/mail"
	"github.com/kaptiv/sequencer/internal/metrics"
	"github.com/kaptiv/sequencer/internal/scheduler"
	httptransport "github.com/kaptiv/sequencer/internal/transport/http"
	"github.com/kaptiv/sequencer/internal/transport/http/handler"
	"github.com/kaptiv/sequencer/internal/usecase"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	credRepo := postgres.NewCredentialRepository(pool)
	stateRepo := postgres.NewOAuthStateRepository(pool)
	seqRepo := postgres.NewSequenceRepository(pool)
	jobRepo := postgres.NewJobRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)

	oauthCfg := mail.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.RedirectURI)
	sender, replies := mail.NewSender(cfg.Env, oauthCfg, cfg.EmailFrom, logger)

	oauthUsecase := usecase.NewOAuthUsecase(stateRepo, credRepo, oauthCfg, cfg.FrontendReturn, logger)
	sendUsecase := usecase.NewSendUsecase(credRepo, sender, cfg.EmailFrom, logger)
	seqUsecase := usecase.NewSequenceUsecase(seqRepo, jobRepo, logger, cfg.DefaultTimezone)

	worker := scheduler.NewWorker(
		jobRepo, credRepo, seqRepo, eventRepo,
		sender, replies, logger,
		cfg.JobBatchSize, cfg.MaxAttempts, cfg.EmailFrom,
	)

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	router := httptransport.NewRouter(logger, httptransport.Handlers{
		OAuth:    handler.NewOAuthHandler(oauthUsecase, logger),
		Email:    handler.NewEmailHandler(sendUsecase, logger),
		Sequence: handler.NewSequenceHandler(seqUsecase, logger),
		Worker:   handler.NewWorkerHandler(worker, logger),
	}, cfg.APIKey, cfg.WorkerSecret)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
