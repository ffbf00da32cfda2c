package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,required" validate:"required"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,required" validate:"required"`
	RedirectURI        string `env:"REDIRECT_URI,required" validate:"required,url"`
	FrontendReturn     string `env:"FRONTEND_RETURN" envDefault:"http://localhost:3000/settings"`

	APIKey       string `env:"KAPTIV_API_KEY,required" validate:"required,min=16"`
	WorkerSecret string `env:"WORKER_SECRET,required" validate:"required,min=16"`

	EmailFrom       string `env:"EMAIL_FROM"`
	JobBatchSize    int    `env:"JOB_BATCH_SIZE" envDefault:"20" validate:"min=1,max=500"`
	MaxAttempts     int    `env:"MAX_ATTEMPTS" envDefault:"5" validate:"min=1,max=10"`
	DefaultTimezone string `env:"DEFAULT_TIMEZONE" envDefault:"Asia/Singapore"`

	// Worker daemon (cmd/worker) only.
	WorkerCron string `env:"WORKER_CRON" envDefault:"* * * * *"`

	// 0 disables the stale-claim reaper. When enabled, a job stuck in
	// claimed longer than this many minutes is returned to scheduled,
	// trading a possible duplicate send for liveness.
	ReclaimAfterMin int `env:"RECLAIM_AFTER_MIN" envDefault:"0" validate:"min=0"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
