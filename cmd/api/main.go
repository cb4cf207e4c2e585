// Package main is the entrypoint for the quotagate API server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/cache"
	"github.com/quotagate/quotagate/internal/config"
	"github.com/quotagate/quotagate/internal/handler"
	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/middleware"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/reconcile"
	"github.com/quotagate/quotagate/internal/repository"
	"github.com/quotagate/quotagate/internal/server"
	"github.com/quotagate/quotagate/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if cfg.AutoMigrate {
		if err := repository.Migrate(cfg.DatabaseURL); err != nil {
			logger.Error("failed to run migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.Options{
		PoolSize: cfg.RedisPoolSize,
		TokenTTL: cfg.TokenCacheTTL,
	})
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	// Config.Validate already checked the strategy and zone.
	strategy, err := auth.NewStrategy(cfg.TokenStrategy, cfg.TokenPrefix, cfg.TokenSecret, cfg.TokenLength)
	if err != nil {
		logger.Error("invalid token strategy", "error", err)
		os.Exit(1)
	}
	calendar, err := quota.NewCalendar(cfg.UsageTimezone)
	if err != nil {
		logger.Error("invalid usage timezone", "error", err)
		os.Exit(1)
	}

	recorder := metrics.NewPrometheus()

	minter := service.NewMinter(repo, strategy, calendar, recorder, logger)
	engine := service.NewEngine(repo, repo, cacheClient, calendar, service.EngineConfig{
		BuiltinSolutionID: cfg.BuiltinSolutionID,
		Timeout:           cfg.DecisionTimeout,
	}, recorder, logger)
	signup := service.NewSignupService(repo, minter, calendar, cfg.BuiltinSolutionID, recorder, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	router := handler.NewRouter(handler.RouterConfig{
		Logger:         logger,
		Development:    cfg.IsDevelopment(),
		TrustProxy:     cfg.TrustProxyHeaders,
		RequestTimeout: cfg.WriteTimeout,
		MaxBodySize:    cfg.MaxRequestBodySize,
		CORS:           corsCfg,
		RateLimit: middleware.RateLimitConfig{
			Logger:        logger,
			Limiter:       cacheClient,
			PublicEnabled: cfg.RateLimitPublicEnabled,
			PublicRPS:     cfg.RateLimitPublicRPS,
			PublicBurst:   cfg.RateLimitPublicBurst,
			TokenRPM:      cfg.RateLimitTokenRPM,
			TokenBurst:    cfg.RateLimitTokenBurst,
			PartnerRPM:    cfg.RateLimitPartnerRPM,
			PartnerBurst:  cfg.RateLimitPartnerBurst,
		},
		Verifier:        auth.NewIdentityVerifier(cfg.IdentityJWTSecret, cfg.IdentityIssuer),
		Metrics:         recorder,
		MetricsUsername: cfg.MetricsUsername,
		MetricsPassword: cfg.MetricsPassword,
		Health:          handler.NewHealthHandler(repo, cacheClient),
		Tokens:          handler.NewTokenHandler(minter, engine, logger),
		Decisions:       handler.NewDecisionHandler(engine, logger),
		Usage:           handler.NewUsageHandler(engine, logger),
		Signup:          handler.NewSignupHandler(signup, logger),
		Admin:           handler.NewAdminHandler(engine, logger),
	})

	srv := server.New(router, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Closed last: registered first.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	if cfg.ReconcileEnabled {
		worker := reconcile.NewWorker(repo, signup, logger, recorder)
		worker.SetBatchSize(cfg.ReconcileBatch)
		worker.SetPollInterval(cfg.ReconcileInterval)
		srv.Go("reconcile", worker.Run)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"token_strategy", strategy.Name(),
		"builtin_solution", cfg.BuiltinSolutionID,
		"usage_timezone", cfg.UsageTimezone,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "quotagate")
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
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
