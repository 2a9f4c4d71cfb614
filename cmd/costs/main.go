package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"costmanager/internal/amqp"
	"costmanager/internal/backend"
	"costmanager/internal/cache"
	"costmanager/internal/cli"
	"costmanager/internal/config"
	apphttp "costmanager/internal/http"
	"costmanager/internal/log"
	"costmanager/internal/metrics"
	"costmanager/internal/rates"
	"costmanager/internal/report"
	"costmanager/internal/services"
	"costmanager/internal/settings"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx := context.Background()

	beCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, beCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	m := metrics.New()
	resolver := settings.NewResolver(be.Settings, cfg.DefaultRatesURL)
	ratesClient := rates.NewClient(resolver, rates.Config{
		Timeout:      cfg.RatesTimeout,
		MaxRetries:   cfg.RatesMaxRetries,
		RetryBackoff: cfg.RatesRetryBackoff,
		CacheTTL:     cfg.RatesCacheTTL,
	}, rates.WithMetrics(m))

	cacheManager := cache.NewManager()
	if cfg.RatesCacheTTL > 0 {
		cacheManager.Register(ratesClient.Cache())
		cacheManager.StartCleanup(cfg.RatesCacheTTL)
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// recording must keep working while the broker is down
			logger.Warn("AMQP unavailable at startup, connecting on first publish", log.FieldError, err)
			amqpClient = amqp.NewLazyClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		}
		publisher = amqpClient
		logger.Info("Cost notifications enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP_URL not set, cost notifications disabled")
	}
	costService := services.NewCostService(be.Costs, publisher, m)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Recorder:           costService,
		Costs:              be.Costs,
		Reports:            report.NewEngine(be.Costs, ratesClient, m),
		Settings:           resolver,
		Rates:              ratesClient,
		Ready:              be.Ready,
		Metrics:            m,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := costService.Close(); err != nil {
			logger.Warn("Failed to close publisher", log.FieldError, err)
		}
		if err := be.Cleanup(); err != nil {
			logger.Warn("Failed to close data backend", log.FieldError, err)
		}
	})

	logger.Info("Starting cost manager server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		log.FieldRatesURL, resolver.Resolve(ctx))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
