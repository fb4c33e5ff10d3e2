package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"finitor/internal/amqp"
	"finitor/internal/cache"
	"finitor/internal/cli"
	apphttp "finitor/internal/http"
	"finitor/internal/log"
	"finitor/internal/rates"
	"finitor/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)

	logger.Info("starting finitord")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg)
	defer repo.Close()

	// AMQP is optional; without a broker the ledger still works, it
	// just stops announcing changes.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, ledger events will not be published")
	}

	var provider rates.Provider
	if cfg.RateProviderURL != "" {
		provider = rates.NewHTTPProvider(cfg.RateProviderURL, logger)
	}

	rateSvc := services.NewRateService(repo, provider, cfg.RateMaxAge, logger)

	cacheManager := cache.NewManager()
	cacheManager.Register(rateSvc)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.StopCleanup()

	ledger := services.NewLedgerService(repo, rateSvc, amqpClient, cfg.DefaultCurrency, logger)
	agg := services.NewAggregationEngine(repo, rateSvc)
	budgets := services.NewBudgetEngine(repo, rateSvc, cfg.RateMaxAge, logger)

	srv := apphttp.NewServer(":"+cfg.Port, ledger, rateSvc, agg, budgets, cfg.BaseCurrency, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic rate refresh keeps conversions from going stale.
	if provider != nil && cfg.RateRefreshEvery > 0 {
		go func() {
			ticker := time.NewTicker(cfg.RateRefreshEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := rateSvc.Refresh(ctx); err != nil {
						logger.Error("rate refresh failed", "error", err)
					}
				}
			}
		}()
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		cancel()
	})

	logger.Info("starting ledger server", "port", cfg.Port, "base_currency", cfg.BaseCurrency)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("server stopped gracefully")
}
