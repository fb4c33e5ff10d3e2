package main

import (
	"context"
	"time"

	"finitor/internal/cli"
	"finitor/internal/core"
	"finitor/internal/log"
	"finitor/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentRecurring)

	logger.Info("starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg)
	defer repo.Close()

	materializer := services.NewRecurringMaterializer(repo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := cfg.RecurringInterval
	logger.Info("recurring materializer configured",
		"interval", interval,
		"sqlite_db", cfg.SQLiteDBPath)

	run := func(now time.Time) {
		asOf := core.NewDate(now.Year(), int(now.Month()), now.Day())
		count, err := materializer.Run(ctx, asOf)
		if err != nil {
			logger.Error("materialization failed", "error", err)
			return
		}
		if count > 0 {
			logger.Info("materialization complete", "transactions_created", count)
		}
	}

	// Catch up on anything missed while the worker was down.
	run(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				run(now)
			}
		}
	}()

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, cancel)
	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("recurring-worker stopped")
}
