package main

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"finitor/internal/amqp"
	"finitor/internal/backup"
	"finitor/internal/cli"
	"finitor/internal/log"
)

const keepBackups = 10

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentBackup)

	logger.Info("starting backup-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	uploader, err := backup.NewDriveUploader(context.Background(), cfg.DriveFolderID, cfg.DriveCredentialsFile, logger)
	if err != nil {
		logger.Error("failed to initialize Drive uploader", "error", err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// dirty flips on every ledger event; the ticker only uploads when
	// something actually changed since the last backup.
	var dirty atomic.Bool

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeLedgerEvents(gctx, func(msg *amqp.LedgerEventMessage) error {
			dirty.Store(true)
			logger.Info("ledger changed, backup scheduled",
				log.FieldTransactionID, msg.TransactionID,
				log.FieldAction, msg.Action)
			return nil
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.BackupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if !dirty.Swap(false) {
					continue
				}
				fileID, err := uploader.Upload(gctx, cfg.SQLiteDBPath)
				if err != nil {
					logger.Error("backup upload failed", "error", err)
					dirty.Store(true) // retry on the next tick
					continue
				}
				logger.Info("backup uploaded", "file_id", fileID)
				if err := uploader.Prune(gctx, keepBackups); err != nil {
					logger.Error("backup prune failed", "error", err)
				}
			}
		}
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, cancel)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		// Broker connection gone; exit and let the supervisor restart us.
		logger.Error("backup-worker failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("backup-worker stopped")
}
