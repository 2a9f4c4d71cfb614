package main

import (
	"context"
	"errors"
	"os"
	"time"

	"costmanager/internal/amqp"
	"costmanager/internal/backend"
	"costmanager/internal/cli"
	"costmanager/internal/config"
	"costmanager/internal/log"
	gsheet "costmanager/internal/sheets/google"
	"costmanager/internal/storage"
	"costmanager/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentWorker)

	logger.Info("Starting costs-worker")
	startCtx := context.Background()

	sheetsClient, err := gsheet.New(startCtx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(sheetsClient)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
	})

	// Entries recorded while the worker was down never reached the queue;
	// the local SQLite store still has them.
	if backend.BackendType(cfg.DataBackend) == backend.SQLiteBackend {
		backfill(ctx, logger, syncWorker, cfg.SQLiteDBPath)
	} else {
		logger.Info("Skipping startup backfill, no shared store", "backend", cfg.DataBackend)
	}

	go func() {
		err := amqpClient.ConsumeCostRecorded(ctx, syncWorker.HandleCostRecorded)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

func backfill(ctx context.Context, logger *log.Logger, w *worker.SyncWorker, dbPath string) {
	repo, err := storage.NewSQLiteRepository(ctx, dbPath)
	if err != nil {
		logger.Error("Failed to open cost store for backfill", log.FieldError, err, "path", dbPath)
		return
	}
	defer repo.Close()

	logger.Info("Performing startup backfill...")
	if err := w.Backfill(ctx, repo); err != nil {
		logger.Error("Startup backfill failed", log.FieldError, err)
	}
}
