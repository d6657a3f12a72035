package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"gumball/internal/amqp"
	"gumball/internal/cli"
	"gumball/internal/config"
	"gumball/internal/log"
	"gumball/internal/sheets"
	gsheet "gumball/internal/sheets/google"
	"gumball/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting gumball-worker")

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}
	if err := checkWorkerConfig(cfg); err != nil {
		cli.Fatal(logger, "Invalid worker configuration", err)
	}

	// run returns instead of exiting so its deferred closes always happen.
	if err := run(logger, cfg); err != nil {
		cli.Fatal(logger, "Worker stopped with error", err)
	}
	logger.Info("Worker shutdown complete")
}

func checkWorkerConfig(cfg *config.Config) error {
	switch {
	case cfg.DataBackend != "sqlite":
		return errors.New("the worker reads the ledger and requires DATA_BACKEND=sqlite")
	case cfg.AMQPURL == "":
		return errors.New("the worker consumes sync messages and requires AMQP_URL")
	case cfg.GoogleSpreadsheetID == "":
		return errors.New("the worker exports to Google Sheets and requires GOOGLE_SPREADSHEET_ID")
	}
	return nil
}

func run(logger *log.Logger, cfg *config.Config) error {
	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("initialize SQLite ledger: %w", err)
	}
	defer repo.Close()

	sheetsClient, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	var writer sheets.EventWriter = sheetsClient
	if hw, ok := writer.(sheets.HeaderWriter); ok {
		if err := hw.EnsureHeader(ctx); err != nil {
			// Not fatal; rows still append below whatever is there.
			logger.Warn("Failed to write ledger header", log.FieldError, err)
		}
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, writer, cfg.SyncBatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeEventSync(gctx, syncWorker.HandleSyncMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		// Catches events whose sync message was lost.
		return syncWorker.Run(gctx, cfg.SyncInterval)
	})
	return g.Wait()
}
