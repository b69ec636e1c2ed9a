package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"opticash/internal/amqp"
	"opticash/internal/cli"
	applog "opticash/internal/log"
	"opticash/internal/overlay"
	"opticash/internal/services"
	gsheet "opticash/internal/sheets/google"
	"opticash/internal/view"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", "error", err)
		}
	}()

	ov, err := overlay.Load(ctx, result.State)
	if err != nil {
		logger.Error("Failed to load payment overlay", "error", err)
		return 1
	}

	paymentOpts := []services.PaymentOption{services.WithStateStore(result.State)}
	if cfg.OfflinePayments && cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, offline payments stay local", "error", err)
		} else {
			defer amqpClient.Close()
			paymentOpts = append(paymentOpts, services.WithPublisher(amqpClient))
		}
	}

	a := &app{
		store:         result.Store,
		contributions: services.NewContributionService(result.Store, services.WithBatchConcurrency(cfg.BatchConcurrency)),
		payments:      services.NewPaymentService(result.Store, ov, paymentOpts...),
		loader:        view.NewLoader(result.Store, ov),
		out:           os.Stdout,
	}

	if cfg.SheetsEnabled() {
		exporter, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Warn("Google Sheets export unavailable", "error", err)
		} else {
			a.exporter = exporter
		}
	}

	if err := a.run(ctx, os.Args[1:]); err != nil {
		logger.Error("Command failed", "error", err)
		return 1
	}
	return 0
}
