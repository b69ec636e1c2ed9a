package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"opticash/internal/amqp"
	"opticash/internal/cli"
	applog "opticash/internal/log"
	"opticash/internal/metrics"
	"opticash/internal/middleware/trace"
	"opticash/internal/overlay"
	"opticash/internal/services"
	"opticash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting opticash-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	m := metrics.New()

	result := cli.InitBackend(context.Background(), logger, cfg)

	ov, err := overlay.Load(context.Background(), result.State)
	if err != nil {
		logger.Error("Failed to load payment overlay", "error", err)
		os.Exit(1)
	}
	payments := services.NewPaymentService(result.Store, ov,
		services.WithStateStore(result.State),
		services.WithPaymentMetrics(m))
	paymentWorker := worker.NewPaymentWorker(payments, m)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled - settling from the overlay only")
	}

	processor := services.NewSettlementProcessor(payments, services.SettlementProcessorConfig{
		PollInterval: cfg.SyncInterval,
		MemberIDs:    cfg.ReconcileMemberIDs,
	})

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux(m),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Warn("Settlement processor did not stop cleanly", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", "error", err)
		}
		if amqpClient != nil {
			amqpClient.Close()
		}
		if err := result.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", "error", err)
		}
	})

	go func() {
		logger.Info("Serving metrics", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	logger.Info("Performing startup settlement check...")
	if err := paymentWorker.StartupSettlementCheck(ctx); err != nil {
		logger.Error("Startup settlement check failed", "error", err)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start settlement processor", "error", err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			if err := amqpClient.ConsumePayments(ctx, paymentWorker.HandlePaymentMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	}

	logger.Info("opticash-worker running",
		"backend", cfg.DataBackend,
		"sync_interval", cfg.SyncInterval,
		"reconcile_members", len(cfg.ReconcileMemberIDs))
	cli.WaitForShutdown(ctx, done)
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return trace.Middleware(mux)
}
