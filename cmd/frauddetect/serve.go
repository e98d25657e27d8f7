package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/laozhen/realtime-fraud-detection-system/internal/alert"
	"github.com/laozhen/realtime-fraud-detection-system/internal/api"
	"github.com/laozhen/realtime-fraud-detection-system/internal/config"
	"github.com/laozhen/realtime-fraud-detection-system/internal/engine"
	"github.com/laozhen/realtime-fraud-detection-system/internal/fraud"
	"github.com/laozhen/realtime-fraud-detection-system/internal/generator"
	"github.com/laozhen/realtime-fraud-detection-system/internal/ingest"
	"github.com/laozhen/realtime-fraud-detection-system/internal/logging"
	"github.com/laozhen/realtime-fraud-detection-system/internal/metrics"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transport"
)

func serveCmd(cfgPath *string) *cobra.Command {
	var generate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline, queue ingestion and the HTTP control plane",
		Long: `Run the fraud detection pipeline.

Examples:
  frauddetect serve --config configs/fraud.yaml
  frauddetect serve --generate     # in-memory queue fed by the synthetic producer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*cfgPath, generate)
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "feed the in-memory transport with synthetic transactions")
	return cmd
}

func runServe(cfgPath string, generate bool) error {
	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(cfgPath, nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := loader.Config()

	logger := logging.New(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	// ── Rules and alerting ───────────────────────────────────────────────────
	rules, err := fraud.NewRuleSet(cfg.Rules, logger)
	if err != nil {
		return fmt.Errorf("build rules: %w", err)
	}
	slog.Info("fraud rules loaded", "rules", len(rules.Detector.Rules()),
		"threshold", rules.LargeAmount.Threshold(), "blacklist", len(rules.Suspicious.Accounts()))

	sink, err := alert.DefaultRegistry().Build(cfg.Alerts, logger)
	if err != nil {
		return fmt.Errorf("build alert sinks: %w", err)
	}
	defer func() {
		if err := alert.Close(sink); err != nil {
			slog.Warn("closing alert sinks", "err", err)
		}
	}()
	telemetry := metrics.New(prometheus.DefaultRegisterer)

	// ── Pipeline ─────────────────────────────────────────────────────────────
	pipeline, err := engine.New(rules.Detector, sink, engine.Options{
		RingSize:             cfg.Pipeline.RingSize,
		Workers:              cfg.Pipeline.Workers,
		QueueCapacity:        cfg.Pipeline.QueueCapacity,
		HighLatencyThreshold: cfg.Pipeline.HighLatencyThreshold,
		Logger:               logger,
		Telemetry:            telemetry,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	if err := pipeline.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var bg sync.WaitGroup

	stopSweep := make(chan struct{})
	bg.Add(1)
	go func() {
		defer bg.Done()
		rules.RunSweeper(cfg.Rules.RapidFireSweep, stopSweep)
	}()

	// ── Transport and ingestion ──────────────────────────────────────────────
	queue, err := transport.Build(cfg.Transport.Kind, transport.Options{
		Capacity:        cfg.Pipeline.RingSize,
		RedisAddr:       cfg.Transport.Redis.Addr,
		Queue:           cfg.Transport.Redis.Queue,
		ProcessingQueue: cfg.Transport.Redis.ProcessingQueue,
		BlockTimeout:    cfg.Transport.Redis.BlockTimeout,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer queue.Close()

	switch q := queue.(type) {
	case *transport.RedisQueue:
		if _, err := q.Requeue(ctx); err != nil {
			slog.Warn("could not requeue unacknowledged messages", "err", err)
		}
	case *transport.MemoryQueue:
		bg.Add(1)
		go func() {
			defer bg.Done()
			q.RunRedelivery(ctx, time.Second)
		}()
	}

	if generate {
		gen := generator.New(cfg.Producer.FraudRate, cfg.Rules.SuspiciousAccounts, uint64(time.Now().UnixNano()))
		producer := generator.NewProducer(gen, queue, cfg.Producer.RatePerSecond,
			cfg.Producer.BurstEvery, cfg.Rules.RapidFireMaxPerMinute+2, logger)
		bg.Add(1)
		go func() {
			defer bg.Done()
			if _, err := producer.Run(ctx, 0); err != nil {
				slog.Error("producer stopped", "err", err)
			}
		}()
	}

	adapter := ingest.New(queue, pipeline, logger, telemetry.Malformed)
	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		if err := adapter.Run(ctx); err != nil {
			slog.Error("ingestion stopped", "err", err)
		}
	}()

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := rules.Reload(newCfg.Rules); err != nil {
			slog.Warn("hot-reload skipped: rules invalid", "err", err)
		}
	})
	if cfgPath != "" {
		stopWatch, err := loader.Watch()
		if err != nil {
			slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	var reloader api.Reloader
	if cfgPath != "" {
		reloader = loader
	}
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.New(pipeline, rules, reloader, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutting down…", "signal", sig.String())
	case err := <-srvErr:
		slog.Error("server error", "err", err)
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)

	cancel() // stop receiving; messages not yet received stay on the queue
	drained := pipeline.Shutdown(cfg.Pipeline.ShutdownTimeout)
	<-ingestDone
	close(stopSweep)
	bg.Wait()

	st := pipeline.Stats()
	slog.Info("goodbye", "drained", drained, "admitted", st.Admitted,
		"succeeded", st.Succeeded, "failed", st.Failed, "alerts", st.Alerts,
		"malformed", adapter.Dropped())
	return nil
}
