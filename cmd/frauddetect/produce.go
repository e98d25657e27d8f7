package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/laozhen/realtime-fraud-detection-system/internal/config"
	"github.com/laozhen/realtime-fraud-detection-system/internal/generator"
	"github.com/laozhen/realtime-fraud-detection-system/internal/logging"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transport"
)

func produceCmd(cfgPath *string) *cobra.Command {
	var (
		count     int
		rate      float64
		fraudRate float64
		seed      uint64
	)
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Publish synthetic transactions onto the configured transport",
		Long: `Publish synthetic transactions, including rapid-fire bursts and a share
of suspicious ones, onto the Redis queue a serve process consumes.

Examples:
  frauddetect produce --config configs/fraud.yaml --count 10000 --rate 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := config.NewLoader(*cfgPath, nil)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg := loader.Config()
			logger := logging.New(cfg.Logging, os.Stderr)
			slog.SetDefault(logger)

			if cfg.Transport.Kind != transport.KindRedis {
				return fmt.Errorf("produce needs a shared transport; transport.kind is %q (use redis, or serve --generate)", cfg.Transport.Kind)
			}
			if cmd.Flags().Changed("rate") {
				cfg.Producer.RatePerSecond = rate
			}
			if cmd.Flags().Changed("fraud-rate") {
				cfg.Producer.FraudRate = fraudRate
			}
			if !cmd.Flags().Changed("seed") {
				seed = uint64(time.Now().UnixNano())
			}

			queue, err := transport.Build(cfg.Transport.Kind, transport.Options{
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

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			gen := generator.New(cfg.Producer.FraudRate, cfg.Rules.SuspiciousAccounts, seed)
			producer := generator.NewProducer(gen, queue, cfg.Producer.RatePerSecond,
				cfg.Producer.BurstEvery, cfg.Rules.RapidFireMaxPerMinute+2, logger)

			start := time.Now()
			sent, err := producer.Run(ctx, count)
			slog.Info("producer finished", "sent", sent, "elapsed", time.Since(start))
			return err
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1000, "transactions to publish (0 = until interrupted)")
	cmd.Flags().Float64Var(&rate, "rate", 100, "transactions per second")
	cmd.Flags().Float64Var(&fraudRate, "fraud-rate", 0.1, "share of suspicious transactions (0-1)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (default: time based)")
	return cmd
}
