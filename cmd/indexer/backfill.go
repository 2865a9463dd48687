package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"predictScope/internal/backfill"
	"predictScope/internal/chain"
	"predictScope/internal/config"
	"predictScope/internal/contract"
	"predictScope/internal/metrics"
	"predictScope/internal/stats"
)

func newBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay historical logs into the aggregate store",
		RunE:  runBackfill,
	}

	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().StringSlice("address", nil, "contract addresses (comma-separated)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("store", "postgres", "aggregate store backend (postgres, memory)")
	cmd.Flags().String("cursor-path", "./data/backfill_cursor.json", "cursor file path when no database cursor is available")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("chunk-size", 2000, "blocks per chunk")
	cmd.Flags().Duration("chunk-timeout", 2*time.Minute, "per-chunk fetch and apply timeout")
	cmd.Flags().Int("max-retries", 3, "maximum retry attempts for chain fetches")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("metrics-addr", ":9092", "metrics listen address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	addresses, err := chain.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	decoder, err := contract.NewDecoder(client)
	if err != nil {
		return err
	}

	store, cursor, health, cleanup, err := openStore(ctx, cfg, "backfill")
	if err != nil {
		return err
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	set := metrics.NewSet(registry)
	srv := metrics.StartServer(cfg.MetricsAddr, registry, health)
	defer srv.Close()

	driver := backfill.NewDriver(backfill.Config{
		FromBlock:    cfg.FromBlock,
		ToBlock:      cfg.ToBlock,
		Addresses:    addresses,
		ChunkSize:    cfg.ChunkSize,
		ChunkTimeout: cfg.ChunkTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, decoder, stats.NewApplier(store, logger), cursor, set, logger)

	logger.Info("backfill start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("chunk_size", cfg.ChunkSize),
		zap.String("store", cfg.StoreBackend),
	)

	return driver.Run(ctx)
}
