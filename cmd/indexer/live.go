package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"predictScope/internal/chain"
	"predictScope/internal/config"
	"predictScope/internal/contract"
	"predictScope/internal/live"
	"predictScope/internal/metrics"
	"predictScope/internal/stats"
	"predictScope/internal/storage"
	"predictScope/internal/storage/memory"
	"predictScope/internal/storage/postgres"
)

func newLiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Follow the contract's log stream and update aggregates",
		RunE:  runLive,
	}

	cmd.Flags().String("rpc", "", "chain RPC URL (websocket for subscriptions)")
	cmd.Flags().StringSlice("address", nil, "contract addresses (comma-separated)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("store", "postgres", "aggregate store backend (postgres, memory)")
	cmd.Flags().String("cursor-path", "./data/live_cursor.json", "cursor file path when no database cursor is available")
	cmd.Flags().Uint64("start-block", 0, "block to start from when no cursor exists")
	cmd.Flags().Uint64("chunk-size", 2000, "blocks per catch-up batch")
	cmd.Flags().Int("max-retries", 3, "maximum retry attempts for chain fetches")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Duration("resubscribe-delay", 5*time.Second, "delay before resubscribing after a dropped subscription")
	cmd.Flags().String("metrics-addr", ":9091", "metrics listen address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runLive(cmd *cobra.Command, _ []string) error {
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

	store, cursor, health, cleanup, err := openStore(ctx, cfg, "live")
	if err != nil {
		return err
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	set := metrics.NewSet(registry)
	srv := metrics.StartServer(cfg.MetricsAddr, registry, health)
	defer srv.Close()

	driver := live.NewDriver(live.Config{
		Addresses:        addresses,
		StartBlock:       cfg.StartBlock,
		CatchupBatchSize: cfg.ChunkSize,
		ResubscribeDelay: cfg.ResubscribeDelay,
		FetchRetries:     cfg.MaxRetries,
		FetchBackoff:     cfg.RetryBackoff,
	}, client, decoder, stats.NewApplier(store, logger), cursor, set, logger)

	logger.Info("live driver start",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("addresses", len(addresses)),
		zap.String("store", cfg.StoreBackend),
		zap.Uint64("start_block", cfg.StartBlock),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore builds the aggregate store and the driver cursor for the chosen
// backend. The returned health func backs /healthz.
func openStore(ctx context.Context, cfg config.Config, driverName string) (storage.Store, storage.CursorStore, metrics.HealthFunc, func(), error) {
	if cfg.StoreBackend == "postgres" {
		pg, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return pg, postgres.NewCursorStore(pg, driverName), pg.Ping, pg.Close, nil
	}

	store := memory.NewStore()
	cursor := &storage.FileCursorStore{Path: cfg.CursorPath}
	health := func(context.Context) error { return nil }
	return store, cursor, health, func() {}, nil
}
