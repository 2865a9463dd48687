package live

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"predictScope/internal/backfill"
	"predictScope/internal/metrics"
	"predictScope/internal/model"
	"predictScope/internal/retry"
	"predictScope/internal/stats"
	"predictScope/internal/storage"
)

const driverName = "live"

// Source provides historical queries and a log subscription. Implemented by
// chain.Client.
type Source interface {
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, sink chan<- types.Log) (ethereum.Subscription, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Decoder turns raw logs into typed events. Implemented by contract.Decoder.
type Decoder interface {
	Topics() []common.Hash
	Decode(ctx context.Context, log types.Log) (model.Event, error)
}

// Applier applies one event to the aggregate store.
type Applier interface {
	Apply(ctx context.Context, event model.Event) error
}

// Config holds runtime settings for the live driver.
type Config struct {
	Addresses        []common.Address
	StartBlock       uint64
	CatchupBatchSize uint64
	ResubscribeDelay time.Duration
	ApplyAttempts    int
	ApplyDelay       time.Duration
	FetchRetries     int
	FetchBackoff     time.Duration
}

// Driver follows the contract's log stream and applies each event in ledger
// order. Events are processed sequentially; MarketResolved depends on every
// prior bet for that market having been applied.
type Driver struct {
	cfg     Config
	source  Source
	decoder Decoder
	applier Applier
	cursor  storage.CursorStore
	metrics *metrics.Set
	log     *zap.Logger
}

func NewDriver(cfg Config, source Source, decoder Decoder, applier Applier, cursor storage.CursorStore, set *metrics.Set, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CatchupBatchSize == 0 {
		cfg.CatchupBatchSize = 2000
	}
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = 5 * time.Second
	}
	if cfg.ApplyAttempts <= 0 {
		cfg.ApplyAttempts = 3
	}
	if cfg.ApplyDelay <= 0 {
		cfg.ApplyDelay = time.Second
	}
	if cfg.FetchRetries <= 0 {
		cfg.FetchRetries = 3
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = 500 * time.Millisecond
	}
	return &Driver{
		cfg:     cfg,
		source:  source,
		decoder: decoder,
		applier: applier,
		cursor:  cursor,
		metrics: set,
		log:     log,
	}
}

// Run catches up from the cursor, then streams new logs until ctx is done.
// A dropped subscription triggers another catch-up and resubscribe.
func (d *Driver) Run(ctx context.Context) error {
	if d.source == nil || d.decoder == nil || d.applier == nil {
		return fmt.Errorf("source, decoder and applier are required")
	}
	if len(d.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one contract address is required")
	}

	for {
		if err := d.catchUp(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.Error("catch-up failed", zap.Error(err))
			if err := d.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		err := d.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.Warn("subscription dropped, resubscribing", zap.Error(err))
		if err := d.sleep(ctx); err != nil {
			return err
		}
	}
}

// catchUp replays logs from the cursor position to the chain head in bounded
// batches so a long outage does not turn into one unbounded query.
func (d *Driver) catchUp(ctx context.Context) error {
	from := d.cfg.StartBlock
	if d.cursor != nil {
		last, ok, err := d.cursor.Load(ctx)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if ok && last > from {
			// Resume at the cursor block itself: its trailing events
			// may not have been applied, and reapplying is safe.
			from = last
		}
	}

	latest, err := d.source.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	if from > latest {
		return nil
	}

	ranges, err := backfill.SplitRange(from, latest, d.cfg.CatchupBatchSize)
	if err != nil {
		return err
	}
	topics := d.decoder.Topics()

	for _, batch := range ranges {
		var logs []types.Log
		err := retry.Exponential(ctx, d.cfg.FetchRetries, d.cfg.FetchBackoff, func(ctx context.Context) error {
			var err error
			logs, err = d.source.FilterLogs(ctx, batch.From, batch.To, d.cfg.Addresses, topics)
			return err
		})
		if err != nil {
			return fmt.Errorf("filter logs %d-%d: %w", batch.From, batch.To, err)
		}

		sort.Slice(logs, func(i, j int) bool {
			if logs[i].BlockNumber != logs[j].BlockNumber {
				return logs[i].BlockNumber < logs[j].BlockNumber
			}
			return logs[i].Index < logs[j].Index
		})

		for _, rawLog := range logs {
			if err := d.handleLog(ctx, rawLog); err != nil {
				return err
			}
		}

		if err := d.saveCursor(ctx, batch.To); err != nil {
			return err
		}
	}

	d.log.Info("catch-up complete", zap.Uint64("from", from), zap.Uint64("to", latest))
	return nil
}

// stream subscribes to new logs and applies them as they arrive. Returns on
// subscription failure; the caller resubscribes.
func (d *Driver) stream(ctx context.Context) error {
	sink := make(chan types.Log, 256)
	sub, err := d.source.SubscribeLogs(ctx, d.cfg.Addresses, d.decoder.Topics(), sink)
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	defer sub.Unsubscribe()

	d.log.Info("subscribed to contract logs")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case rawLog := <-sink:
			if rawLog.Removed {
				continue
			}
			if err := d.handleLog(ctx, rawLog); err != nil {
				return err
			}
			if err := d.saveCursor(ctx, rawLog.BlockNumber); err != nil {
				return err
			}
		}
	}
}

// handleLog decodes and applies one log. Malformed events and events that
// exhaust their apply retries are logged and skipped; only storage or context
// errors propagate.
func (d *Driver) handleLog(ctx context.Context, rawLog types.Log) error {
	var event model.Event
	err := retry.Exponential(ctx, d.cfg.FetchRetries, d.cfg.FetchBackoff, func(ctx context.Context) error {
		var err error
		event, err = d.decoder.Decode(ctx, rawLog)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.Error("decode failed, skipping log",
			zap.Error(err),
			zap.Uint64("block", rawLog.BlockNumber),
			zap.Uint("log_index", rawLog.Index),
		)
		return nil
	}

	malformed := false
	err = retry.Fixed(ctx, d.cfg.ApplyAttempts, d.cfg.ApplyDelay, func(ctx context.Context) error {
		applyErr := d.applier.Apply(ctx, event)
		if stats.IsMalformed(applyErr) {
			malformed = true
			return nil
		}
		return applyErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The stream must not stall on one poisoned event; surface it
		// to the operator and move on.
		if d.metrics != nil {
			d.metrics.EventsFailed.WithLabelValues(driverName, event.Name()).Inc()
		}
		d.log.Error("apply failed after retries, skipping event",
			zap.Error(err),
			zap.String("event", event.Name()),
			zap.String("ref", event.Meta().Ref()),
		)
		return nil
	}
	if malformed {
		if d.metrics != nil {
			d.metrics.EventsSkipped.WithLabelValues(driverName, event.Name()).Inc()
		}
		return nil
	}
	if d.metrics != nil {
		d.metrics.EventsProcessed.WithLabelValues(driverName, event.Name()).Inc()
	}
	return nil
}

func (d *Driver) saveCursor(ctx context.Context, block uint64) error {
	if d.cursor != nil {
		if err := d.cursor.Save(ctx, block); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
	}
	if d.metrics != nil {
		d.metrics.CursorBlock.WithLabelValues(driverName).Set(float64(block))
	}
	return nil
}

func (d *Driver) sleep(ctx context.Context) error {
	timer := time.NewTimer(d.cfg.ResubscribeDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
