package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"predictScope/internal/metrics"
	"predictScope/internal/model"
	"predictScope/internal/retry"
	"predictScope/internal/stats"
	"predictScope/internal/storage"
)

const driverName = "backfill"

// LogSource fetches historical logs. Implemented by chain.Client.
type LogSource interface {
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
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

// Config holds runtime settings for a backfill run.
type Config struct {
	FromBlock    uint64
	ToBlock      uint64
	Addresses    []common.Address
	ChunkSize    uint64
	ChunkTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Driver replays historical logs chunk by chunk through the shared handlers.
// Chunks are processed sequentially; within a chunk each event topic is
// fetched concurrently, then the merged logs are applied in (block, logIndex)
// order before the cursor advances.
type Driver struct {
	cfg     Config
	source  LogSource
	decoder Decoder
	applier Applier
	cursor  storage.CursorStore
	metrics *metrics.Set
	log     *zap.Logger
}

func NewDriver(cfg Config, source LogSource, decoder Decoder, applier Applier, cursor storage.CursorStore, set *metrics.Set, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 2000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
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

// Run replays the configured range. Persistent fetch or apply failures abort
// the run; the saved cursor makes a rerun resume past completed chunks.
func (d *Driver) Run(ctx context.Context) error {
	if d.source == nil || d.decoder == nil || d.applier == nil {
		return fmt.Errorf("source, decoder and applier are required")
	}
	if len(d.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one contract address is required")
	}

	from := d.cfg.FromBlock
	if d.cursor != nil {
		last, ok, err := d.cursor.Load(ctx)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			d.log.Info("resume from cursor", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	to := d.cfg.ToBlock
	if to == 0 {
		latest, err := d.source.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}
	if from > to {
		d.log.Info("nothing to backfill", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, d.cfg.ChunkSize)
	if err != nil {
		return err
	}

	for _, chunk := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Each attempt derives a fresh chunk timeout, so a timed-out
		// chunk is retried whole before the run gives up. Reapplying
		// the chunk's events is safe under the handler guards.
		err := retry.Fixed(ctx, d.cfg.MaxRetries, d.cfg.RetryBackoff, func(ctx context.Context) error {
			return d.processChunk(ctx, chunk)
		})
		if err != nil {
			return fmt.Errorf("chunk %d-%d: %w", chunk.From, chunk.To, err)
		}

		if d.cursor != nil {
			if err := d.cursor.Save(ctx, chunk.To); err != nil {
				return fmt.Errorf("save cursor: %w", err)
			}
		}
		if d.metrics != nil {
			d.metrics.CursorBlock.WithLabelValues(driverName).Set(float64(chunk.To))
		}
	}

	return nil
}

func (d *Driver) processChunk(ctx context.Context, chunk BlockRange) error {
	chunkCtx := ctx
	if d.cfg.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		chunkCtx, cancel = context.WithTimeout(ctx, d.cfg.ChunkTimeout)
		defer cancel()
	}

	logs, err := d.fetchChunk(chunkCtx, chunk)
	if err != nil {
		return err
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	applied := 0
	for _, rawLog := range logs {
		event, err := d.decodeWithRetry(chunkCtx, rawLog)
		if err != nil {
			return fmt.Errorf("decode log %d:%d: %w", rawLog.BlockNumber, rawLog.Index, err)
		}

		malformed := false
		err = retry.Fixed(chunkCtx, 3, time.Second, func(ctx context.Context) error {
			applyErr := d.applier.Apply(ctx, event)
			if stats.IsMalformed(applyErr) {
				malformed = true
				return nil
			}
			return applyErr
		})
		if err != nil {
			if d.metrics != nil {
				d.metrics.EventsFailed.WithLabelValues(driverName, event.Name()).Inc()
			}
			return fmt.Errorf("apply %s %s: %w", event.Name(), event.Meta().Ref(), err)
		}
		if malformed {
			if d.metrics != nil {
				d.metrics.EventsSkipped.WithLabelValues(driverName, event.Name()).Inc()
			}
			continue
		}
		if d.metrics != nil {
			d.metrics.EventsProcessed.WithLabelValues(driverName, event.Name()).Inc()
		}
		applied++
	}

	d.log.Info("chunk complete",
		zap.Uint64("from", chunk.From),
		zap.Uint64("to", chunk.To),
		zap.Int("logs", len(logs)),
		zap.Int("applied", applied),
	)
	return nil
}

// fetchChunk queries every event topic concurrently and merges the results.
func (d *Driver) fetchChunk(ctx context.Context, chunk BlockRange) ([]types.Log, error) {
	topics := d.decoder.Topics()
	results := make([][]types.Log, len(topics))
	errs := make([]error, len(topics))

	var wg sync.WaitGroup
	for i, topic := range topics {
		wg.Add(1)
		go func(i int, topic common.Hash) {
			defer wg.Done()
			errs[i] = retry.Exponential(ctx, d.cfg.MaxRetries, d.cfg.RetryBackoff, func(ctx context.Context) error {
				logs, err := d.source.FilterLogs(ctx, chunk.From, chunk.To, d.cfg.Addresses, []common.Hash{topic})
				if err != nil {
					d.log.Warn("filter logs failed",
						zap.Error(err),
						zap.String("topic", topic.Hex()),
						zap.Uint64("from", chunk.From),
						zap.Uint64("to", chunk.To),
					)
					return err
				}
				results[i] = logs
				return nil
			})
		}(i, topic)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	merged := make([]types.Log, 0)
	for _, logs := range results {
		merged = append(merged, logs...)
	}
	return merged, nil
}

func (d *Driver) decodeWithRetry(ctx context.Context, rawLog types.Log) (model.Event, error) {
	var event model.Event
	err := retry.Exponential(ctx, d.cfg.MaxRetries, d.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		event, err = d.decoder.Decode(ctx, rawLog)
		return err
	})
	return event, err
}
