package backfill

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"predictScope/internal/model"
	"predictScope/internal/stats"
	"predictScope/internal/storage/memory"
)

var (
	testAddress = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	topicBet    = common.HexToHash("0x01")
	topicOther  = common.HexToHash("0x02")
)

// fakeSource serves a fixed log set, filtered by range and topic0. The
// first fail calls error immediately; the first hang calls block until the
// caller's context expires.
type fakeSource struct {
	mu    sync.Mutex
	logs  []types.Log
	calls int
	fail  int
	hang  int
}

func (f *fakeSource) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		f.mu.Unlock()
		return nil, fmt.Errorf("rpc unavailable")
	}
	stall := f.hang > 0
	if stall {
		f.hang--
	}
	f.mu.Unlock()

	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var out []types.Log
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(topic0) > 0 && l.Topics[0] != topic0[0] {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeSource) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var latest uint64
	for _, l := range f.logs {
		if l.BlockNumber > latest {
			latest = l.BlockNumber
		}
	}
	return latest, nil
}

// stubDecoder maps logs to pre-built events by (block, index).
type stubDecoder struct {
	topics []common.Hash
	events map[string]model.Event
}

func (d *stubDecoder) Topics() []common.Hash { return d.topics }

func (d *stubDecoder) Decode(ctx context.Context, log types.Log) (model.Event, error) {
	ev, ok := d.events[fmt.Sprintf("%d:%d", log.BlockNumber, log.Index)]
	if !ok {
		return nil, fmt.Errorf("no event for log %d:%d", log.BlockNumber, log.Index)
	}
	return ev, nil
}

type memCursor struct {
	block uint64
	ok    bool
	saves []uint64
}

func (c *memCursor) Load(ctx context.Context) (uint64, bool, error) { return c.block, c.ok, nil }
func (c *memCursor) Save(ctx context.Context, block uint64) error {
	c.block, c.ok = block, true
	c.saves = append(c.saves, block)
	return nil
}

func meta(block, index, ts uint64) model.EventMeta {
	return model.EventMeta{BlockNumber: block, TxHash: "0xtx", LogIndex: index, Timestamp: ts}
}

// buildEventLog returns one market's full life cycle spread over blocks 10-14
// plus the raw logs and decoder stub that replay it.
func buildEventLog() ([]types.Log, *stubDecoder, []model.Event) {
	events := []model.Event{
		model.MarketCreated{EventMeta: meta(10, 0, 1000), MarketID: "7", Question: "q", Creator: "0xcc"},
		model.OptionBought{EventMeta: meta(11, 0, 1010), User: "0xaa", MarketID: "7", Side: model.SideA, Amount: big.NewInt(10)},
		model.OptionBought{EventMeta: meta(12, 0, 1020), User: "0xbb", MarketID: "7", Side: model.SideB, Amount: big.NewInt(40)},
		model.MarketResolved{EventMeta: meta(13, 0, 1030), MarketID: "7", Outcome: model.MarketOptionA, ResolvedBy: "0xcc"},
		model.WinningsClaimed{EventMeta: meta(14, 0, 1040), User: "0xaa", MarketID: "7", Payout: big.NewInt(45)},
	}

	decoder := &stubDecoder{
		topics: []common.Hash{topicBet, topicOther},
		events: make(map[string]model.Event),
	}
	logs := make([]types.Log, 0, len(events))
	for i, ev := range events {
		m := ev.Meta()
		topic := topicBet
		if i%2 == 1 {
			topic = topicOther
		}
		logs = append(logs, types.Log{
			Address:     testAddress,
			BlockNumber: m.BlockNumber,
			Index:       uint(m.LogIndex),
			Topics:      []common.Hash{topic},
		})
		decoder.events[fmt.Sprintf("%d:%d", m.BlockNumber, m.LogIndex)] = ev
	}
	return logs, decoder, events
}

func TestBackfillMatchesSequentialApply(t *testing.T) {
	logs, decoder, events := buildEventLog()

	// Reference: apply sequentially, the way the live driver would.
	liveStore := memory.NewStore()
	liveApplier := stats.NewApplier(liveStore, nil)
	ctx := context.Background()
	for _, ev := range events {
		require.NoError(t, liveApplier.Apply(ctx, ev))
	}

	backfillStore := memory.NewStore()
	cursor := &memCursor{}
	driver := NewDriver(
		Config{FromBlock: 10, ToBlock: 14, Addresses: []common.Address{testAddress}, ChunkSize: 2},
		&fakeSource{logs: logs},
		decoder,
		stats.NewApplier(backfillStore, nil),
		cursor,
		nil,
		nil,
	)
	require.NoError(t, driver.Run(ctx))

	for _, addr := range []string{"0xaa", "0xbb", "0xcc"} {
		liveUser, err := liveStore.GetUser(ctx, addr)
		require.NoError(t, err)
		backfillUser, err := backfillStore.GetUser(ctx, addr)
		require.NoError(t, err)
		require.Equal(t, liveUser, backfillUser, "user %s diverged", addr)
	}

	liveMarket, err := liveStore.GetMarket(ctx, "7")
	require.NoError(t, err)
	backfillMarket, err := backfillStore.GetMarket(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, liveMarket, backfillMarket)

	liveGlobal, err := liveStore.GetGlobal(ctx)
	require.NoError(t, err)
	backfillGlobal, err := backfillStore.GetGlobal(ctx)
	require.NoError(t, err)
	require.Equal(t, liveGlobal, backfillGlobal)

	// Chunks of 2 over blocks 10-14: cursor saved at 11, 13, 14.
	require.Equal(t, []uint64{11, 13, 14}, cursor.saves)
}

func TestBackfillResumesFromCursor(t *testing.T) {
	logs, decoder, _ := buildEventLog()
	source := &fakeSource{logs: logs}
	store := memory.NewStore()
	cursor := &memCursor{block: 12, ok: true}

	driver := NewDriver(
		Config{FromBlock: 10, ToBlock: 14, Addresses: []common.Address{testAddress}, ChunkSize: 10},
		source,
		decoder,
		stats.NewApplier(store, nil),
		cursor,
		nil,
		nil,
	)
	// Blocks 13-14 reference a market created in block 10, which was never
	// applied; both events surface as malformed and are skipped.
	require.NoError(t, driver.Run(context.Background()))

	market, err := store.GetMarket(context.Background(), "7")
	require.NoError(t, err)
	require.Nil(t, market)
	require.Equal(t, uint64(14), cursor.block)
}

func TestBackfillRetriesFetch(t *testing.T) {
	logs, decoder, _ := buildEventLog()
	source := &fakeSource{logs: logs, fail: 2}
	store := memory.NewStore()

	driver := NewDriver(
		Config{FromBlock: 10, ToBlock: 14, Addresses: []common.Address{testAddress}, ChunkSize: 10, RetryBackoff: 1},
		source,
		decoder,
		stats.NewApplier(store, nil),
		&memCursor{},
		nil,
		nil,
	)
	require.NoError(t, driver.Run(context.Background()))

	market, err := store.GetMarket(context.Background(), "7")
	require.NoError(t, err)
	require.NotNil(t, market)
	require.Equal(t, model.MarketOptionA, market.Outcome)
}

func TestBackfillRetriesTimedOutChunk(t *testing.T) {
	logs, decoder, _ := buildEventLog()
	// Both topic fetches of the first chunk attempt stall past the chunk
	// timeout; the second attempt gets a fresh timeout and completes.
	source := &fakeSource{logs: logs, hang: 2}
	store := memory.NewStore()

	driver := NewDriver(
		Config{
			FromBlock:    10,
			ToBlock:      14,
			Addresses:    []common.Address{testAddress},
			ChunkSize:    10,
			ChunkTimeout: 50 * time.Millisecond,
			RetryBackoff: 1,
		},
		source,
		decoder,
		stats.NewApplier(store, nil),
		&memCursor{},
		nil,
		nil,
	)
	require.NoError(t, driver.Run(context.Background()))

	market, err := store.GetMarket(context.Background(), "7")
	require.NoError(t, err)
	require.NotNil(t, market)
	require.Equal(t, model.MarketOptionA, market.Outcome)
}
