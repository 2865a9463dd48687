package stats

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"predictScope/internal/model"
	"predictScope/internal/storage"
	"predictScope/internal/storage/memory"
)

const (
	alice = "0xaaaa000000000000000000000000000000000001"
	bob   = "0xbbbb000000000000000000000000000000000002"
	carol = "0xcccc000000000000000000000000000000000003"
)

type fixture struct {
	store   *memory.Store
	applier *Applier
	ctx     context.Context
	seq     uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	return &fixture{
		store:   store,
		applier: NewApplier(store, nil),
		ctx:     context.Background(),
	}
}

func (f *fixture) meta(ts uint64) model.EventMeta {
	f.seq++
	return model.EventMeta{
		BlockNumber: 100 + f.seq,
		TxHash:      "0xtx",
		LogIndex:    f.seq,
		Timestamp:   ts,
	}
}

func (f *fixture) createMarket(t *testing.T, id string, ts uint64) {
	t.Helper()
	err := f.applier.Apply(f.ctx, model.MarketCreated{
		EventMeta: f.meta(ts),
		MarketID:  id,
		Question:  "who wins",
		OptionA:   "A",
		OptionB:   "B",
		Category:  "sports",
		EndTime:   ts + 3600,
		Creator:   alice,
	})
	require.NoError(t, err)
}

func (f *fixture) placeBet(t *testing.T, market, user string, side model.Side, amount int64, ts uint64) {
	t.Helper()
	err := f.applier.Apply(f.ctx, model.OptionBought{
		EventMeta: f.meta(ts),
		User:      user,
		MarketID:  market,
		Side:      side,
		Amount:    big.NewInt(amount),
	})
	require.NoError(t, err)
}

func (f *fixture) resolve(t *testing.T, market string, outcome model.MarketOutcome, ts uint64) {
	t.Helper()
	err := f.applier.Apply(f.ctx, model.MarketResolved{
		EventMeta:  f.meta(ts),
		MarketID:   market,
		Outcome:    outcome,
		ResolvedBy: alice,
	})
	require.NoError(t, err)
}

func TestPoolAndPriceDerivation(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t, "1", 1000)

	market, err := f.store.GetMarket(f.ctx, "1")
	require.NoError(t, err)
	require.True(t, market.CurrentPriceA.Equal(decimal.NewFromInt(50)))
	require.True(t, market.CurrentPriceB.Equal(decimal.NewFromInt(50)))

	f.placeBet(t, "1", bob, model.SideA, 30, 1010)
	f.placeBet(t, "1", carol, model.SideB, 70, 1020)

	market, err = f.store.GetMarket(f.ctx, "1")
	require.NoError(t, err)
	require.Equal(t, int64(30), market.TotalPoolA.Int64())
	require.Equal(t, int64(70), market.TotalPoolB.Int64())
	require.True(t, market.CurrentPriceA.Equal(decimal.NewFromInt(30)))
	require.True(t, market.CurrentPriceB.Equal(decimal.NewFromInt(70)))

	snapshots, err := f.store.Snapshots(f.ctx, "1")
	require.NoError(t, err)
	require.Len(t, snapshots, 3)
	require.Equal(t, int64(0), snapshots[0].TotalPoolA.Int64())
	require.Equal(t, int64(30), snapshots[2].TotalPoolA.Int64())
	require.Equal(t, int64(70), snapshots[2].TotalPoolB.Int64())
}

func TestMarketCreatedDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t, "1", 1000)
	f.placeBet(t, "1", bob, model.SideA, 30, 1010)

	// Redelivery must not reset pools or count the market twice.
	f.createMarket(t, "1", 1000)

	market, err := f.store.GetMarket(f.ctx, "1")
	require.NoError(t, err)
	require.Equal(t, int64(30), market.TotalPoolA.Int64())

	global, err := f.store.GetGlobal(f.ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), global.TotalMarkets)
}

func TestROIFormula(t *testing.T) {
	roi := computeROI(big.NewInt(150), big.NewInt(50), big.NewInt(1000))
	require.True(t, roi.Equal(decimal.RequireFromString("10.00")), "got %s", roi)

	require.True(t, computeROI(big.NewInt(0), big.NewInt(0), big.NewInt(0)).IsZero())

	negative := computeROI(big.NewInt(0), big.NewInt(100), big.NewInt(200))
	require.True(t, negative.Equal(decimal.RequireFromString("-50.00")), "got %s", negative)
}

func TestBetPlacedDuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t, "1", 1000)

	ev := model.OptionBought{
		EventMeta: f.meta(1010),
		User:      bob,
		MarketID:  "1",
		Side:      model.SideA,
		Amount:    big.NewInt(25),
	}
	require.NoError(t, f.applier.Apply(f.ctx, ev))
	require.NoError(t, f.applier.Apply(f.ctx, ev))

	user, err := f.store.GetUser(f.ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(1), user.TotalBets)
	require.Equal(t, int64(25), user.TotalStaked.Int64())

	market, err := f.store.GetMarket(f.ctx, "1")
	require.NoError(t, err)
	require.Equal(t, int64(25), market.TotalPoolA.Int64())

	global, err := f.store.GetGlobal(f.ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), global.TotalBets)
	require.Equal(t, int64(25), global.TotalVolumeStaked.Int64())
}

func TestResolutionFanOut(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t, "1", 1000)
	f.placeBet(t, "1", alice, model.SideA, 10, 1010)
	f.placeBet(t, "1", bob, model.SideA, 20, 1020)
	f.placeBet(t, "1", carol, model.SideB, 5, 1030)

	resolution := model.MarketResolved{
		EventMeta:  f.meta(2000),
		MarketID:   "1",
		Outcome:    model.MarketOptionA,
		ResolvedBy: alice,
	}
	require.NoError(t, f.applier.Apply(f.ctx, resolution))

	for _, tc := range []struct {
		user string
		side model.Side
		want model.BetOutcome
	}{
		{alice, model.SideA, model.BetWon},
		{bob, model.SideA, model.BetWon},
		{carol, model.SideB, model.BetLost},
	} {
		bet, err := f.store.GetBet(f.ctx, model.BetKey{MarketID: "1", User: tc.user, Side: tc.side})
		require.NoError(t, err)
		require.Equal(t, tc.want, bet.Outcome, "user %s", tc.user)
	}

	loser, err := f.store.GetUser(f.ctx, carol)
	require.NoError(t, err)
	require.Equal(t, uint64(1), loser.Losses)
	require.Equal(t, int64(5), loser.TotalLost.Int64())
	require.Equal(t, uint64(0), loser.CurrentStreak)

	winner, err := f.store.GetUser(f.ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(1), winner.Wins)
	require.Equal(t, uint64(1), winner.CurrentStreak)
	require.Equal(t, int64(20), winner.LargestWin.Int64())

	// Redelivery must not double-count.
	require.NoError(t, f.applier.Apply(f.ctx, resolution))

	loserAgain, err := f.store.GetUser(f.ctx, carol)
	require.NoError(t, err)
	require.Equal(t, loser, loserAgain)

	winnerAgain, err := f.store.GetUser(f.ctx, bob)
	require.NoError(t, err)
	require.Equal(t, winner, winnerAgain)
}

func TestStreakInvariant(t *testing.T) {
	f := newFixture(t)
	ts := uint64(1000)
	outcomes := []bool{true, true, false, true}
	for i, win := range outcomes {
		id := string(rune('1' + i))
		f.createMarket(t, id, ts)
		f.placeBet(t, id, bob, model.SideA, 10, ts+1)
		outcome := model.MarketOptionA
		if !win {
			outcome = model.MarketOptionB
		}
		f.resolve(t, id, outcome, ts+2)
		ts += 100
	}

	user, err := f.store.GetUser(f.ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(3), user.Wins)
	require.Equal(t, uint64(1), user.Losses)
	require.Equal(t, uint64(1), user.CurrentStreak)
	require.Equal(t, uint64(2), user.BestStreak)
	require.LessOrEqual(t, user.CurrentStreak, user.BestStreak)
}

func TestWinningsAttributedOnce(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t, "1", 1000)
	f.placeBet(t, "1", bob, model.SideA, 10, 1010)
	f.placeBet(t, "1", carol, model.SideB, 10, 1020)
	f.resolve(t, "1", model.MarketOptionA, 2000)

	won := model.UserWon{
		EventMeta: f.meta(2010),
		User:      bob,
		MarketID:  "1",
		Amount:    big.NewInt(18),
	}
	claimed := model.WinningsClaimed{
		EventMeta: f.meta(2020),
		User:      bob,
		MarketID:  "1",
		Payout:    big.NewInt(18),
	}
	require.NoError(t, f.applier.Apply(f.ctx, won))
	require.NoError(t, f.applier.Apply(f.ctx, claimed))

	user, err := f.store.GetUser(f.ctx, bob)
	require.NoError(t, err)
	require.Equal(t, int64(8), user.TotalWinnings.Int64(), "net winnings attributed exactly once")
	require.Equal(t, uint64(1), user.Wins)

	bet, err := f.store.GetBet(f.ctx, model.BetKey{MarketID: "1", User: bob, Side: model.SideA})
	require.NoError(t, err)
	require.True(t, bet.Claimed)
	require.Equal(t, int64(18), bet.Winnings.Int64())
	require.Equal(t, model.BetWon, bet.Outcome)

	global, err := f.store.GetGlobal(f.ctx)
	require.NoError(t, err)
	require.Equal(t, int64(8), global.TotalWinnings.Int64())
}

func TestClaimBeforeFanOutClassifies(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t, "1", 1000)
	f.placeBet(t, "1", bob, model.SideA, 10, 1010)

	// Resolve the market record but wipe the fan-out by resolving a
	// market with no bets yet classified: simulate by marking the market
	// resolved directly, as if the fan-out crashed before this bet.
	market, err := f.store.GetMarket(f.ctx, "1")
	require.NoError(t, err)
	market.Outcome = model.MarketOptionA
	market.ResolutionTimestamp = 2000
	require.NoError(t, f.store.PutMarket(f.ctx, market))

	require.NoError(t, f.applier.Apply(f.ctx, model.WinningsClaimed{
		EventMeta: f.meta(2010),
		User:      bob,
		MarketID:  "1",
		Payout:    big.NewInt(15),
	}))

	user, err := f.store.GetUser(f.ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(1), user.Wins)
	require.Equal(t, uint64(1), user.CurrentStreak)
	require.Equal(t, int64(5), user.TotalWinnings.Int64())
}

func TestRefundPath(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t, "1", 1000)
	f.placeBet(t, "1", bob, model.SideA, 10, 1010)
	f.placeBet(t, "1", bob, model.SideB, 20, 1020)
	f.placeBet(t, "1", carol, model.SideB, 5, 1030)

	require.NoError(t, f.applier.Apply(f.ctx, model.MarketRefunded{
		EventMeta:  f.meta(2000),
		MarketID:   "1",
		Reason:     "match cancelled",
		ResolvedBy: alice,
	}))

	bets, err := f.store.BetsByMarket(f.ctx, "1")
	require.NoError(t, err)
	require.Len(t, bets, 3)
	for _, bet := range bets {
		require.Equal(t, model.BetRefundable, bet.Outcome)
		require.False(t, bet.Claimed)
	}

	// The claim for 20 must land on bob's side-B bet, not side A.
	require.NoError(t, f.applier.Apply(f.ctx, model.RefundClaimed{
		EventMeta: f.meta(2010),
		MarketID:  "1",
		User:      bob,
		Amount:    big.NewInt(20),
	}))

	sideA, err := f.store.GetBet(f.ctx, model.BetKey{MarketID: "1", User: bob, Side: model.SideA})
	require.NoError(t, err)
	require.False(t, sideA.Claimed)

	sideB, err := f.store.GetBet(f.ctx, model.BetKey{MarketID: "1", User: bob, Side: model.SideB})
	require.NoError(t, err)
	require.True(t, sideB.Claimed)

	user, err := f.store.GetUser(f.ctx, bob)
	require.NoError(t, err)
	require.Zero(t, user.Wins)
	require.Zero(t, user.Losses)
}

func TestRefundSkipsClassifiedBets(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t, "1", 1000)
	f.placeBet(t, "1", bob, model.SideA, 10, 1010)
	f.resolve(t, "1", model.MarketOptionA, 2000)

	require.NoError(t, f.applier.Apply(f.ctx, model.MarketRefunded{
		EventMeta:  f.meta(2010),
		MarketID:   "1",
		Reason:     "late refund",
		ResolvedBy: alice,
	}))

	bet, err := f.store.GetBet(f.ctx, model.BetKey{MarketID: "1", User: bob, Side: model.SideA})
	require.NoError(t, err)
	require.Equal(t, model.BetWon, bet.Outcome, "classified bets keep their outcome")
}

func TestUnknownMarketIsMalformed(t *testing.T) {
	f := newFixture(t)
	err := f.applier.Apply(f.ctx, model.OptionBought{
		EventMeta: f.meta(1000),
		User:      bob,
		MarketID:  "404",
		Side:      model.SideA,
		Amount:    big.NewInt(10),
	})
	require.True(t, IsMalformed(err))
}

func TestMonthlyRollup(t *testing.T) {
	f := newFixture(t)
	// 2024-01-15 and 2024-02-15.
	jan := uint64(1705276800)
	feb := uint64(1707955200)

	f.createMarket(t, "1", jan)
	f.placeBet(t, "1", bob, model.SideA, 10, jan)
	f.createMarket(t, "2", feb)
	f.placeBet(t, "2", bob, model.SideA, 30, feb)
	f.resolve(t, "2", model.MarketOptionB, feb+100)

	janStat, err := f.store.GetMonthly(f.ctx, bob, "2024-01")
	require.NoError(t, err)
	require.Equal(t, uint64(1), janStat.Bets)
	require.Equal(t, int64(10), janStat.Staked.Int64())

	febStat, err := f.store.GetMonthly(f.ctx, bob, "2024-02")
	require.NoError(t, err)
	require.Equal(t, uint64(1), febStat.Bets)
	require.Equal(t, uint64(1), febStat.Losses)
	require.Equal(t, int64(30), febStat.Lost.Int64())
}

func TestGlobalCounters(t *testing.T) {
	f := newFixture(t)
	f.createMarket(t, "1", 1000)
	f.placeBet(t, "1", bob, model.SideA, 10, 1010)
	f.placeBet(t, "1", carol, model.SideB, 20, 1020)

	global, err := f.store.GetGlobal(f.ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), global.TotalMarkets)
	require.Equal(t, uint64(2), global.TotalBets)
	require.Equal(t, int64(30), global.TotalVolumeStaked.Int64())
	// alice created the market, bob and carol bet.
	require.Equal(t, uint64(3), global.TotalUsers)
	require.Equal(t, uint64(1020), global.LastUpdateTimestamp)
}

// flakyStore fails selected commits so tests can re-apply an event after a
// partial failure, the way the drivers' retry policy does.
type flakyStore struct {
	storage.Store
	commits int
	failOn  map[int]bool
}

func (s *flakyStore) Commit(ctx context.Context, changes *storage.ChangeSet) error {
	s.commits++
	if s.failOn[s.commits] {
		return errors.New("store unavailable")
	}
	return s.Store.Commit(ctx, changes)
}

func newFlakyFixture(failOn map[int]bool) (*flakyStore, *Applier) {
	store := &flakyStore{Store: memory.NewStore(), failOn: failOn}
	return store, NewApplier(store, nil)
}

func evMeta(seq, ts uint64) model.EventMeta {
	return model.EventMeta{BlockNumber: 100 + seq, TxHash: "0xtx", LogIndex: seq, Timestamp: ts}
}

func TestBetPlacementRetryAfterCommitFailure(t *testing.T) {
	ctx := context.Background()
	// Commit 1 is the market creation; the bet's first commit (2) fails.
	store, applier := newFlakyFixture(map[int]bool{2: true})

	require.NoError(t, applier.Apply(ctx, model.MarketCreated{
		EventMeta: evMeta(1, 1000), MarketID: "1", Creator: alice,
	}))

	placed := model.OptionBought{
		EventMeta: evMeta(2, 1010), User: bob, MarketID: "1",
		Side: model.SideA, Amount: big.NewInt(25),
	}
	require.Error(t, applier.Apply(ctx, placed))
	require.NoError(t, applier.Apply(ctx, placed))

	// The failed attempt must leave nothing behind: one logical bet stakes
	// into the pool exactly once.
	market, err := store.GetMarket(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, int64(25), market.TotalPoolA.Int64())

	user, err := store.GetUser(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(1), user.TotalBets)
	require.Equal(t, int64(25), user.TotalStaked.Int64())

	monthly, err := store.GetMonthly(ctx, bob, "1970-01")
	require.NoError(t, err)
	require.Equal(t, uint64(1), monthly.Bets)

	global, err := store.GetGlobal(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), global.TotalBets)
	require.Equal(t, int64(25), global.TotalVolumeStaked.Int64())
}

func TestMarketCreatedRetryAfterCommitFailure(t *testing.T) {
	ctx := context.Background()
	store, applier := newFlakyFixture(map[int]bool{1: true})

	created := model.MarketCreated{EventMeta: evMeta(1, 1000), MarketID: "1", Creator: alice}
	require.Error(t, applier.Apply(ctx, created))
	require.NoError(t, applier.Apply(ctx, created))

	global, err := store.GetGlobal(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), global.TotalMarkets)
	require.Equal(t, uint64(1), global.TotalUsers)
}

func TestResolutionResumesAfterCommitFailure(t *testing.T) {
	ctx := context.Background()
	// Commits 1-3 are setup; 4 classifies bob, 5 (carol) fails once.
	store, applier := newFlakyFixture(map[int]bool{5: true})

	require.NoError(t, applier.Apply(ctx, model.MarketCreated{
		EventMeta: evMeta(1, 1000), MarketID: "1", Creator: alice,
	}))
	require.NoError(t, applier.Apply(ctx, model.OptionBought{
		EventMeta: evMeta(2, 1010), User: bob, MarketID: "1",
		Side: model.SideA, Amount: big.NewInt(10),
	}))
	require.NoError(t, applier.Apply(ctx, model.OptionBought{
		EventMeta: evMeta(3, 1020), User: carol, MarketID: "1",
		Side: model.SideB, Amount: big.NewInt(5),
	}))

	resolved := model.MarketResolved{
		EventMeta: evMeta(4, 1030), MarketID: "1",
		Outcome: model.MarketOptionA, ResolvedBy: alice,
	}
	require.Error(t, applier.Apply(ctx, resolved))
	require.NoError(t, applier.Apply(ctx, resolved))

	// bob was classified on the first attempt and must not be double
	// counted by the resumed fan-out.
	bobUser, err := store.GetUser(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(1), bobUser.Wins)
	require.Equal(t, uint64(1), bobUser.CurrentStreak)

	bobMonthly, err := store.GetMonthly(ctx, bob, "1970-01")
	require.NoError(t, err)
	require.Equal(t, uint64(1), bobMonthly.Wins)

	carolUser, err := store.GetUser(ctx, carol)
	require.NoError(t, err)
	require.Equal(t, uint64(1), carolUser.Losses)
	require.Equal(t, int64(5), carolUser.TotalLost.Int64())

	carolMonthly, err := store.GetMonthly(ctx, carol, "1970-01")
	require.NoError(t, err)
	require.Equal(t, uint64(1), carolMonthly.Losses)
	require.Equal(t, int64(5), carolMonthly.Lost.Int64())
}
