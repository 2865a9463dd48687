package storage

import (
	"context"

	"predictScope/internal/model"
)

// Store is the keyed aggregate store shared by the live and backfill drivers.
// Get methods return nil (no error) for absent records. Both drivers may
// write concurrently; every mutation is a guarded idempotent update, so the
// store only has to provide per-call atomicity, not cross-record locking.
type Store interface {
	GetUser(ctx context.Context, address string) (*model.User, error)
	PutUser(ctx context.Context, user *model.User) error

	GetMarket(ctx context.Context, id string) (*model.Market, error)
	PutMarket(ctx context.Context, market *model.Market) error

	GetBet(ctx context.Context, key model.BetKey) (*model.Bet, error)
	PutBet(ctx context.Context, bet *model.Bet) error
	// BetsByMarket returns every position under a market, ordered by
	// (user, side) for deterministic fan-out.
	BetsByMarket(ctx context.Context, marketID string) ([]*model.Bet, error)

	// Commit persists one handler's writes as a unit: either every record
	// in the set lands or none do. A failed commit leaves no partial
	// state, so the handler's idempotency guard stays in step with the
	// counters it protects across redelivery.
	Commit(ctx context.Context, changes *ChangeSet) error

	// AppendSnapshot writes a price snapshot; re-writing the same
	// (market, timestamp) key is a no-op.
	AppendSnapshot(ctx context.Context, snapshot *model.PriceSnapshot) error

	GetMonthly(ctx context.Context, address, yearMonth string) (*model.MonthlyStat, error)
	PutMonthly(ctx context.Context, stat *model.MonthlyStat) error

	GetGlobal(ctx context.Context) (*model.GlobalStat, error)
	PutGlobal(ctx context.Context, global *model.GlobalStat) error
}

// ChangeSet collects the records one event handler writes. Snapshots keep
// their append-once semantics inside a commit: an existing (market, ts) key
// is left untouched.
type ChangeSet struct {
	Markets   []*model.Market
	Users     []*model.User
	Bets      []*model.Bet
	Monthlies []*model.MonthlyStat
	Snapshots []*model.PriceSnapshot
	Global    *model.GlobalStat
}

// CursorStore persists the last processed block for one driver.
type CursorStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, block uint64) error
}
