package memory

import (
	"context"
	"sort"
	"sync"

	"predictScope/internal/model"
	"predictScope/internal/storage"
)

// Store is an in-memory aggregate store. Used for scratch backfills and
// tests. Records are copied on the way in and out so callers never share
// mutable state with the store.
type Store struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	markets   map[string]*model.Market
	bets      map[model.BetKey]*model.Bet
	snapshots map[string]map[uint64]*model.PriceSnapshot
	monthly   map[string]*model.MonthlyStat
	global    *model.GlobalStat
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:     make(map[string]*model.User),
		markets:   make(map[string]*model.Market),
		bets:      make(map[model.BetKey]*model.Bet),
		snapshots: make(map[string]map[uint64]*model.PriceSnapshot),
		monthly:   make(map[string]*model.MonthlyStat),
	}
}

func (s *Store) GetUser(ctx context.Context, address string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[address]
	if !ok {
		return nil, nil
	}
	return cloneUser(user), nil
}

func (s *Store) PutUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Address] = cloneUser(user)
	return nil
}

func (s *Store) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	market, ok := s.markets[id]
	if !ok {
		return nil, nil
	}
	return cloneMarket(market), nil
}

func (s *Store) PutMarket(ctx context.Context, market *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[market.ID] = cloneMarket(market)
	return nil
}

func (s *Store) GetBet(ctx context.Context, key model.BetKey) (*model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bet, ok := s.bets[key]
	if !ok {
		return nil, nil
	}
	return cloneBet(bet), nil
}

func (s *Store) PutBet(ctx context.Context, bet *model.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bets[bet.Key()] = cloneBet(bet)
	return nil
}

// Commit writes the whole change set under one lock hold.
func (s *Store) Commit(ctx context.Context, changes *storage.ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, market := range changes.Markets {
		s.markets[market.ID] = cloneMarket(market)
	}
	for _, user := range changes.Users {
		s.users[user.Address] = cloneUser(user)
	}
	for _, bet := range changes.Bets {
		s.bets[bet.Key()] = cloneBet(bet)
	}
	for _, stat := range changes.Monthlies {
		s.monthly[stat.User+"/"+stat.YearMonth] = cloneMonthly(stat)
	}
	for _, snapshot := range changes.Snapshots {
		s.appendSnapshotLocked(snapshot)
	}
	if changes.Global != nil {
		s.global = cloneGlobal(changes.Global)
	}
	return nil
}

func (s *Store) BetsByMarket(ctx context.Context, marketID string) ([]*model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bets := make([]*model.Bet, 0)
	for key, bet := range s.bets {
		if key.MarketID == marketID {
			bets = append(bets, cloneBet(bet))
		}
	}
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].User != bets[j].User {
			return bets[i].User < bets[j].User
		}
		return bets[i].Side < bets[j].Side
	})
	return bets, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snapshot *model.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendSnapshotLocked(snapshot)
	return nil
}

func (s *Store) appendSnapshotLocked(snapshot *model.PriceSnapshot) {
	byTs, ok := s.snapshots[snapshot.MarketID]
	if !ok {
		byTs = make(map[uint64]*model.PriceSnapshot)
		s.snapshots[snapshot.MarketID] = byTs
	}
	if _, exists := byTs[snapshot.Timestamp]; exists {
		return
	}
	byTs[snapshot.Timestamp] = cloneSnapshot(snapshot)
}

// Snapshots returns the snapshot series for a market ordered by timestamp.
func (s *Store) Snapshots(ctx context.Context, marketID string) ([]*model.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := make([]*model.PriceSnapshot, 0, len(s.snapshots[marketID]))
	for _, snapshot := range s.snapshots[marketID] {
		series = append(series, cloneSnapshot(snapshot))
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp < series[j].Timestamp })
	return series, nil
}

func (s *Store) GetMonthly(ctx context.Context, address, yearMonth string) (*model.MonthlyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.monthly[address+"/"+yearMonth]
	if !ok {
		return nil, nil
	}
	return cloneMonthly(stat), nil
}

func (s *Store) PutMonthly(ctx context.Context, stat *model.MonthlyStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthly[stat.User+"/"+stat.YearMonth] = cloneMonthly(stat)
	return nil
}

func (s *Store) GetGlobal(ctx context.Context) (*model.GlobalStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global == nil {
		return nil, nil
	}
	return cloneGlobal(s.global), nil
}

func (s *Store) PutGlobal(ctx context.Context, global *model.GlobalStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = cloneGlobal(global)
	return nil
}
