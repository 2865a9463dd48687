package query

import (
	"context"

	"predictScope/internal/model"
	"predictScope/internal/storage/postgres"
)

// Facade is the read surface over the indexed aggregates.
type Facade interface {
	UserByAddress(ctx context.Context, address string) (*model.User, error)
	MarketByID(ctx context.Context, id string) (*model.Market, error)
	BetsByMarket(ctx context.Context, marketID string) ([]*model.Bet, error)
	Leaderboard(ctx context.Context, limit int) ([]*model.User, error)
	Markets(ctx context.Context, resolved *bool, limit int) ([]*model.Market, error)
	PriceHistory(ctx context.Context, marketID string, from, to uint64) ([]*model.PriceSnapshot, error)
	Global(ctx context.Context) (*model.GlobalStat, error)
}

// Backend is the store side the facade reads from.
type Backend interface {
	GetUser(ctx context.Context, address string) (*model.User, error)
	GetMarket(ctx context.Context, id string) (*model.Market, error)
	BetsByMarket(ctx context.Context, marketID string) ([]*model.Bet, error)
	Leaderboard(ctx context.Context, limit int) ([]*model.User, error)
	Markets(ctx context.Context, resolved *bool, limit int) ([]*model.Market, error)
	PriceHistory(ctx context.Context, marketID string, from, to uint64) ([]*model.PriceSnapshot, error)
	GetGlobal(ctx context.Context) (*model.GlobalStat, error)
}

// Service answers read queries from an aggregate store backend.
type Service struct {
	backend Backend
}

func NewService(backend Backend) *Service {
	return &Service{backend: backend}
}

func (s *Service) UserByAddress(ctx context.Context, address string) (*model.User, error) {
	return s.backend.GetUser(ctx, model.NormalizeAddress(address))
}

func (s *Service) MarketByID(ctx context.Context, id string) (*model.Market, error) {
	return s.backend.GetMarket(ctx, id)
}

func (s *Service) BetsByMarket(ctx context.Context, marketID string) ([]*model.Bet, error) {
	return s.backend.BetsByMarket(ctx, marketID)
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]*model.User, error) {
	return s.backend.Leaderboard(ctx, limit)
}

func (s *Service) Markets(ctx context.Context, resolved *bool, limit int) ([]*model.Market, error) {
	return s.backend.Markets(ctx, resolved, limit)
}

func (s *Service) PriceHistory(ctx context.Context, marketID string, from, to uint64) ([]*model.PriceSnapshot, error) {
	return s.backend.PriceHistory(ctx, marketID, from, to)
}

func (s *Service) Global(ctx context.Context) (*model.GlobalStat, error) {
	return s.backend.GetGlobal(ctx)
}

var (
	_ Facade  = (*Service)(nil)
	_ Backend = (*postgres.Store)(nil)
)
