package postgres

import (
	"context"

	"predictScope/internal/model"
)

// Leaderboard returns users ordered by lifetime ROI, ties broken by total
// winnings then address for a stable order.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]*model.User, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY total_roi DESC, total_winnings DESC, address
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*model.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Markets lists markets, optionally filtered to resolved or unresolved ones,
// newest first.
func (s *Store) Markets(ctx context.Context, resolved *bool, limit int) ([]*model.Market, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + marketColumns + ` FROM markets`
	args := []interface{}{limit}
	if resolved != nil {
		if *resolved {
			query += ` WHERE outcome <> 0`
		} else {
			query += ` WHERE outcome = 0`
		}
	}
	query += ` ORDER BY created_at_ts DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	markets := make([]*model.Market, 0, limit)
	for rows.Next() {
		market, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, market)
	}
	return markets, rows.Err()
}

// PriceHistory returns snapshots for a market within [from, to], ascending.
func (s *Store) PriceHistory(ctx context.Context, marketID string, from, to uint64) ([]*model.PriceSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, ts, total_pool_a::text, total_pool_b::text, price_a::text, price_b::text, block_number
		FROM price_snapshots
		WHERE market_id=$1 AND ts >= $2 AND ts <= $3
		ORDER BY ts
	`, marketID, int64(from), int64(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]*model.PriceSnapshot, 0)
	for rows.Next() {
		var (
			snapshot     model.PriceSnapshot
			ts, block    int64
			poolA, poolB string
		)
		var priceA, priceB string
		err := rows.Scan(&snapshot.MarketID, &ts, &poolA, &poolB, &priceA, &priceB, &block)
		if err != nil {
			return nil, err
		}
		snapshot.Timestamp = uint64(ts)
		snapshot.BlockNumber = uint64(block)
		if snapshot.TotalPoolA, err = parseBig(poolA); err != nil {
			return nil, err
		}
		if snapshot.TotalPoolB, err = parseBig(poolB); err != nil {
			return nil, err
		}
		if snapshot.PriceA, err = parseDecimal(priceA); err != nil {
			return nil, err
		}
		if snapshot.PriceB, err = parseDecimal(priceB); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, &snapshot)
	}
	return snapshots, rows.Err()
}
