package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"predictScope/internal/model"
	"predictScope/internal/storage"
)

// Store provides Postgres persistence for the aggregate records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const userColumns = `
	address, total_bets, wins, losses,
	total_staked::text, total_winnings::text, total_lost::text,
	last_active_ts, current_streak, best_streak,
	largest_win::text, largest_loss::text, total_roi::text
`

const upsertUserSQL = `
	INSERT INTO users (
		address, total_bets, wins, losses, total_staked, total_winnings, total_lost,
		last_active_ts, current_streak, best_streak, largest_win, largest_loss, total_roi, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
	ON CONFLICT (address) DO UPDATE SET
		total_bets = EXCLUDED.total_bets,
		wins = EXCLUDED.wins,
		losses = EXCLUDED.losses,
		total_staked = EXCLUDED.total_staked,
		total_winnings = EXCLUDED.total_winnings,
		total_lost = EXCLUDED.total_lost,
		last_active_ts = EXCLUDED.last_active_ts,
		current_streak = EXCLUDED.current_streak,
		best_streak = EXCLUDED.best_streak,
		largest_win = EXCLUDED.largest_win,
		largest_loss = EXCLUDED.largest_loss,
		total_roi = EXCLUDED.total_roi,
		updated_at = now()
`

func (s *Store) GetUser(ctx context.Context, address string) (*model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE address=$1`, address)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func (s *Store) PutUser(ctx context.Context, user *model.User) error {
	_, err := s.pool.Exec(ctx, upsertUserSQL, userArgs(user)...)
	return err
}

func userArgs(user *model.User) []interface{} {
	return []interface{}{
		user.Address,
		int64(user.TotalBets),
		int64(user.Wins),
		int64(user.Losses),
		user.TotalStaked.String(),
		user.TotalWinnings.String(),
		user.TotalLost.String(),
		int64(user.LastActiveTimestamp),
		int64(user.CurrentStreak),
		int64(user.BestStreak),
		user.LargestWin.String(),
		user.LargestLoss.String(),
		user.TotalROI.String(),
	}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user                              model.User
		totalBets, wins, losses           int64
		lastActive, curStreak, bestStreak int64
		staked, winnings, lost            string
		largestWin, largestLoss, roi      string
	)
	err := row.Scan(
		&user.Address, &totalBets, &wins, &losses,
		&staked, &winnings, &lost,
		&lastActive, &curStreak, &bestStreak,
		&largestWin, &largestLoss, &roi,
	)
	if err != nil {
		return nil, err
	}

	user.TotalBets = uint64(totalBets)
	user.Wins = uint64(wins)
	user.Losses = uint64(losses)
	user.LastActiveTimestamp = uint64(lastActive)
	user.CurrentStreak = uint64(curStreak)
	user.BestStreak = uint64(bestStreak)
	if user.TotalStaked, err = parseBig(staked); err != nil {
		return nil, err
	}
	if user.TotalWinnings, err = parseBig(winnings); err != nil {
		return nil, err
	}
	if user.TotalLost, err = parseBig(lost); err != nil {
		return nil, err
	}
	if user.LargestWin, err = parseBig(largestWin); err != nil {
		return nil, err
	}
	if user.LargestLoss, err = parseBig(largestLoss); err != nil {
		return nil, err
	}
	if user.TotalROI, err = decimal.NewFromString(roi); err != nil {
		return nil, fmt.Errorf("parse roi: %w", err)
	}
	return &user, nil
}

const marketColumns = `
	id, creator, question, option_a, option_b, category, logo_url_a, logo_url_b,
	end_time, oracle_match_id, total_pool_a::text, total_pool_b::text,
	current_price_a::text, current_price_b::text, outcome,
	resolved_by, resolution_details, resolution_ts, created_at_ts
`

func (s *Store) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id=$1`, id)
	market, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return market, err
}

const upsertMarketSQL = `
	INSERT INTO markets (
		id, creator, question, option_a, option_b, category, logo_url_a, logo_url_b,
		end_time, oracle_match_id, total_pool_a, total_pool_b,
		current_price_a, current_price_b, outcome,
		resolved_by, resolution_details, resolution_ts, created_at_ts, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now())
	ON CONFLICT (id) DO UPDATE SET
		total_pool_a = EXCLUDED.total_pool_a,
		total_pool_b = EXCLUDED.total_pool_b,
		current_price_a = EXCLUDED.current_price_a,
		current_price_b = EXCLUDED.current_price_b,
		outcome = EXCLUDED.outcome,
		resolved_by = EXCLUDED.resolved_by,
		resolution_details = EXCLUDED.resolution_details,
		resolution_ts = EXCLUDED.resolution_ts,
		updated_at = now()
`

func (s *Store) PutMarket(ctx context.Context, market *model.Market) error {
	_, err := s.pool.Exec(ctx, upsertMarketSQL, marketArgs(market)...)
	return err
}

func marketArgs(market *model.Market) []interface{} {
	return []interface{}{
		market.ID,
		market.Creator,
		market.Question,
		market.OptionA,
		market.OptionB,
		market.Category,
		market.LogoURLA,
		market.LogoURLB,
		int64(market.EndTime),
		int64(market.OracleMatchID),
		market.TotalPoolA.String(),
		market.TotalPoolB.String(),
		market.CurrentPriceA.String(),
		market.CurrentPriceB.String(),
		int16(market.Outcome),
		market.ResolvedBy,
		market.ResolutionDetails,
		int64(market.ResolutionTimestamp),
		int64(market.CreatedAt),
	}
}

func scanMarket(row pgx.Row) (*model.Market, error) {
	var (
		market                     model.Market
		endTime, oracleMatchID     int64
		resolutionTs, createdAt    int64
		poolA, poolB               string
		priceA, priceB             string
		outcome                    int16
	)
	err := row.Scan(
		&market.ID, &market.Creator, &market.Question, &market.OptionA, &market.OptionB,
		&market.Category, &market.LogoURLA, &market.LogoURLB,
		&endTime, &oracleMatchID, &poolA, &poolB,
		&priceA, &priceB, &outcome,
		&market.ResolvedBy, &market.ResolutionDetails, &resolutionTs, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	market.EndTime = uint64(endTime)
	market.OracleMatchID = uint64(oracleMatchID)
	market.Outcome = model.MarketOutcome(outcome)
	market.ResolutionTimestamp = uint64(resolutionTs)
	market.CreatedAt = uint64(createdAt)
	if market.TotalPoolA, err = parseBig(poolA); err != nil {
		return nil, err
	}
	if market.TotalPoolB, err = parseBig(poolB); err != nil {
		return nil, err
	}
	if market.CurrentPriceA, err = decimal.NewFromString(priceA); err != nil {
		return nil, fmt.Errorf("parse price_a: %w", err)
	}
	if market.CurrentPriceB, err = decimal.NewFromString(priceB); err != nil {
		return nil, fmt.Errorf("parse price_b: %w", err)
	}
	return &market, nil
}

const betColumns = `
	market_id, user_address, side, amount::text, ts, claimed, winnings::text, outcome
`

const upsertBetSQL = `
	INSERT INTO bets (market_id, user_address, side, amount, ts, claimed, winnings, outcome, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	ON CONFLICT (market_id, user_address, side) DO UPDATE SET
		claimed = EXCLUDED.claimed,
		winnings = EXCLUDED.winnings,
		outcome = EXCLUDED.outcome,
		updated_at = now()
`

func (s *Store) GetBet(ctx context.Context, key model.BetKey) (*model.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betColumns+` FROM bets WHERE market_id=$1 AND user_address=$2 AND side=$3`,
		key.MarketID, key.User, string(key.Side),
	)
	bet, err := scanBet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return bet, err
}

func (s *Store) PutBet(ctx context.Context, bet *model.Bet) error {
	_, err := s.pool.Exec(ctx, upsertBetSQL, betArgs(bet)...)
	return err
}

// Commit writes one handler's change set in a single transaction so the
// guard record and the counters it protects land together.
func (s *Store) Commit(ctx context.Context, changes *storage.ChangeSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, market := range changes.Markets {
		if _, err := tx.Exec(ctx, upsertMarketSQL, marketArgs(market)...); err != nil {
			return err
		}
	}
	for _, user := range changes.Users {
		if _, err := tx.Exec(ctx, upsertUserSQL, userArgs(user)...); err != nil {
			return err
		}
	}
	for _, bet := range changes.Bets {
		if _, err := tx.Exec(ctx, upsertBetSQL, betArgs(bet)...); err != nil {
			return err
		}
	}
	for _, stat := range changes.Monthlies {
		if _, err := tx.Exec(ctx, upsertMonthlySQL, monthlyArgs(stat)...); err != nil {
			return err
		}
	}
	for _, snapshot := range changes.Snapshots {
		if _, err := tx.Exec(ctx, insertSnapshotSQL, snapshotArgs(snapshot)...); err != nil {
			return err
		}
	}
	if changes.Global != nil {
		if _, err := tx.Exec(ctx, upsertGlobalSQL, globalArgs(changes.Global)...); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) BetsByMarket(ctx context.Context, marketID string) ([]*model.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE market_id=$1 ORDER BY user_address, side`,
		marketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bets := make([]*model.Bet, 0)
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

func betArgs(bet *model.Bet) []interface{} {
	var winnings *string
	if bet.Winnings != nil {
		val := bet.Winnings.String()
		winnings = &val
	}
	return []interface{}{
		bet.MarketID,
		bet.User,
		string(bet.Side),
		bet.Amount.String(),
		int64(bet.Timestamp),
		bet.Claimed,
		winnings,
		int16(bet.Outcome),
	}
}

func scanBet(row pgx.Row) (*model.Bet, error) {
	var (
		bet      model.Bet
		side     string
		amount   string
		ts       int64
		winnings *string
		outcome  int16
	)
	err := row.Scan(&bet.MarketID, &bet.User, &side, &amount, &ts, &bet.Claimed, &winnings, &outcome)
	if err != nil {
		return nil, err
	}

	bet.Side = model.Side(side)
	bet.Timestamp = uint64(ts)
	bet.Outcome = model.BetOutcome(outcome)
	if bet.Amount, err = parseBig(amount); err != nil {
		return nil, err
	}
	if winnings != nil {
		if bet.Winnings, err = parseBig(*winnings); err != nil {
			return nil, err
		}
	}
	return &bet, nil
}

const insertSnapshotSQL = `
	INSERT INTO price_snapshots (market_id, ts, total_pool_a, total_pool_b, price_a, price_b, block_number)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (market_id, ts) DO NOTHING
`

// AppendSnapshot inserts a price snapshot; an existing (market, ts) key is
// left untouched since snapshots are immutable.
func (s *Store) AppendSnapshot(ctx context.Context, snapshot *model.PriceSnapshot) error {
	_, err := s.pool.Exec(ctx, insertSnapshotSQL, snapshotArgs(snapshot)...)
	return err
}

func snapshotArgs(snapshot *model.PriceSnapshot) []interface{} {
	return []interface{}{
		snapshot.MarketID,
		int64(snapshot.Timestamp),
		snapshot.TotalPoolA.String(),
		snapshot.TotalPoolB.String(),
		snapshot.PriceA.String(),
		snapshot.PriceB.String(),
		int64(snapshot.BlockNumber),
	}
}

func (s *Store) GetMonthly(ctx context.Context, address, yearMonth string) (*model.MonthlyStat, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_address, year_month, bets, wins, losses, staked::text, winnings::text, lost::text
		FROM monthly_stats WHERE user_address=$1 AND year_month=$2
	`, address, yearMonth)

	var (
		stat                   model.MonthlyStat
		bets, wins, losses     int64
		staked, winnings, lost string
	)
	err := row.Scan(&stat.User, &stat.YearMonth, &bets, &wins, &losses, &staked, &winnings, &lost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	stat.Bets = uint64(bets)
	stat.Wins = uint64(wins)
	stat.Losses = uint64(losses)
	if stat.Staked, err = parseBig(staked); err != nil {
		return nil, err
	}
	if stat.Winnings, err = parseBig(winnings); err != nil {
		return nil, err
	}
	if stat.Lost, err = parseBig(lost); err != nil {
		return nil, err
	}
	return &stat, nil
}

const upsertMonthlySQL = `
	INSERT INTO monthly_stats (user_address, year_month, bets, wins, losses, staked, winnings, lost, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	ON CONFLICT (user_address, year_month) DO UPDATE SET
		bets = EXCLUDED.bets,
		wins = EXCLUDED.wins,
		losses = EXCLUDED.losses,
		staked = EXCLUDED.staked,
		winnings = EXCLUDED.winnings,
		lost = EXCLUDED.lost,
		updated_at = now()
`

func (s *Store) PutMonthly(ctx context.Context, stat *model.MonthlyStat) error {
	_, err := s.pool.Exec(ctx, upsertMonthlySQL, monthlyArgs(stat)...)
	return err
}

func monthlyArgs(stat *model.MonthlyStat) []interface{} {
	return []interface{}{
		stat.User,
		stat.YearMonth,
		int64(stat.Bets),
		int64(stat.Wins),
		int64(stat.Losses),
		stat.Staked.String(),
		stat.Winnings.String(),
		stat.Lost.String(),
	}
}

func (s *Store) GetGlobal(ctx context.Context) (*model.GlobalStat, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT total_users, total_markets, total_bets, total_volume_staked::text, total_winnings::text, last_update_ts
		FROM global_stats WHERE id='global'
	`)

	var (
		global                          model.GlobalStat
		users, markets, bets, lastTs    int64
		volume, winnings                string
	)
	err := row.Scan(&users, &markets, &bets, &volume, &winnings, &lastTs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	global.TotalUsers = uint64(users)
	global.TotalMarkets = uint64(markets)
	global.TotalBets = uint64(bets)
	global.LastUpdateTimestamp = uint64(lastTs)
	if global.TotalVolumeStaked, err = parseBig(volume); err != nil {
		return nil, err
	}
	if global.TotalWinnings, err = parseBig(winnings); err != nil {
		return nil, err
	}
	return &global, nil
}

const upsertGlobalSQL = `
	INSERT INTO global_stats (id, total_users, total_markets, total_bets, total_volume_staked, total_winnings, last_update_ts, updated_at)
	VALUES ('global',$1,$2,$3,$4,$5,$6,now())
	ON CONFLICT (id) DO UPDATE SET
		total_users = EXCLUDED.total_users,
		total_markets = EXCLUDED.total_markets,
		total_bets = EXCLUDED.total_bets,
		total_volume_staked = EXCLUDED.total_volume_staked,
		total_winnings = EXCLUDED.total_winnings,
		last_update_ts = EXCLUDED.last_update_ts,
		updated_at = now()
`

func (s *Store) PutGlobal(ctx context.Context, global *model.GlobalStat) error {
	_, err := s.pool.Exec(ctx, upsertGlobalSQL, globalArgs(global)...)
	return err
}

func globalArgs(global *model.GlobalStat) []interface{} {
	return []interface{}{
		int64(global.TotalUsers),
		int64(global.TotalMarkets),
		int64(global.TotalBets),
		global.TotalVolumeStaked.String(),
		global.TotalWinnings.String(),
		int64(global.LastUpdateTimestamp),
	}
}

// LoadCursor returns the last processed block for a named driver.
func (s *Store) LoadCursor(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("cursor name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_cursor WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveCursor upserts the last processed block for a named driver.
func (s *Store) SaveCursor(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("cursor name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_cursor (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func parseDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

func parseBig(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric: %s", value)
	}
	return parsed, nil
}
