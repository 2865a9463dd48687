package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	address            TEXT PRIMARY KEY,
	total_bets         BIGINT NOT NULL DEFAULT 0,
	wins               BIGINT NOT NULL DEFAULT 0,
	losses             BIGINT NOT NULL DEFAULT 0,
	total_staked       NUMERIC(78) NOT NULL DEFAULT 0,
	total_winnings     NUMERIC(78) NOT NULL DEFAULT 0,
	total_lost         NUMERIC(78) NOT NULL DEFAULT 0,
	last_active_ts     BIGINT NOT NULL DEFAULT 0,
	current_streak     BIGINT NOT NULL DEFAULT 0,
	best_streak        BIGINT NOT NULL DEFAULT 0,
	largest_win        NUMERIC(78) NOT NULL DEFAULT 0,
	largest_loss       NUMERIC(78) NOT NULL DEFAULT 0,
	total_roi          NUMERIC(20,4) NOT NULL DEFAULT 0,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS markets (
	id                 TEXT PRIMARY KEY,
	creator            TEXT NOT NULL,
	question           TEXT NOT NULL,
	option_a           TEXT NOT NULL,
	option_b           TEXT NOT NULL,
	category           TEXT NOT NULL,
	logo_url_a         TEXT NOT NULL DEFAULT '',
	logo_url_b         TEXT NOT NULL DEFAULT '',
	end_time           BIGINT NOT NULL DEFAULT 0,
	oracle_match_id    BIGINT NOT NULL DEFAULT 0,
	total_pool_a       NUMERIC(78) NOT NULL DEFAULT 0,
	total_pool_b       NUMERIC(78) NOT NULL DEFAULT 0,
	current_price_a    NUMERIC(7,4) NOT NULL DEFAULT 50,
	current_price_b    NUMERIC(7,4) NOT NULL DEFAULT 50,
	outcome            SMALLINT NOT NULL DEFAULT 0,
	resolved_by        TEXT NOT NULL DEFAULT '',
	resolution_details TEXT NOT NULL DEFAULT '',
	resolution_ts      BIGINT NOT NULL DEFAULT 0,
	created_at_ts      BIGINT NOT NULL DEFAULT 0,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bets (
	market_id          TEXT NOT NULL,
	user_address       TEXT NOT NULL,
	side               TEXT NOT NULL,
	amount             NUMERIC(78) NOT NULL,
	ts                 BIGINT NOT NULL DEFAULT 0,
	claimed            BOOLEAN NOT NULL DEFAULT false,
	winnings           NUMERIC(78),
	outcome            SMALLINT NOT NULL DEFAULT 0,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (market_id, user_address, side)
);

CREATE TABLE IF NOT EXISTS price_snapshots (
	market_id          TEXT NOT NULL,
	ts                 BIGINT NOT NULL,
	total_pool_a       NUMERIC(78) NOT NULL,
	total_pool_b       NUMERIC(78) NOT NULL,
	price_a            NUMERIC(7,4) NOT NULL,
	price_b            NUMERIC(7,4) NOT NULL,
	block_number       BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (market_id, ts)
);

CREATE TABLE IF NOT EXISTS monthly_stats (
	user_address       TEXT NOT NULL,
	year_month         TEXT NOT NULL,
	bets               BIGINT NOT NULL DEFAULT 0,
	wins               BIGINT NOT NULL DEFAULT 0,
	losses             BIGINT NOT NULL DEFAULT 0,
	staked             NUMERIC(78) NOT NULL DEFAULT 0,
	winnings           NUMERIC(78) NOT NULL DEFAULT 0,
	lost               NUMERIC(78) NOT NULL DEFAULT 0,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_address, year_month)
);

CREATE TABLE IF NOT EXISTS global_stats (
	id                  TEXT PRIMARY KEY,
	total_users         BIGINT NOT NULL DEFAULT 0,
	total_markets       BIGINT NOT NULL DEFAULT 0,
	total_bets          BIGINT NOT NULL DEFAULT 0,
	total_volume_staked NUMERIC(78) NOT NULL DEFAULT 0,
	total_winnings      NUMERIC(78) NOT NULL DEFAULT 0,
	last_update_ts      BIGINT NOT NULL DEFAULT 0,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS indexer_cursor (
	name                 TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the aggregate tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}
