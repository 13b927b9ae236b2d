package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"blxProtocol/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS protocol_events (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	seq         BIGINT NOT NULL,
	source      TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	ts          BIGINT NOT NULL,
	attributes  JSONB NOT NULL,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS protocol_events_run_seq ON protocol_events (run_id, seq);
CREATE TABLE IF NOT EXISTS pairs (
	run_id        TEXT NOT NULL,
	pair_address  TEXT NOT NULL,
	token0        TEXT NOT NULL,
	token1        TEXT NOT NULL,
	symbol0       TEXT NOT NULL,
	symbol1       TEXT NOT NULL,
	decimals0     SMALLINT NOT NULL,
	decimals1     SMALLINT NOT NULL,
	first_seen_ts BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, pair_address)
);
CREATE TABLE IF NOT EXISTS pair_window_metrics (
	run_id              TEXT NOT NULL,
	pair_address        TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts     TIMESTAMPTZ NOT NULL,
	window_end_ts       TIMESTAMPTZ NOT NULL,
	swap_count          BIGINT NOT NULL,
	volume0             NUMERIC NOT NULL,
	volume1             NUMERIC NOT NULL,
	fee0                NUMERIC NOT NULL,
	fee1                NUMERIC NOT NULL,
	fee_rate0           NUMERIC,
	fee_rate1           NUMERIC,
	reserve0            NUMERIC,
	reserve1            NUMERIC,
	apr                 NUMERIC,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, pair_address, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS protocol_snapshots (
	run_id         TEXT NOT NULL,
	step           INTEGER NOT NULL,
	ts             BIGINT NOT NULL,
	exchange_rate  NUMERIC NOT NULL,
	total_staked   NUMERIC NOT NULL,
	reward_reserve NUMERIC NOT NULL,
	vaults         JSONB NOT NULL,
	PRIMARY KEY (run_id, step)
);
CREATE TABLE IF NOT EXISTS protocol_state (
	name              TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for event records and metrics.
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

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutEventBatch inserts event records; records already stored are kept.
func (s *Store) PutEventBatch(ctx context.Context, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		attrs, err := json.Marshal(r.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes %s: %w", r.ID, err)
		}
		batch.Queue(`
			INSERT INTO protocol_events (id, run_id, seq, source, event_type, ts, attributes, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::timestamptz)
			ON CONFLICT (id) DO NOTHING
		`,
			r.ID,
			r.RunID,
			int64(r.Seq),
			r.Source,
			r.Type,
			int64(r.Timestamp),
			attrs,
			r.IngestedAt,
		)
	}
	return s.sendBatch(ctx, batch, len(records))
}

// UpsertPairs inserts or updates pair metadata.
func (s *Store) UpsertPairs(ctx context.Context, pairs []model.Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pair := range pairs {
		batch.Queue(`
			INSERT INTO pairs (
				run_id, pair_address, token0, token1, symbol0, symbol1, decimals0, decimals1, first_seen_ts, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			ON CONFLICT (run_id, pair_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				symbol0 = EXCLUDED.symbol0,
				symbol1 = EXCLUDED.symbol1,
				decimals0 = EXCLUDED.decimals0,
				decimals1 = EXCLUDED.decimals1,
				first_seen_ts = LEAST(pairs.first_seen_ts, EXCLUDED.first_seen_ts),
				updated_at = now()
		`,
			pair.RunID,
			pair.Address,
			pair.Token0,
			pair.Token1,
			pair.Symbol0,
			pair.Symbol1,
			int16(pair.Decimals0),
			int16(pair.Decimals1),
			int64(pair.FirstSeen),
		)
	}
	return s.sendBatch(ctx, batch, len(pairs))
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PairWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pair_window_metrics (
				run_id, pair_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, volume0, volume1, fee0, fee1, fee_rate0, fee_rate1,
				reserve0, reserve1, apr, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now(),now())
			ON CONFLICT (run_id, pair_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				volume0 = EXCLUDED.volume0,
				volume1 = EXCLUDED.volume1,
				fee0 = EXCLUDED.fee0,
				fee1 = EXCLUDED.fee1,
				fee_rate0 = EXCLUDED.fee_rate0,
				fee_rate1 = EXCLUDED.fee_rate1,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				apr = EXCLUDED.apr,
				updated_at = now()
		`,
			m.RunID,
			m.PairAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			m.Volume0,
			m.Volume1,
			m.Fee0,
			m.Fee1,
			m.FeeRate0,
			m.FeeRate1,
			m.Reserve0,
			m.Reserve1,
			m.APR,
		)
	}
	return s.sendBatch(ctx, batch, len(metrics))
}

// PutSnapshots inserts or replaces protocol snapshots.
func (s *Store) PutSnapshots(ctx context.Context, snapshots []model.ProtocolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		vaults, err := json.Marshal(snap.Vaults)
		if err != nil {
			return fmt.Errorf("marshal vaults: %w", err)
		}
		batch.Queue(`
			INSERT INTO protocol_snapshots (run_id, step, ts, exchange_rate, total_staked, reward_reserve, vaults)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (run_id, step)
			DO UPDATE SET
				ts = EXCLUDED.ts,
				exchange_rate = EXCLUDED.exchange_rate,
				total_staked = EXCLUDED.total_staked,
				reward_reserve = EXCLUDED.reward_reserve,
				vaults = EXCLUDED.vaults
		`,
			snap.RunID,
			snap.Step,
			int64(snap.Timestamp),
			snap.ExchangeRate,
			snap.TotalStaked,
			snap.RewardReserve,
			vaults,
		)
	}
	return s.sendBatch(ctx, batch, len(snapshots))
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM protocol_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO protocol_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
