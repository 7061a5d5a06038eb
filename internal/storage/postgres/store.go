package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolfund/internal/model"
)

// Store provides Postgres persistence for fund ledgers and their audit trail.
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

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fund_state (
		name       TEXT PRIMARY KEY,
		state      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fund_assets (
		fund_address  TEXT NOT NULL,
		position      INTEGER NOT NULL,
		token_address TEXT NOT NULL,
		feed_address  TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (fund_address, token_address)
	)`,
	`CREATE TABLE IF NOT EXISTS fund_proposals (
		fund_address TEXT NOT NULL,
		proposal_id  BIGINT NOT NULL,
		proposer     TEXT NOT NULL,
		state        TEXT NOT NULL,
		trades       JSONB NOT NULL,
		created_ts   BIGINT NOT NULL,
		intent_ts    BIGINT,
		updated_at   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (fund_address, proposal_id)
	)`,
	`CREATE TABLE IF NOT EXISTS fund_payouts (
		fund_address TEXT NOT NULL,
		epoch_start  BIGINT NOT NULL,
		role         TEXT NOT NULL,
		participant  TEXT NOT NULL,
		accept_count BIGINT NOT NULL,
		amount       NUMERIC NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (fund_address, epoch_start, role, participant)
	)`,
	`CREATE TABLE IF NOT EXISTS fund_nav_snapshots (
		run_id       UUID PRIMARY KEY,
		fund_address TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		block_time   TIMESTAMPTZ NOT NULL,
		total_value  NUMERIC NOT NULL,
		share_supply NUMERIC NOT NULL,
		share_price  NUMERIC,
		drift        JSONB,
		created_at   TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables the store writes to.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// LoadState returns the serialized ledger stored under name.
func (s *Store) LoadState(ctx context.Context, name string) ([]byte, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("state name required")
	}
	var data []byte
	row := s.pool.QueryRow(ctx, `SELECT state FROM fund_state WHERE name=$1`, name)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// SaveState upserts the serialized ledger under name.
func (s *Store) SaveState(ctx context.Context, name string, state []byte) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fund_state (name, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET state = EXCLUDED.state, updated_at = now()
	`, name, state)
	return err
}

// UpsertAssets records the registered assets of a fund in registration order.
func (s *Store) UpsertAssets(ctx context.Context, fund string, assets []model.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, asset := range assets {
		batch.Queue(`
			INSERT INTO fund_assets (fund_address, position, token_address, feed_address, created_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (fund_address, token_address) DO NOTHING
		`, fund, i, asset.Token.Hex(), asset.Feed.Hex())
	}
	return s.sendBatch(ctx, batch, len(assets))
}

// PutProposals upserts proposals, keeping the latest state of each.
func (s *Store) PutProposals(ctx context.Context, fund string, proposals []model.Proposal) error {
	if len(proposals) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range proposals {
		trades, err := json.Marshal(p.Trades)
		if err != nil {
			return fmt.Errorf("marshal trades of proposal %d: %w", p.ID, err)
		}
		var intent *int64
		if p.IntentAt > 0 {
			v := int64(p.IntentAt)
			intent = &v
		}
		batch.Queue(`
			INSERT INTO fund_proposals (
				fund_address, proposal_id, proposer, state, trades, created_ts, intent_ts, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (fund_address, proposal_id)
			DO UPDATE SET
				state = EXCLUDED.state,
				trades = EXCLUDED.trades,
				intent_ts = EXCLUDED.intent_ts,
				updated_at = now()
		`,
			fund,
			int64(p.ID),
			p.Proposer.Hex(),
			p.State.String(),
			trades,
			int64(p.CreatedAt),
			intent,
		)
	}
	return s.sendBatch(ctx, batch, len(proposals))
}

// PutPayouts records minted rewards. Replaying a payout is a no-op.
func (s *Store) PutPayouts(ctx context.Context, fund string, payouts []model.Payout) error {
	if len(payouts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range payouts {
		batch.Queue(`
			INSERT INTO fund_payouts (
				fund_address, epoch_start, role, participant, accept_count, amount, created_at
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, now())
			ON CONFLICT (fund_address, epoch_start, role, participant) DO NOTHING
		`,
			fund,
			int64(p.EpochStart),
			p.Role,
			p.Participant,
			int64(p.Count),
			p.Amount,
		)
	}
	return s.sendBatch(ctx, batch, len(payouts))
}

// PutNavSnapshot inserts a valuation record.
func (s *Store) PutNavSnapshot(ctx context.Context, snap model.NavSnapshot) error {
	var drift []byte
	if len(snap.Drift) > 0 {
		var err error
		drift, err = json.Marshal(snap.Drift)
		if err != nil {
			return fmt.Errorf("marshal drift: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fund_nav_snapshots (
			run_id, fund_address, block_number, block_time, total_value, share_supply, share_price, drift, created_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, now())
	`,
		snap.RunID,
		snap.FundAddress,
		int64(snap.BlockNumber),
		snap.BlockTime,
		snap.TotalValue,
		snap.ShareSupply,
		snap.SharePrice,
		drift,
	)
	return err
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
