package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
)

// Schema creates the tables used by PostgresStore. Amounts are NUMERIC(78,0):
// integers in the smallest unit, wide enough for any 256-bit value.
const Schema = `
CREATE TABLE IF NOT EXISTS markets (
	id              BIGINT PRIMARY KEY,
	question        TEXT NOT NULL,
	deadline        BIGINT NOT NULL,
	total_yes_stake NUMERIC(78,0) NOT NULL DEFAULT 0,
	total_no_stake  NUMERIC(78,0) NOT NULL DEFAULT 0,
	resolved        BOOLEAN NOT NULL DEFAULT FALSE,
	outcome         SMALLINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL,
	resolved_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS stakes (
	market_id BIGINT NOT NULL REFERENCES markets(id),
	account   TEXT NOT NULL,
	yes_stake NUMERIC(78,0) NOT NULL DEFAULT 0,
	no_stake  NUMERIC(78,0) NOT NULL DEFAULT 0,
	claimed   BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (market_id, account)
);

CREATE TABLE IF NOT EXISTS ledger_entries (
	seq       BIGSERIAL PRIMARY KEY,
	id        UUID NOT NULL UNIQUE,
	account   TEXT NOT NULL,
	market_id BIGINT NOT NULL REFERENCES markets(id),
	kind      TEXT NOT NULL,
	side      SMALLINT NOT NULL,
	amount    NUMERIC(78,0) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS ledger_entries_account_idx ON ledger_entries (account);
CREATE INDEX IF NOT EXISTS ledger_entries_market_idx ON ledger_entries (market_id);
`

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema. Safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, question, deadline, total_yes_stake, total_no_stake, resolved, outcome, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)`,
		m.ID, m.Question, m.Deadline,
		m.TotalYesStake.String(), m.TotalNoStake.String(),
		m.Resolved, int16(m.Outcome), m.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("market %d: %w", m.ID, ErrExists)
	}
	return err
}

const marketColumns = `id, question, deadline,
	total_yes_stake::TEXT, total_no_stake::TEXT,
	resolved, outcome, created_at, resolved_at`

func (s *PostgresStore) GetMarket(ctx context.Context, id int64) (*model.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("market %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %d: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) CountMarkets(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count markets: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ResolveMarket(ctx context.Context, id int64, outcome model.Choice, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET resolved = TRUE, outcome = $2, resolved_at = $3
		 WHERE id = $1 AND resolved = FALSE`,
		id, int16(outcome), at,
	)
	if err != nil {
		return fmt.Errorf("resolve market %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("resolve market %d: %w", id, ErrConflict)
	}
	return nil
}

func (s *PostgresStore) GetStake(ctx context.Context, marketID int64, account model.AccountID) (model.Stake, error) {
	var yesS, noS string
	st := model.Stake{MarketID: marketID, Account: account}

	err := s.pool.QueryRow(ctx,
		`SELECT yes_stake::TEXT, no_stake::TEXT, claimed
		 FROM stakes WHERE market_id = $1 AND account = $2`,
		marketID, string(account)).Scan(&yesS, &noS, &st.Claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return zeroStake(marketID, account), nil
	}
	if err != nil {
		return model.Stake{}, fmt.Errorf("get stake %d/%s: %w", marketID, account, err)
	}

	st.YesStake, _ = decimal.NewFromString(yesS)
	st.NoStake, _ = decimal.NewFromString(noS)
	return st, nil
}

func (s *PostgresStore) ListStakes(ctx context.Context, marketID int64) ([]model.Stake, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account, yes_stake::TEXT, no_stake::TEXT, claimed
		 FROM stakes WHERE market_id = $1 ORDER BY account`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stakes []model.Stake
	for rows.Next() {
		st := model.Stake{MarketID: marketID}
		var account, yesS, noS string
		if err := rows.Scan(&account, &yesS, &noS, &st.Claimed); err != nil {
			return nil, err
		}
		st.Account = model.AccountID(account)
		st.YesStake, _ = decimal.NewFromString(yesS)
		st.NoStake, _ = decimal.NewFromString(noS)
		stakes = append(stakes, st)
	}
	return stakes, rows.Err()
}

// RecordBet updates stake, market total and ledger in one transaction. The
// market row update is conditional on resolved = FALSE.
func (s *PostgresStore) RecordBet(ctx context.Context, e *model.LedgerEntry) error {
	var totalCol, stakeCol string
	switch e.Side {
	case model.ChoiceYes:
		totalCol, stakeCol = "total_yes_stake", "yes_stake"
	case model.ChoiceNo:
		totalCol, stakeCol = "total_no_stake", "no_stake"
	default:
		return fmt.Errorf("bet on market %d: invalid side %s", e.MarketID, e.Side)
	}
	amount := e.Amount.String()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE markets SET `+totalCol+` = `+totalCol+` + $2::NUMERIC
			 WHERE id = $1 AND resolved = FALSE`,
			e.MarketID, amount)
		if err != nil {
			return fmt.Errorf("bet on market %d: %w", e.MarketID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("bet on market %d: %w", e.MarketID, ErrConflict)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO stakes (market_id, account, `+stakeCol+`)
			 VALUES ($1, $2, $3::NUMERIC)
			 ON CONFLICT (market_id, account)
			 DO UPDATE SET `+stakeCol+` = stakes.`+stakeCol+` + EXCLUDED.`+stakeCol,
			e.MarketID, string(e.Account), amount); err != nil {
			return fmt.Errorf("upsert stake %d/%s: %w", e.MarketID, e.Account, err)
		}

		return insertLedgerEntry(ctx, tx, e)
	})
}

// RecordClaim flips claimed and writes the payout entry in one transaction.
func (s *PostgresStore) RecordClaim(ctx context.Context, e *model.LedgerEntry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE stakes SET claimed = TRUE
			 WHERE market_id = $1 AND account = $2 AND claimed = FALSE`,
			e.MarketID, string(e.Account))
		if err != nil {
			return fmt.Errorf("claim on market %d by %s: %w", e.MarketID, e.Account, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("claim on market %d by %s: %w", e.MarketID, e.Account, ErrConflict)
		}
		return insertLedgerEntry(ctx, tx, e)
	})
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, e *model.LedgerEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, account, market_id, kind, side, amount, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
		e.ID, string(e.Account), e.MarketID, e.Kind, int16(e.Side),
		e.Amount.String(), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetLedgerEntriesByMarket(ctx context.Context, marketID int64) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, account, market_id, kind, side, amount::TEXT, timestamp
		 FROM ledger_entries WHERE market_id = $1 ORDER BY seq`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesByAccount(ctx context.Context, account model.AccountID) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, account, market_id, kind, side, amount::TEXT, timestamp
		 FROM ledger_entries WHERE account = $1 ORDER BY seq`, string(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) Balance(ctx context.Context, account model.AccountID) (decimal.Decimal, error) {
	var totalS string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::TEXT
		 FROM ledger_entries WHERE account = $1 AND kind = $2`,
		string(account), model.EntryPayout).Scan(&totalS)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance %s: %w", account, err)
	}
	total, err := decimal.NewFromString(totalS)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance %s: %w", account, err)
	}
	return total, nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMarket(row rowScanner) (*model.Market, error) {
	var m model.Market
	var yesS, noS string
	var outcome int16

	if err := row.Scan(&m.ID, &m.Question, &m.Deadline,
		&yesS, &noS,
		&m.Resolved, &outcome, &m.CreatedAt, &m.ResolvedAt); err != nil {
		return nil, err
	}

	m.Outcome = model.Choice(outcome)
	m.TotalYesStake, _ = decimal.NewFromString(yesS)
	m.TotalNoStake, _ = decimal.NewFromString(noS)
	return &m, nil
}

// scanLedgerEntries reads pgx rows into LedgerEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanLedgerEntries(rows pgxRows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var account, amountS string
		var side int16

		if err := rows.Scan(&e.ID, &account, &e.MarketID, &e.Kind, &side,
			&amountS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Account = model.AccountID(account)
		e.Side = model.Choice(side)
		e.Amount, _ = decimal.NewFromString(amountS)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
