// Package store defines the persistence interface for the settlement engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// view cache), and in-memory (for testing and single-process runs).
//
// Every write method is one atomic step: it either applies fully or leaves
// the store untouched. Stake and payout writes carry their escrow ledger
// entry in the same step.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
)

var (
	// ErrNotFound is returned when a market does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrExists is returned when a market id is already taken.
	ErrExists = errors.New("store: already exists")

	// ErrConflict is returned when a conditional write lost: the market is
	// already resolved, or the stake was already claimed.
	ErrConflict = errors.New("store: conflicting state")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer for market reads.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market under its preassigned id.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by id.
	GetMarket(ctx context.Context, id int64) (*model.Market, error)

	// ListMarkets returns all markets ordered by id.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// CountMarkets returns the number of markets ever created.
	CountMarkets(ctx context.Context) (int64, error)

	// ResolveMarket sets the outcome. Returns ErrConflict when the market
	// is already resolved.
	ResolveMarket(ctx context.Context, id int64, outcome model.Choice, at time.Time) error

	// --- Stakes ---

	// GetStake returns an account's stake. An account with no stake yields
	// a zero Stake, not an error.
	GetStake(ctx context.Context, marketID int64, account model.AccountID) (model.Stake, error)

	// ListStakes returns every account stake of a market.
	ListStakes(ctx context.Context, marketID int64) ([]model.Stake, error)

	// --- Escrow ledger ---

	// RecordBet credits entry.Amount to the account's stake and the market
	// total for entry.Side, and appends the stake ledger entry. Returns
	// ErrConflict when the market is resolved.
	RecordBet(ctx context.Context, entry *model.LedgerEntry) error

	// RecordClaim marks the account's stake claimed and appends the payout
	// ledger entry. Returns ErrConflict when already claimed.
	RecordClaim(ctx context.Context, entry *model.LedgerEntry) error

	// GetLedgerEntriesByMarket returns ledger entries for a market in order.
	GetLedgerEntriesByMarket(ctx context.Context, marketID int64) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByAccount returns ledger entries for an account in order.
	GetLedgerEntriesByAccount(ctx context.Context, account model.AccountID) ([]model.LedgerEntry, error)

	// Balance returns the total payouts credited to an account.
	Balance(ctx context.Context, account model.AccountID) (decimal.Decimal, error)
}

// MarketReader is the read side used by callers that tolerate cached views.
type MarketReader interface {
	GetMarket(ctx context.Context, id int64) (*model.Market, error)
	ListMarkets(ctx context.Context) ([]model.Market, error)
}
