// Package model defines the core domain types shared across the settlement engine.
// All monetary values use shopspring/decimal; never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountID is an opaque, already-normalized account identifier.
type AccountID string

// Market is the full settlement record of one binary prediction.
// Ids are dense and zero-based, assigned in creation order.
type Market struct {
	ID            int64           `json:"id" db:"id"`
	Question      string          `json:"question" db:"question"`
	Deadline      int64           `json:"deadline" db:"deadline"` // unix seconds, advisory only
	TotalYesStake decimal.Decimal `json:"total_yes_stake" db:"total_yes_stake"`
	TotalNoStake  decimal.Decimal `json:"total_no_stake" db:"total_no_stake"`
	Resolved      bool            `json:"resolved" db:"resolved"`
	Outcome       Choice          `json:"outcome" db:"outcome"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

// View returns the read-only projection exposed to callers.
func (m *Market) View() MarketView {
	return MarketView{
		ID:            m.ID,
		Question:      m.Question,
		Deadline:      m.Deadline,
		TotalYesStake: m.TotalYesStake,
		TotalNoStake:  m.TotalNoStake,
		Resolved:      m.Resolved,
		Outcome:       m.Outcome,
	}
}

// TotalFor returns the side total for a choice. Unresolved yields zero.
func (m *Market) TotalFor(c Choice) decimal.Decimal {
	switch c {
	case ChoiceYes:
		return m.TotalYesStake
	case ChoiceNo:
		return m.TotalNoStake
	}
	return decimal.Zero
}

// MarketView is the read accessor shape of a market.
type MarketView struct {
	ID            int64           `json:"id"`
	Question      string          `json:"question"`
	Deadline      int64           `json:"deadline"`
	TotalYesStake decimal.Decimal `json:"total_yes_stake"`
	TotalNoStake  decimal.Decimal `json:"total_no_stake"`
	Resolved      bool            `json:"resolved"`
	Outcome       Choice          `json:"outcome"`
}

// Stake is one account's holdings in one market. An account may hold
// stake on both sides at once.
type Stake struct {
	MarketID int64           `json:"market_id" db:"market_id"`
	Account  AccountID       `json:"account" db:"account"`
	YesStake decimal.Decimal `json:"yes_stake" db:"yes_stake"`
	NoStake  decimal.Decimal `json:"no_stake" db:"no_stake"`
	Claimed  bool            `json:"claimed" db:"claimed"`
}

// For returns the stake on one side.
func (s Stake) For(c Choice) decimal.Decimal {
	switch c {
	case ChoiceYes:
		return s.YesStake
	case ChoiceNo:
		return s.NoStake
	}
	return decimal.Zero
}

// Ledger entry kinds.
const (
	EntryStake  = "stake"  // bettor -> escrow
	EntryPayout = "payout" // escrow -> claimant
)

// LedgerEntry is an immutable record of value moving into or out of escrow.
// Once created, these are never modified or deleted.
type LedgerEntry struct {
	ID        string          `json:"id" db:"id"`
	Account   AccountID       `json:"account" db:"account"`
	MarketID  int64           `json:"market_id" db:"market_id"`
	Kind      string          `json:"kind" db:"kind"` // "stake" or "payout"
	Side      Choice          `json:"side" db:"side"` // side staked; outcome for payouts
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}
