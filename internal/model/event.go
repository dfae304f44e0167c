package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types emitted after a committed transition.
const (
	EventPredictionCreated  = "PredictionCreated"
	EventBetPlaced          = "BetPlaced"
	EventPredictionResolved = "PredictionResolved"
	EventRewardClaimed      = "RewardClaimed"
)

// Event is a notification for indexers and UIs. Events never take part in
// settlement correctness.
type Event struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	MarketID  int64            `json:"market_id"`
	Question  string           `json:"question,omitempty"`
	Deadline  int64            `json:"deadline"`
	Account   AccountID        `json:"account,omitempty"`
	Choice    *Choice          `json:"choice,omitempty"`
	Outcome   *Choice          `json:"outcome,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
