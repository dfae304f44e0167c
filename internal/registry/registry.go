// Package registry is the settlement core: it owns the market lifecycle
// (create, bet, resolve, claim), the pooled-stake accounting and the payout
// rule.
//
// Every mutating operation runs under one registry mutex and performs at
// most one atomic store write, so a rejected call leaves no trace and no
// caller can observe a half-applied transition. Value moving in and out of
// escrow is recorded by the store in the same write as the state change.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atmx/settlement-engine/internal/metrics"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

// Operation names used in logs and the rejection metric.
const (
	OpCreate  = "create_prediction"
	OpBet     = "place_bet"
	OpResolve = "resolve_prediction"
	OpClaim   = "claim_reward"
)

// Notifier receives events after a transition commits. Implementations must
// not block.
type Notifier interface {
	Notify(e model.Event)
}

// invalidator is implemented by view caches that must drop a market after
// it changes.
type invalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

// Registry maps market ids to markets and enforces the settlement rules.
// The owner is fixed at construction.
type Registry struct {
	mu       sync.Mutex
	owner    model.AccountID
	store    store.Store
	views    store.MarketReader
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
	nextID   int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier sets the event notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithViews serves market reads from a (possibly cached) reader. If the
// reader can invalidate, it is told about every committed change.
func WithViews(v store.MarketReader) Option {
	return func(r *Registry) { r.views = v }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a registry owned by owner on top of st. The next market id
// continues from the number of markets already in the store.
func New(ctx context.Context, owner model.AccountID, st store.Store, opts ...Option) (*Registry, error) {
	if owner == "" {
		return nil, errors.New("registry: owner is required")
	}

	r := &Registry{
		owner: owner,
		store: st,
		views: st,
		log:   zap.NewNop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}

	n, err := st.CountMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: load market count: %w", err)
	}
	r.nextID = n

	if n > 0 {
		markets, err := st.ListMarkets(ctx)
		if err != nil {
			return nil, fmt.Errorf("registry: load markets: %w", err)
		}
		open := 0
		for i := range markets {
			if !markets[i].Resolved {
				open++
			}
		}
		metrics.OpenMarkets.Set(float64(open))
	}

	return r, nil
}

// Owner returns the privileged account.
func (r *Registry) Owner() model.AccountID {
	return r.owner
}

// MaxQuestionLength bounds a market question in bytes.
const MaxQuestionLength = 1024

// CreatePrediction allocates the next market. Owner only. The deadline is
// stored as given and never validated.
func (r *Registry) CreatePrediction(ctx context.Context, question string, deadline int64, caller model.AccountID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller == "" || caller != r.owner {
		return 0, r.reject(OpCreate, caller, -1, ErrUnauthorized)
	}
	if strings.TrimSpace(question) == "" || len(question) > MaxQuestionLength {
		return 0, r.reject(OpCreate, caller, -1, ErrInvalidQuestion)
	}

	m := &model.Market{
		ID:            r.nextID,
		Question:      question,
		Deadline:      deadline,
		TotalYesStake: decimal.Zero,
		TotalNoStake:  decimal.Zero,
		Outcome:       model.ChoiceUnresolved,
		CreatedAt:     r.now(),
	}
	if err := r.store.CreateMarket(ctx, m); err != nil {
		return 0, fmt.Errorf("registry: create market %d: %w", m.ID, err)
	}
	r.nextID++
	r.invalidate(ctx, m.ID)

	metrics.MarketsCreated.Inc()
	metrics.OpenMarkets.Inc()

	r.log.Info("prediction created",
		zap.Int64("id", m.ID),
		zap.String("question", question),
		zap.Int64("deadline", deadline),
	)
	r.emit(model.Event{
		Type:     model.EventPredictionCreated,
		MarketID: m.ID,
		Question: question,
		Deadline: deadline,
	})

	return m.ID, nil
}

// PlaceBet escrows amount on choice for caller. Betting past the deadline
// is accepted; betting on a resolved market is not, so totals stay frozen
// once the outcome is known.
func (r *Registry) PlaceBet(ctx context.Context, marketID int64, choice model.Choice, amount decimal.Decimal, caller model.AccountID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller == "" {
		return r.reject(OpBet, caller, marketID, ErrUnauthorized)
	}
	m, err := r.load(ctx, marketID)
	if err != nil {
		return r.reject(OpBet, caller, marketID, err)
	}
	if !validAmount(amount) {
		return r.reject(OpBet, caller, marketID, ErrInvalidAmount)
	}
	if !choice.Valid() {
		return r.reject(OpBet, caller, marketID, ErrInvalidChoice)
	}
	if m.Resolved {
		return r.reject(OpBet, caller, marketID, ErrAlreadyResolved)
	}
	// The side total bounds every account stake on that side.
	if m.TotalFor(choice).Add(amount).GreaterThan(MaxAmount) {
		return r.reject(OpBet, caller, marketID, ErrInvalidAmount)
	}

	entry := &model.LedgerEntry{
		ID:        uuid.New().String(),
		Account:   caller,
		MarketID:  marketID,
		Kind:      model.EntryStake,
		Side:      choice,
		Amount:    amount,
		Timestamp: r.now(),
	}
	if err := r.store.RecordBet(ctx, entry); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return r.reject(OpBet, caller, marketID, ErrAlreadyResolved)
		}
		return fmt.Errorf("registry: record bet on market %d: %w", marketID, err)
	}
	r.invalidate(ctx, marketID)

	metrics.BetsTotal.WithLabelValues(choice.String()).Inc()
	metrics.AddAmount(metrics.StakeVolume.WithLabelValues(choice.String()), amount)

	r.log.Info("bet placed",
		zap.Int64("id", marketID),
		zap.String("account", string(caller)),
		zap.Stringer("choice", choice),
		zap.String("amount", amount.String()),
	)
	r.emit(model.Event{
		Type:     model.EventBetPlaced,
		MarketID: marketID,
		Account:  caller,
		Choice:   &choice,
		Amount:   &amount,
	})

	return nil
}

// ResolvePrediction fixes the outcome exactly once. Owner only. Resolution
// before the deadline is accepted.
func (r *Registry) ResolvePrediction(ctx context.Context, marketID int64, outcome model.Choice, caller model.AccountID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller == "" || caller != r.owner {
		return r.reject(OpResolve, caller, marketID, ErrUnauthorized)
	}
	m, err := r.load(ctx, marketID)
	if err != nil {
		return r.reject(OpResolve, caller, marketID, err)
	}
	if m.Resolved {
		return r.reject(OpResolve, caller, marketID, ErrAlreadyResolved)
	}
	if !outcome.Valid() {
		return r.reject(OpResolve, caller, marketID, ErrInvalidOutcome)
	}

	if err := r.store.ResolveMarket(ctx, marketID, outcome, r.now()); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return r.reject(OpResolve, caller, marketID, ErrAlreadyResolved)
		}
		return fmt.Errorf("registry: resolve market %d: %w", marketID, err)
	}
	r.invalidate(ctx, marketID)

	metrics.MarketsResolved.WithLabelValues(outcome.String()).Inc()
	metrics.OpenMarkets.Dec()

	r.log.Info("prediction resolved",
		zap.Int64("id", marketID),
		zap.Stringer("outcome", outcome),
		zap.String("total_yes", m.TotalYesStake.String()),
		zap.String("total_no", m.TotalNoStake.String()),
	)
	r.emit(model.Event{
		Type:     model.EventPredictionResolved,
		MarketID: marketID,
		Outcome:  &outcome,
	})

	return nil
}

// ClaimReward pays caller's share of a resolved market and marks the claim.
// The claimed flag and the payout entry are written in one step.
func (r *Registry) ClaimReward(ctx context.Context, marketID int64, caller model.AccountID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, payout, err := r.claimable(ctx, marketID, caller)
	if err != nil {
		return decimal.Zero, r.reject(OpClaim, caller, marketID, err)
	}

	entry := &model.LedgerEntry{
		ID:        uuid.New().String(),
		Account:   caller,
		MarketID:  marketID,
		Kind:      model.EntryPayout,
		Side:      m.Outcome,
		Amount:    payout,
		Timestamp: r.now(),
	}
	if err := r.store.RecordClaim(ctx, entry); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return decimal.Zero, r.reject(OpClaim, caller, marketID, ErrAlreadyClaimed)
		case errors.Is(err, store.ErrNotFound):
			return decimal.Zero, r.reject(OpClaim, caller, marketID, ErrNothingToClaim)
		}
		return decimal.Zero, fmt.Errorf("registry: record claim on market %d: %w", marketID, err)
	}

	metrics.ClaimsTotal.Inc()
	metrics.AddAmount(metrics.PayoutVolume, payout)

	r.log.Info("reward claimed",
		zap.Int64("id", marketID),
		zap.String("account", string(caller)),
		zap.String("amount", payout.String()),
	)
	r.emit(model.Event{
		Type:     model.EventRewardClaimed,
		MarketID: marketID,
		Account:  caller,
		Amount:   &payout,
	})

	return payout, nil
}

// PreviewClaim returns what ClaimReward would pay right now, with the same
// checks and no effect.
func (r *Registry) PreviewClaim(ctx context.Context, marketID int64, caller model.AccountID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, payout, err := r.claimable(ctx, marketID, caller)
	if err != nil {
		return decimal.Zero, err
	}
	return payout, nil
}

// claimable runs the claim checks in order: exists, resolved, not claimed,
// positive winning stake. Caller holds r.mu.
func (r *Registry) claimable(ctx context.Context, marketID int64, caller model.AccountID) (*model.Market, decimal.Decimal, error) {
	if caller == "" {
		return nil, decimal.Zero, ErrUnauthorized
	}
	m, err := r.load(ctx, marketID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if !m.Resolved {
		return nil, decimal.Zero, ErrNotResolved
	}

	stake, err := r.store.GetStake(ctx, marketID, caller)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("registry: load stake on market %d: %w", marketID, err)
	}
	if stake.Claimed {
		return nil, decimal.Zero, ErrAlreadyClaimed
	}

	w := stake.For(m.Outcome)
	if w.Sign() <= 0 {
		return nil, decimal.Zero, ErrNothingToClaim
	}
	payout := Payout(w, m.TotalFor(m.Outcome), m.TotalFor(m.Outcome.Opposite()))
	return m, payout, nil
}

// --- Read accessors ---

// GetMarket returns the view of a market, or ErrNotFound.
func (r *Registry) GetMarket(ctx context.Context, marketID int64) (model.MarketView, error) {
	m, err := r.views.GetMarket(ctx, marketID)
	if err != nil {
		return model.MarketView{}, mapNotFound(err)
	}
	return m.View(), nil
}

// ListMarkets returns every market view ordered by id.
func (r *Registry) ListMarkets(ctx context.Context) ([]model.MarketView, error) {
	markets, err := r.views.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: list markets: %w", err)
	}
	views := make([]model.MarketView, 0, len(markets))
	for i := range markets {
		views = append(views, markets[i].View())
	}
	return views, nil
}

// Stake returns an account's stake in a market; zero stakes for accounts
// that never bet.
func (r *Registry) Stake(ctx context.Context, marketID int64, account model.AccountID) (model.Stake, error) {
	if _, err := r.load(ctx, marketID); err != nil {
		return model.Stake{}, err
	}
	st, err := r.store.GetStake(ctx, marketID, account)
	if err != nil {
		return model.Stake{}, fmt.Errorf("registry: load stake on market %d: %w", marketID, err)
	}
	return st, nil
}

// Stakes returns every account stake in a market.
func (r *Registry) Stakes(ctx context.Context, marketID int64) ([]model.Stake, error) {
	if _, err := r.load(ctx, marketID); err != nil {
		return nil, err
	}
	stakes, err := r.store.ListStakes(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("registry: list stakes on market %d: %w", marketID, err)
	}
	return stakes, nil
}

// History returns the escrow ledger of a market in order.
func (r *Registry) History(ctx context.Context, marketID int64) ([]model.LedgerEntry, error) {
	if _, err := r.load(ctx, marketID); err != nil {
		return nil, err
	}
	entries, err := r.store.GetLedgerEntriesByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("registry: market %d history: %w", marketID, err)
	}
	return entries, nil
}

// Escrow returns the value still held for a market: stakes in minus payouts
// out. After every winner claimed, what remains is rounding dust, plus the
// whole pool when the outcome was unbacked.
func (r *Registry) Escrow(ctx context.Context, marketID int64) (decimal.Decimal, error) {
	entries, err := r.History(ctx, marketID)
	if err != nil {
		return decimal.Zero, err
	}
	held := decimal.Zero
	for _, e := range entries {
		switch e.Kind {
		case model.EntryStake:
			held = held.Add(e.Amount)
		case model.EntryPayout:
			held = held.Sub(e.Amount)
		}
	}
	return held, nil
}

// Balance returns the total paid out to an account across markets.
func (r *Registry) Balance(ctx context.Context, account model.AccountID) (decimal.Decimal, error) {
	bal, err := r.store.Balance(ctx, account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("registry: balance of %s: %w", account, err)
	}
	return bal, nil
}

// --- helpers ---

func (r *Registry) load(ctx context.Context, marketID int64) (*model.Market, error) {
	m, err := r.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return m, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("registry: load market: %w", err)
}

// reject records a refused operation. Store faults pass through untouched
// apart from the metric.
func (r *Registry) reject(op string, caller model.AccountID, marketID int64, err error) error {
	kind := Kind(err)
	metrics.Rejections.WithLabelValues(op, kind).Inc()
	r.log.Debug("operation rejected",
		zap.String("op", op),
		zap.String("kind", kind),
		zap.String("caller", string(caller)),
		zap.Int64("id", marketID),
	)
	return err
}

func (r *Registry) invalidate(ctx context.Context, marketID int64) {
	inv, ok := r.views.(invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, marketID); err != nil {
		r.log.Warn("view cache invalidation failed", zap.Int64("id", marketID), zap.Error(err))
	}
}

func (r *Registry) emit(e model.Event) {
	if r.notifier == nil {
		return
	}
	e.ID = uuid.New().String()
	e.Timestamp = r.now()
	r.notifier.Notify(e)
}
