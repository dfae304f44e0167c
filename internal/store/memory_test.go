package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/model"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func seedMarket(t *testing.T, s *MemoryStore, id int64) {
	t.Helper()
	m := &model.Market{
		ID:            id,
		Question:      "q",
		TotalYesStake: decimal.Zero,
		TotalNoStake:  decimal.Zero,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.CreateMarket(context.Background(), m); err != nil {
		t.Fatalf("seed market: %v", err)
	}
}

func bet(acct model.AccountID, id int64, side model.Choice, amount int64) *model.LedgerEntry {
	return &model.LedgerEntry{
		ID:        "e-" + string(acct),
		Account:   acct,
		MarketID:  id,
		Kind:      model.EntryStake,
		Side:      side,
		Amount:    d(amount),
		Timestamp: time.Now().UTC(),
	}
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s, 0)
	err := s.CreateMarket(context.Background(), &model.Market{ID: 0})
	if !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s, 0)
	ctx := context.Background()

	m, _ := s.GetMarket(ctx, 0)
	m.Resolved = true
	m.TotalYesStake = d(999)

	again, _ := s.GetMarket(ctx, 0)
	if again.Resolved || !again.TotalYesStake.IsZero() {
		t.Errorf("mutation of returned market leaked into store: %+v", again)
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetMarket(context.Background(), 5)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListSortedAndCount(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []int64{2, 0, 1} {
		seedMarket(t, s, id)
	}
	ctx := context.Background()
	list, _ := s.ListMarkets(ctx)
	for i, m := range list {
		if m.ID != int64(i) {
			t.Fatalf("expected sorted ids, got %d at %d", m.ID, i)
		}
	}
	if n, _ := s.CountMarkets(ctx); n != 3 {
		t.Errorf("expected count 3, got %d", n)
	}
}

func TestMemoryStore_RecordBetUpdatesStakeTotalsLedger(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s, 0)
	ctx := context.Background()

	if err := s.RecordBet(ctx, bet("alice", 0, model.ChoiceYes, 10)); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordBet(ctx, bet("alice", 0, model.ChoiceNo, 4)); err != nil {
		t.Fatal(err)
	}

	m, _ := s.GetMarket(ctx, 0)
	if !m.TotalYesStake.Equal(d(10)) || !m.TotalNoStake.Equal(d(4)) {
		t.Errorf("unexpected totals %s/%s", m.TotalYesStake, m.TotalNoStake)
	}
	st, _ := s.GetStake(ctx, 0, "alice")
	if !st.YesStake.Equal(d(10)) || !st.NoStake.Equal(d(4)) {
		t.Errorf("unexpected stake %+v", st)
	}
	entries, _ := s.GetLedgerEntriesByMarket(ctx, 0)
	if len(entries) != 2 {
		t.Errorf("expected 2 ledger entries, got %d", len(entries))
	}
}

func TestMemoryStore_RecordBetOnResolvedConflicts(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s, 0)
	ctx := context.Background()
	if err := s.ResolveMarket(ctx, 0, model.ChoiceYes, time.Now()); err != nil {
		t.Fatal(err)
	}

	err := s.RecordBet(ctx, bet("alice", 0, model.ChoiceYes, 1))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if entries, _ := s.GetLedgerEntriesByMarket(ctx, 0); len(entries) != 0 {
		t.Errorf("rejected bet wrote %d ledger entries", len(entries))
	}
}

func TestMemoryStore_RecordBetInvalidSide(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s, 0)
	ctx := context.Background()
	if err := s.RecordBet(ctx, bet("alice", 0, model.ChoiceUnresolved, 1)); err == nil {
		t.Error("expected error for unresolved side")
	}
	if stakes, _ := s.ListStakes(ctx, 0); len(stakes) != 0 {
		t.Errorf("rejected bet left %d stake rows", len(stakes))
	}
	if entries, _ := s.GetLedgerEntriesByMarket(ctx, 0); len(entries) != 0 {
		t.Errorf("rejected bet wrote %d ledger entries", len(entries))
	}
}

func TestMemoryStore_ResolveTwiceConflicts(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s, 0)
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.ResolveMarket(ctx, 0, model.ChoiceNo, at); err != nil {
		t.Fatal(err)
	}
	if err := s.ResolveMarket(ctx, 0, model.ChoiceYes, at); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	m, _ := s.GetMarket(ctx, 0)
	if m.Outcome != model.ChoiceNo || m.ResolvedAt == nil || !m.ResolvedAt.Equal(at) {
		t.Errorf("unexpected resolution %+v", m)
	}
}

func TestMemoryStore_RecordClaim(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s, 0)
	ctx := context.Background()
	if err := s.RecordBet(ctx, bet("alice", 0, model.ChoiceYes, 10)); err != nil {
		t.Fatal(err)
	}

	payout := &model.LedgerEntry{
		ID: "p1", Account: "alice", MarketID: 0,
		Kind: model.EntryPayout, Side: model.ChoiceYes, Amount: d(10),
	}
	if err := s.RecordClaim(ctx, payout); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordClaim(ctx, payout); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict on second claim, got %v", err)
	}

	st, _ := s.GetStake(ctx, 0, "alice")
	if !st.Claimed {
		t.Error("stake not marked claimed")
	}
	bal, _ := s.Balance(ctx, "alice")
	if !bal.Equal(d(10)) {
		t.Errorf("expected balance 10, got %s", bal)
	}
	byAcct, _ := s.GetLedgerEntriesByAccount(ctx, "alice")
	if len(byAcct) != 2 {
		t.Errorf("expected 2 entries for alice, got %d", len(byAcct))
	}
}

func TestMemoryStore_RecordClaimWithoutStake(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s, 0)
	err := s.RecordClaim(context.Background(), &model.LedgerEntry{Account: "nobody", MarketID: 0, Kind: model.EntryPayout})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListStakesSorted(t *testing.T) {
	s := NewMemoryStore()
	seedMarket(t, s, 0)
	seedMarket(t, s, 1)
	ctx := context.Background()
	for _, a := range []model.AccountID{"carol", "alice", "bob"} {
		if err := s.RecordBet(ctx, bet(a, 0, model.ChoiceNo, 1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordBet(ctx, bet("dave", 1, model.ChoiceNo, 1)); err != nil {
		t.Fatal(err)
	}

	stakes, _ := s.ListStakes(ctx, 0)
	if len(stakes) != 3 {
		t.Fatalf("expected 3 stakes, got %d", len(stakes))
	}
	if stakes[0].Account != "alice" || stakes[2].Account != "carol" {
		t.Errorf("stakes not sorted by account: %+v", stakes)
	}
}
