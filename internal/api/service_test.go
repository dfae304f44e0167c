package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/settlement-engine/internal/api"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/registry"
	"github.com/atmx/settlement-engine/internal/store"
)

const ownerID = "owner"

// newTestEnv creates a router over an in-memory registry.
func newTestEnv(t *testing.T) chi.Router {
	t.Helper()
	reg, err := registry.New(context.Background(), ownerID, store.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	return api.NewRouter(api.NewService(reg, nil), nil, nil)
}

func do(t *testing.T, router http.Handler, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(api.AccountHeader, caller)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return resp
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func expectKind(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	expectStatus(t, w, status)
	if got := decodeError(t, w).Kind; got != kind {
		t.Errorf("expected kind %s, got %s", kind, got)
	}
}

func create(t *testing.T, router http.Handler, question string) model.MarketView {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/predictions", ownerID, api.CreatePredictionRequest{Question: question, Deadline: 1_700_000_000})
	expectStatus(t, w, http.StatusCreated)
	var v model.MarketView
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func placeBet(t *testing.T, router http.Handler, path, caller, choice string, amount int64) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, "POST", path+"/bets", caller, api.PlaceBetRequest{Choice: choice, Amount: decimal.NewFromInt(amount)})
}

func TestHealth(t *testing.T) {
	router := newTestEnv(t)
	w := do(t, router, "GET", "/health", "", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestCreatePrediction(t *testing.T) {
	router := newTestEnv(t)
	v := create(t, router, "Will it rain?")
	if v.ID != 0 || v.Question != "Will it rain?" || v.Resolved {
		t.Errorf("unexpected view %+v", v)
	}
	if v2 := create(t, router, "Again?"); v2.ID != 1 {
		t.Errorf("expected id 1, got %d", v2.ID)
	}
}

func TestCreatePrediction_NonOwner(t *testing.T) {
	router := newTestEnv(t)
	w := do(t, router, "POST", "/api/v1/predictions", "alice", api.CreatePredictionRequest{Question: "q"})
	expectKind(t, w, http.StatusForbidden, "Unauthorized")
}

func TestCreatePrediction_MissingCaller(t *testing.T) {
	router := newTestEnv(t)
	w := do(t, router, "POST", "/api/v1/predictions", "", api.CreatePredictionRequest{Question: "q"})
	expectKind(t, w, http.StatusUnauthorized, "Unauthorized")
}

func TestCreatePrediction_BadBody(t *testing.T) {
	router := newTestEnv(t)
	req := httptest.NewRequest("POST", "/api/v1/predictions", bytes.NewBufferString("{not json"))
	req.Header.Set(api.AccountHeader, ownerID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	expectKind(t, w, http.StatusBadRequest, "InvalidRequest")
}

func TestCreatePrediction_EmptyQuestion(t *testing.T) {
	router := newTestEnv(t)
	w := do(t, router, "POST", "/api/v1/predictions", ownerID, api.CreatePredictionRequest{Question: ""})
	expectKind(t, w, http.StatusBadRequest, "InvalidQuestion")
}

func TestCreatePrediction_QuestionTooLong(t *testing.T) {
	router := newTestEnv(t)
	long := strings.Repeat("q", registry.MaxQuestionLength+1)

	w := do(t, router, "POST", "/api/v1/predictions", "mallory", api.CreatePredictionRequest{Question: long})
	expectKind(t, w, http.StatusForbidden, "Unauthorized")

	w = do(t, router, "POST", "/api/v1/predictions", ownerID, api.CreatePredictionRequest{Question: long})
	expectKind(t, w, http.StatusBadRequest, "InvalidQuestion")
}

func TestFullSettlementFlow(t *testing.T) {
	router := newTestEnv(t)
	v := create(t, router, "q")
	path := fmt.Sprintf("/api/v1/predictions/%d", v.ID)

	w := placeBet(t, router, path, "alice", "YES", 100)
	expectStatus(t, w, http.StatusOK)
	var st model.Stake
	json.NewDecoder(w.Body).Decode(&st)
	if !st.YesStake.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected stake %+v", st)
	}
	expectStatus(t, placeBet(t, router, path, "bob", "no", 50), http.StatusOK)

	// Claim before resolution.
	w = do(t, router, "POST", path+"/claim", "alice", nil)
	expectKind(t, w, http.StatusConflict, "NotResolved")

	w = do(t, router, "POST", path+"/resolve", ownerID, api.ResolveRequest{Outcome: "YES"})
	expectStatus(t, w, http.StatusOK)
	var resolved model.MarketView
	json.NewDecoder(w.Body).Decode(&resolved)
	if !resolved.Resolved || resolved.Outcome != model.ChoiceYes {
		t.Errorf("unexpected resolved view %+v", resolved)
	}

	w = do(t, router, "GET", path+"/claim", "alice", nil)
	expectStatus(t, w, http.StatusOK)
	var preview api.ClaimResponse
	json.NewDecoder(w.Body).Decode(&preview)
	if !preview.Amount.Equal(decimal.NewFromInt(150)) || preview.Claimed {
		t.Errorf("unexpected preview %+v", preview)
	}

	w = do(t, router, "POST", path+"/claim", "alice", nil)
	expectStatus(t, w, http.StatusOK)
	var claim api.ClaimResponse
	json.NewDecoder(w.Body).Decode(&claim)
	if !claim.Amount.Equal(decimal.NewFromInt(150)) || !claim.Claimed {
		t.Errorf("unexpected claim %+v", claim)
	}

	w = do(t, router, "POST", path+"/claim", "alice", nil)
	expectKind(t, w, http.StatusConflict, "AlreadyClaimed")

	w = do(t, router, "POST", path+"/claim", "bob", nil)
	expectKind(t, w, http.StatusUnprocessableEntity, "NothingToClaim")

	w = do(t, router, "GET", "/api/v1/accounts/alice/balance", "", nil)
	expectStatus(t, w, http.StatusOK)
	var bal api.BalanceResponse
	json.NewDecoder(w.Body).Decode(&bal)
	if !bal.Balance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("unexpected balance %+v", bal)
	}

	w = do(t, router, "GET", path+"/history", "", nil)
	expectStatus(t, w, http.StatusOK)
	var entries []model.LedgerEntry
	json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) != 3 {
		t.Errorf("expected 3 ledger entries, got %d", len(entries))
	}
}

func TestPlaceBet_Rejections(t *testing.T) {
	router := newTestEnv(t)
	create(t, router, "q")
	path := "/api/v1/predictions/0"

	expectKind(t, placeBet(t, router, path, "alice", "YES", 0), http.StatusBadRequest, "InvalidAmount")
	expectKind(t, placeBet(t, router, path, "alice", "MAYBE", 5), http.StatusBadRequest, "InvalidChoice")
	expectKind(t, placeBet(t, router, path, "alice", "UNRESOLVED", 5), http.StatusBadRequest, "InvalidChoice")
	expectKind(t, placeBet(t, router, "/api/v1/predictions/7", "alice", "YES", 5), http.StatusNotFound, "NotFound")
	expectKind(t, placeBet(t, router, "/api/v1/predictions/abc", "alice", "YES", 5), http.StatusNotFound, "NotFound")

	w := do(t, router, "POST", path+"/bets", "alice", map[string]string{"choice": "YES", "amount": "1.5"})
	expectKind(t, w, http.StatusBadRequest, "InvalidAmount")

	w = do(t, router, "POST", path+"/bets", "alice", map[string]string{"amount": "5"})
	expectKind(t, w, http.StatusBadRequest, "InvalidChoice")
	expectKind(t, placeBet(t, router, path, "alice", "", 5), http.StatusBadRequest, "InvalidChoice")
}

func TestResolvePrediction_Rejections(t *testing.T) {
	router := newTestEnv(t)
	create(t, router, "q")
	path := "/api/v1/predictions/0/resolve"

	expectKind(t, do(t, router, "POST", path, "alice", api.ResolveRequest{Outcome: "YES"}), http.StatusForbidden, "Unauthorized")
	expectKind(t, do(t, router, "POST", path, "mallory", api.ResolveRequest{}), http.StatusForbidden, "Unauthorized")
	expectKind(t, do(t, router, "POST", path, ownerID, api.ResolveRequest{Outcome: "0"}), http.StatusBadRequest, "InvalidOutcome")
	expectKind(t, do(t, router, "POST", path, ownerID, api.ResolveRequest{}), http.StatusBadRequest, "InvalidOutcome")
	expectStatus(t, do(t, router, "POST", path, ownerID, api.ResolveRequest{Outcome: "NO"}), http.StatusOK)
	expectKind(t, do(t, router, "POST", path, ownerID, api.ResolveRequest{Outcome: "YES"}), http.StatusConflict, "AlreadyResolved")

	// Bets are closed once the outcome is fixed.
	expectKind(t, placeBet(t, router, "/api/v1/predictions/0", "alice", "NO", 5), http.StatusConflict, "AlreadyResolved")
}

func TestListPredictions_ResolvedFilter(t *testing.T) {
	router := newTestEnv(t)
	create(t, router, "a")
	create(t, router, "b")
	expectStatus(t, do(t, router, "POST", "/api/v1/predictions/1/resolve", ownerID, api.ResolveRequest{Outcome: "YES"}), http.StatusOK)

	var all, open []model.MarketView
	w := do(t, router, "GET", "/api/v1/predictions", "", nil)
	expectStatus(t, w, http.StatusOK)
	json.NewDecoder(w.Body).Decode(&all)
	if len(all) != 2 {
		t.Errorf("expected 2 markets, got %d", len(all))
	}

	w = do(t, router, "GET", "/api/v1/predictions?resolved=false", "", nil)
	expectStatus(t, w, http.StatusOK)
	json.NewDecoder(w.Body).Decode(&open)
	if len(open) != 1 || open[0].ID != 0 {
		t.Errorf("expected only market 0 open, got %+v", open)
	}

	w = do(t, router, "GET", "/api/v1/predictions?resolved=maybe", "", nil)
	expectKind(t, w, http.StatusBadRequest, "InvalidRequest")
}

func TestGetPrediction_NotFound(t *testing.T) {
	router := newTestEnv(t)
	w := do(t, router, "GET", "/api/v1/predictions/0", "", nil)
	expectKind(t, w, http.StatusNotFound, "NotFound")
}

func TestGetStake_ZeroForNewAccount(t *testing.T) {
	router := newTestEnv(t)
	create(t, router, "q")
	w := do(t, router, "GET", "/api/v1/predictions/0/stakes/zed", "", nil)
	expectStatus(t, w, http.StatusOK)
	var st model.Stake
	json.NewDecoder(w.Body).Decode(&st)
	if st.Account != "zed" || !st.YesStake.IsZero() || !st.NoStake.IsZero() {
		t.Errorf("unexpected stake %+v", st)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestEnv(t)
	req := httptest.NewRequest("OPTIONS", "/api/v1/predictions", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}
