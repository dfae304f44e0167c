// Package api provides the HTTP handlers over the market registry.
//
// Caller identity arrives in the X-Account-ID header and is trusted as
// given; authentication belongs to the gateway in front of this service.
// All monetary values use shopspring/decimal and travel as JSON strings.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atmx/settlement-engine/internal/account"
	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/registry"
)

// AccountHeader carries the caller's account id.
const AccountHeader = "X-Account-ID"

// invalidChoice stands in for an unparsable side so the registry reports
// the rejection in its own check order.
const invalidChoice = model.Choice(0xff)

// Service handles prediction market requests.
type Service struct {
	registry *registry.Registry
	validate *validator.Validate
	log      *zap.Logger
}

// NewService creates a new API service.
func NewService(reg *registry.Registry, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		registry: reg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// --- Request/Response types ---

// CreatePredictionRequest is the JSON body for prediction creation.
type CreatePredictionRequest struct {
	Question string `json:"question"`
	Deadline int64  `json:"deadline"` // unix seconds
}

// PlaceBetRequest is the JSON body for POST /predictions/{id}/bets.
type PlaceBetRequest struct {
	Choice string          `json:"choice"` // "YES" or "NO"
	Amount decimal.Decimal `json:"amount"`
}

// ResolveRequest is the JSON body for POST /predictions/{id}/resolve.
type ResolveRequest struct {
	Outcome string `json:"outcome"` // "YES" or "NO"
}

// ListPredictionsQuery holds the query parameters of GET /predictions.
type ListPredictionsQuery struct {
	Resolved string `validate:"omitempty,boolean"`
}

// ClaimResponse is returned from claim and claim preview.
type ClaimResponse struct {
	MarketID int64           `json:"market_id"`
	Account  model.AccountID `json:"account"`
	Amount   decimal.Decimal `json:"amount"`
	Claimed  bool            `json:"claimed"`
}

// BalanceResponse is returned from GET /accounts/{account}/balance.
type BalanceResponse struct {
	Account model.AccountID `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// --- HTTP Handlers ---

// CreatePrediction handles POST /api/v1/predictions
func (s *Service) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req CreatePredictionRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	id, err := s.registry.CreatePrediction(ctx, req.Question, req.Deadline, caller)
	if err != nil {
		s.writeError(w, err)
		return
	}

	view, err := s.registry.GetMarket(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListPredictions handles GET /api/v1/predictions
// Optional ?resolved=true|false filter.
func (s *Service) ListPredictions(w http.ResponseWriter, r *http.Request) {
	q := ListPredictionsQuery{Resolved: r.URL.Query().Get("resolved")}
	if err := s.validate.Struct(q); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "resolved must be true or false", Kind: "InvalidRequest"})
		return
	}
	views, err := s.registry.ListMarkets(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	if q.Resolved != "" {
		want, _ := strconv.ParseBool(q.Resolved)
		filtered := make([]model.MarketView, 0, len(views))
		for _, m := range views {
			if m.Resolved == want {
				filtered = append(filtered, m)
			}
		}
		views = filtered
	}

	writeJSON(w, http.StatusOK, views)
}

// GetPrediction handles GET /api/v1/predictions/{marketID}
func (s *Service) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.marketID(w, r)
	if !ok {
		return
	}
	view, err := s.registry.GetMarket(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PlaceBet handles POST /api/v1/predictions/{marketID}/bets
func (s *Service) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.marketID(w, r)
	if !ok {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}

	choice, err := model.ParseChoice(req.Choice)
	if err != nil {
		choice = invalidChoice
	}

	ctx := r.Context()
	if err := s.registry.PlaceBet(ctx, id, choice, req.Amount, caller); err != nil {
		s.writeError(w, err)
		return
	}

	stake, err := s.registry.Stake(ctx, id, caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stake)
}

// ResolvePrediction handles POST /api/v1/predictions/{marketID}/resolve
func (s *Service) ResolvePrediction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.marketID(w, r)
	if !ok {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if !s.decode(w, r, &req) {
		return
	}

	outcome, err := model.ParseChoice(req.Outcome)
	if err != nil {
		outcome = invalidChoice
	}

	ctx := r.Context()
	if err := s.registry.ResolvePrediction(ctx, id, outcome, caller); err != nil {
		s.writeError(w, err)
		return
	}

	view, err := s.registry.GetMarket(ctx, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ClaimReward handles POST /api/v1/predictions/{marketID}/claim
func (s *Service) ClaimReward(w http.ResponseWriter, r *http.Request) {
	id, ok := s.marketID(w, r)
	if !ok {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	amount, err := s.registry.ClaimReward(r.Context(), id, caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{MarketID: id, Account: caller, Amount: amount, Claimed: true})
}

// PreviewClaim handles GET /api/v1/predictions/{marketID}/claim
func (s *Service) PreviewClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := s.marketID(w, r)
	if !ok {
		return
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}

	amount, err := s.registry.PreviewClaim(r.Context(), id, caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{MarketID: id, Account: caller, Amount: amount})
}

// GetStake handles GET /api/v1/predictions/{marketID}/stakes/{account}
func (s *Service) GetStake(w http.ResponseWriter, r *http.Request) {
	id, ok := s.marketID(w, r)
	if !ok {
		return
	}
	acct, err := account.Normalize(chi.URLParam(r, "account"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "InvalidRequest"})
		return
	}

	stake, err := s.registry.Stake(r.Context(), id, acct)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stake)
}

// GetHistory handles GET /api/v1/predictions/{marketID}/history
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.marketID(w, r)
	if !ok {
		return
	}
	entries, err := s.registry.History(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetBalance handles GET /api/v1/accounts/{account}/balance
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	acct, err := account.Normalize(chi.URLParam(r, "account"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "InvalidRequest"})
		return
	}
	bal, err := s.registry.Balance(r.Context(), acct)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Account: acct, Balance: bal})
}

// --- helpers ---

func (s *Service) caller(w http.ResponseWriter, r *http.Request) (model.AccountID, bool) {
	acct, err := account.Normalize(r.Header.Get(AccountHeader))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: AccountHeader + ": " + err.Error(),
			Kind:  "Unauthorized",
		})
		return "", false
	}
	return acct, true
}

// marketID parses {marketID}. Anything that is not a non-negative integer
// cannot name a market.
func (s *Service) marketID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil || id < 0 {
		s.writeError(w, registry.ErrNotFound)
		return 0, false
	}
	return id, true
}

// decode only checks that the body is JSON. Field rules belong to the
// registry so its error kinds and check order reach the caller unchanged.
func (s *Service) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: "InvalidRequest"})
		return false
	}
	return true
}

// statusFor maps registry error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrAlreadyResolved),
		errors.Is(err, registry.ErrNotResolved),
		errors.Is(err, registry.ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidOutcome),
		errors.Is(err, registry.ErrInvalidChoice),
		errors.Is(err, registry.ErrInvalidAmount),
		errors.Is(err, registry.ErrInvalidQuestion):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNothingToClaim):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError writes a JSON error response. Internal faults are logged and
// their detail withheld from the caller.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: registry.Kind(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
