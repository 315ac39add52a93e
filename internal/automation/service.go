// Package automation exposes the task engine over HTTP: account and
// provider administration, task submission, executor polling and
// execution, and plan quotes. Executions are journalled to a store and
// pushed to WebSocket subscribers.
//
// Token amounts cross the wire as shopspring/decimal strings in whole
// token units and become WADs at this boundary.
package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/debt-bridge/internal/bridge"
	"github.com/atmx/debt-bridge/internal/metrics"
	"github.com/atmx/debt-bridge/internal/model"
	"github.com/atmx/debt-bridge/internal/oracle"
	"github.com/atmx/debt-bridge/internal/payment"
	"github.com/atmx/debt-bridge/internal/route"
	"github.com/atmx/debt-bridge/internal/store"
	"github.com/atmx/debt-bridge/internal/task"
	"github.com/atmx/debt-bridge/internal/venue"
	"github.com/atmx/debt-bridge/internal/wad"
)

// Service adapts the engine to HTTP. The engine serialises state changes
// itself; the service only adds journalling and broadcasts.
type Service struct {
	engine *task.Engine
	store  store.Store
	hub    *Hub // optional
	feeds  map[string]*oracle.StaticFeed
	now    func() time.Time
}

// NewService creates a service. Pass nil for hub if WebSocket broadcasting
// is not needed.
func NewService(engine *task.Engine, st store.Store, hub *Hub) *Service {
	return &Service{
		engine: engine,
		store:  st,
		hub:    hub,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithFeeds enables price updates for the given static feeds, keyed by
// currency pair.
func (s *Service) WithFeeds(feeds map[string]*oracle.StaticFeed) *Service {
	s.feeds = feeds
	return s
}

// --- Request/Response types ---

// RegisterAccountRequest is the JSON body for POST /accounts.
type RegisterAccountRequest struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Flavor  string `json:"flavor"` // "dsa" or "self"
}

// AuthRequest is the JSON body for account authorisation changes.
type AuthRequest struct {
	Caller string `json:"caller"`
	Who    string `json:"who"`
}

// AccountView is the JSON form of an account.
type AccountView struct {
	Address    common.Address   `json:"address"`
	Owner      common.Address   `json:"owner"`
	Flavor     string           `json:"flavor"`
	Authorized []common.Address `json:"authorized"`
}

// SubmitTaskRequest is the JSON body for POST /tasks.
type SubmitTaskRequest struct {
	Caller   string      `json:"caller"`
	Account  string      `json:"account"`
	Provider string      `json:"provider"`
	Module   string      `json:"module"`
	Tasks    []task.Task `json:"tasks"`
	Expiry   *time.Time  `json:"expiry,omitempty"`
}

// ExecRequest is the JSON body for POST /receipts/{receiptID}/exec.
type ExecRequest struct {
	Executor   string          `json:"executor"`
	CostBudget uint64          `json:"cost_budget"`
	CostPrice  decimal.Decimal `json:"cost_price"` // native units per cost unit
}

// CanExecResponse is returned from GET /receipts/{receiptID}/can-exec.
type CanExecResponse struct {
	Receipt uint64 `json:"receipt"`
	OK      bool   `json:"ok"`
	Reason  string `json:"reason"`
}

// PlanView is a plan in decimal token units.
type PlanView struct {
	Mode                 string          `json:"mode"`
	CollateralToWithdraw decimal.Decimal `json:"collateral_to_withdraw"`
	DebtToRepay          decimal.Decimal `json:"debt_to_repay"`
	CollateralToDeposit  decimal.Decimal `json:"collateral_to_deposit"`
	DebtToBorrow         decimal.Decimal `json:"debt_to_borrow"`
	Fee                  decimal.Decimal `json:"fee"`
}

// ExecResponse is returned from a successful exec.
type ExecResponse struct {
	Execution model.Execution `json:"execution"`
	Plan      *PlanView       `json:"plan,omitempty"`
}

// ExecFailure is returned when exec is refused or reverts.
type ExecFailure struct {
	Error       string `json:"error"`
	Code        string `json:"code"`
	Reason      string `json:"reason"`
	ExecutionID string `json:"execution_id"`
}

// ProvideSpecsRequest is the JSON body for POST /providers/{provider}/specs.
// Each task is an example of the shape being whitelisted.
type ProvideSpecsRequest struct {
	Tasks         []task.Task     `json:"tasks"`
	CostPriceCeil decimal.Decimal `json:"cost_price_ceil"`
}

// ModulesRequest is the JSON body for POST /providers/{provider}/modules.
type ModulesRequest struct {
	Modules []string `json:"modules"`
}

// ExecutorRequest is the JSON body for PUT /providers/{provider}/executor.
type ExecutorRequest struct {
	Executor string `json:"executor"`
}

// AmountRequest carries a token amount.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// FundsResponse reports a provider's ledger balance.
type FundsResponse struct {
	Provider common.Address  `json:"provider"`
	Balance  decimal.Decimal `json:"balance"`
}

// ExecutorResponse reports an executor's stake and journal.
type ExecutorResponse struct {
	Executor  common.Address        `json:"executor"`
	Stake     decimal.Decimal       `json:"stake"`
	MinStaked bool                  `json:"min_staked"`
	Summary   model.ExecutorSummary `json:"summary"`
}

// QuoteRequest is the JSON body for POST /quote.
type QuoteRequest struct {
	Mode             string          `json:"mode"` // "partial" or "full"
	Collateral       decimal.Decimal `json:"collateral"`
	Debt             decimal.Decimal `json:"debt"`
	Price            decimal.Decimal `json:"price"`
	SourceRatio      decimal.Decimal `json:"source_ratio"`
	DestinationRatio decimal.Decimal `json:"destination_ratio"`
	NewPosition      bool            `json:"new_position"`
	CostPrice        decimal.Decimal `json:"cost_price"`
}

// QuoteResponse is returned from POST /quote.
type QuoteResponse struct {
	Route     int      `json:"route"`
	Source    string   `json:"source"`
	CostUnits uint64   `json:"cost_units"`
	Plan      PlanView `json:"plan"`
}

// SourceView is a liquidity source in decimal units.
type SourceView struct {
	Name     string          `json:"name"`
	Token    string          `json:"token"`
	Capacity decimal.Decimal `json:"capacity"`
	Cost     route.Cost      `json:"cost"`
}

// OpenPositionRequest is the JSON body for POST /positions.
type OpenPositionRequest struct {
	Owner      string          `json:"owner"`
	Market     string          `json:"market"` // venue:MARKET, e.g. maker:ETH-A
	Collateral decimal.Decimal `json:"collateral"`
	Debt       decimal.Decimal `json:"debt"`
}

// PositionView is a position in decimal token units.
type PositionView struct {
	Venue      string          `json:"venue"`
	ID         uint64          `json:"id"`
	Market     string          `json:"market"`
	Owner      common.Address  `json:"owner"`
	Collateral decimal.Decimal `json:"collateral"`
	Debt       decimal.Decimal `json:"debt"`
}

// WalletRequest is the JSON body for POST /wallets/{owner}.
type WalletRequest struct {
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
}

// PriceResponse reports a pair's current price.
type PriceResponse struct {
	Pair  string          `json:"pair"`
	Price decimal.Decimal `json:"price"`
}

// --- Positions and prices ---

// OpenPosition handles POST /api/v1/positions
func (s *Service) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req OpenPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ref, err := s.engine.OpenPosition(r.Context(), owner, req.Market, wad.FromDecimal(req.Collateral), wad.FromDecimal(req.Debt))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	pos, err := s.engine.Position(ref)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, positionView(pos))
}

// GetPosition handles GET /api/v1/positions/{venue}/{positionID}
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "positionID"), 10, 64)
	if err != nil {
		writeError(w, "invalid position id", http.StatusBadRequest)
		return
	}
	pos, err := s.engine.Position(venue.Ref{Venue: chi.URLParam(r, "venue"), ID: id})
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, positionView(pos))
}

// FundWallet handles POST /api/v1/wallets/{owner}
func (s *Service) FundWallet(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.FundWallet(owner, req.Token, wad.FromDecimal(req.Amount)); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPrice handles GET /api/v1/prices/{base}/{quote}
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	pair := chi.URLParam(r, "base") + "/" + chi.URLParam(r, "quote")
	price, err := s.engine.Prices().Price(r.Context(), pair)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{Pair: pair, Price: wad.ToDecimal(price)})
}

// SetPrice handles PUT /api/v1/prices/{base}/{quote}
//
// Only pairs backed by a static feed can be moved.
func (s *Service) SetPrice(w http.ResponseWriter, r *http.Request) {
	pair := chi.URLParam(r, "base") + "/" + chi.URLParam(r, "quote")
	feed, ok := s.feeds[pair]
	if !ok {
		writeError(w, "no adjustable feed for "+pair, http.StatusNotFound)
		return
	}
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Amount.IsPositive() {
		writeError(w, "price must be a positive decimal", http.StatusBadRequest)
		return
	}
	feed.SetPrice(wad.FromDecimal(req.Amount))
	slog.Info("price updated", "pair", pair, "price", req.Amount.String())
	writeJSON(w, http.StatusOK, PriceResponse{Pair: pair, Price: req.Amount})
}

// --- Accounts ---

// RegisterAccount handles POST /api/v1/accounts
func (s *Service) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.RegisterAccount(addr, owner, req.Flavor); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	acct, _ := s.engine.Account(addr)
	writeJSON(w, http.StatusCreated, accountView(acct))
}

// GetAccount handles GET /api/v1/accounts/{account}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	acct, err := s.engine.Account(addr)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, accountView(acct))
}

// Authorize handles POST /api/v1/accounts/{account}/auth
func (s *Service) Authorize(w http.ResponseWriter, r *http.Request) {
	s.changeAuth(w, r, true)
}

// Revoke handles DELETE /api/v1/accounts/{account}/auth
func (s *Service) Revoke(w http.ResponseWriter, r *http.Request) {
	s.changeAuth(w, r, false)
}

func (s *Service) changeAuth(w http.ResponseWriter, r *http.Request, allow bool) {
	addr, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	who, err := parseAddress("who", req.Who)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if allow {
		err = s.engine.Authorize(caller, addr, who)
	} else {
		err = s.engine.Revoke(caller, addr, who)
	}
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	acct, _ := s.engine.Account(addr)
	writeJSON(w, http.StatusOK, accountView(acct))
}

// --- Receipts ---

// SubmitTask handles POST /api/v1/tasks
func (s *Service) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	provider, err := parseAddress("provider", req.Provider)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var expiry time.Time
	if req.Expiry != nil {
		expiry = *req.Expiry
	}

	receipt, err := s.engine.SubmitTask(caller, account, task.Provider{Address: provider, Module: req.Module}, req.Tasks, expiry)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	metrics.SubmittedReceipts.Inc()

	if err := s.journalReceipt(r, receipt); err != nil {
		slog.Error("journal receipt failed", "receipt", receipt.ID, "err", err)
	}
	s.publish(Event{Type: EventSubmitted, Receipt: receipt.ID, Account: receipt.Account.Hex()})

	writeJSON(w, http.StatusCreated, receipt)
}

// GetReceipt handles GET /api/v1/receipts/{receiptID}
func (s *Service) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := receiptID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	receipt, err := s.engine.Receipt(id)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// ListReceipts handles GET /api/v1/receipts?account=0x...
func (s *Service) ListReceipts(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account != "" {
		addr, err := parseAddress("account", account)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		account = addr.Hex()
	}
	records, err := s.store.ListReceipts(r.Context(), account)
	if err != nil {
		writeError(w, "failed to list receipts", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.ReceiptRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetExecutions handles GET /api/v1/receipts/{receiptID}/executions
func (s *Service) GetExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := receiptID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	execs, err := s.store.GetExecutionsByReceipt(r.Context(), id)
	if err != nil {
		writeError(w, "failed to load executions", http.StatusInternalServerError)
		return
	}
	if execs == nil {
		execs = []model.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

// CanExec handles GET /api/v1/receipts/{receiptID}/can-exec
//
// Query parameters: executor, cost_budget, cost_price (decimal native
// units per cost unit).
func (s *Service) CanExec(w http.ResponseWriter, r *http.Request) {
	id, err := receiptID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	executor, err := parseAddress("executor", q.Get("executor"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	budget, err := strconv.ParseUint(q.Get("cost_budget"), 10, 64)
	if err != nil {
		writeError(w, "cost_budget must be an unsigned integer", http.StatusBadRequest)
		return
	}
	price, err := decimal.NewFromString(q.Get("cost_price"))
	if err != nil || !price.IsPositive() {
		writeError(w, "cost_price must be a positive decimal", http.StatusBadRequest)
		return
	}

	reason := s.engine.CanExec(r.Context(), executor, id, budget, wad.FromDecimal(price))
	metrics.CanExecResults.WithLabelValues(reasonLabel(reason)).Inc()
	writeJSON(w, http.StatusOK, CanExecResponse{Receipt: id, OK: reason == task.OK, Reason: reason})
}

// Exec handles POST /api/v1/receipts/{receiptID}/exec
//
// Every attempt is journalled. Refusals and reverts answer with the
// engine's reason and leave no trace in engine state.
func (s *Service) Exec(w http.ResponseWriter, r *http.Request) {
	id, err := receiptID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	executor, err := parseAddress("executor", req.Executor)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.CostPrice.IsPositive() {
		writeError(w, "cost_price must be positive", http.StatusBadRequest)
		return
	}
	costPrice := wad.FromDecimal(req.CostPrice)

	ctx := r.Context()
	start := time.Now()
	report, err := s.engine.Exec(ctx, executor, id, req.CostBudget, costPrice)
	metrics.ExecLatency.Observe(time.Since(start).Seconds())

	rec := model.Execution{
		ID:              uuid.New().String(),
		ReceiptID:       id,
		Executor:        executor.Hex(),
		CostPrice:       wad.ToDecimal(costPrice),
		Payout:          decimal.Zero,
		ExecutorShare:   decimal.Zero,
		PlatformShare:   decimal.Zero,
		CollateralMoved: decimal.Zero,
		DebtMoved:       decimal.Zero,
		Fee:             decimal.Zero,
		Timestamp:       s.now(),
	}
	if receipt, rerr := s.engine.Receipt(id); rerr == nil {
		rec.Provider = receipt.Provider.Address.Hex()
	}

	if err != nil {
		xerr, ok := task.AsExecError(err)
		if !ok {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		rec.Outcome = model.OutcomeFailed
		rec.Reason = xerr.Reason
		metrics.Executions.WithLabelValues(model.OutcomeFailed, string(xerr.Code)).Inc()
		if jerr := s.store.InsertExecution(ctx, &rec); jerr != nil {
			slog.Error("journal execution failed", "receipt", id, "err", jerr)
		}
		s.publish(Event{Type: EventFailed, Receipt: id, Executor: rec.Executor, Reason: xerr.Reason})
		writeJSON(w, execStatus(xerr.Code), ExecFailure{
			Error:       xerr.Error(),
			Code:        string(xerr.Code),
			Reason:      xerr.Reason,
			ExecutionID: rec.ID,
		})
		return
	}

	rec.Outcome = model.OutcomeSucceeded
	rec.Provider = report.Provider.Hex()
	rec.NextID = report.Next
	rec.CostUsed = report.CostUsed
	rec.Payout = wad.ToDecimal(report.Settlement.Payout)
	rec.ExecutorShare = wad.ToDecimal(report.Settlement.ExecutorShare)
	rec.PlatformShare = wad.ToDecimal(report.Settlement.PlatformShare)
	if report.Plan != nil {
		rec.CollateralMoved = wad.ToDecimal(report.Plan.CollateralToWithdraw)
		rec.DebtMoved = wad.ToDecimal(report.Plan.DebtToRepay)
		rec.Fee = wad.ToDecimal(report.Plan.Fee)
	}
	metrics.Executions.WithLabelValues(model.OutcomeSucceeded, "").Inc()
	metrics.ExecutionCost.Observe(float64(report.CostUsed))
	metrics.ProviderFunds.WithLabelValues(rec.Provider).Set(wad.ToDecimal(s.engine.ProviderFunds(report.Provider)).InexactFloat64())

	if jerr := s.store.InsertExecution(ctx, &rec); jerr != nil {
		slog.Error("journal execution failed", "receipt", id, "err", jerr)
	}
	// Consumed receipt and its successor.
	for _, rid := range []uint64{id, report.Next} {
		if rid == 0 {
			continue
		}
		if receipt, rerr := s.engine.Receipt(rid); rerr == nil {
			if jerr := s.journalReceipt(r, receipt); jerr != nil {
				slog.Error("journal receipt failed", "receipt", rid, "err", jerr)
			}
		}
	}
	if report.Next != 0 {
		metrics.SubmittedReceipts.Inc()
	}

	s.publish(Event{
		Type:     EventExecuted,
		Receipt:  id,
		Next:     report.Next,
		Account:  report.Account.Hex(),
		Executor: rec.Executor,
		Payout:   rec.Payout.String(),
	})

	slog.Info("execution journalled",
		"execution", rec.ID,
		"receipt", id,
		"executor", rec.Executor,
		"payout", rec.Payout.String(),
	)
	writeJSON(w, http.StatusOK, ExecResponse{Execution: rec, Plan: planView(report.Plan)})
}

// --- Providers ---

// ProvideTaskSpecs handles POST /api/v1/providers/{provider}/specs
func (s *Service) ProvideTaskSpecs(w http.ResponseWriter, r *http.Request) {
	provider, err := parseAddress("provider", chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req ProvideSpecsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Tasks) == 0 {
		writeError(w, "tasks is required", http.StatusBadRequest)
		return
	}
	ceil := wad.FromDecimal(req.CostPriceCeil)
	specs := make([]task.TaskSpec, len(req.Tasks))
	for i, t := range req.Tasks {
		specs[i] = task.SpecFor(t, ceil)
	}
	hashes, err := s.engine.ProvideTaskSpecs(provider, specs...)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.Hex()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"hashes": out})
}

// UnprovideTaskSpec handles DELETE /api/v1/providers/{provider}/specs/{hash}
func (s *Service) UnprovideTaskSpec(w http.ResponseWriter, r *http.Request) {
	provider, err := parseAddress("provider", chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	raw := chi.URLParam(r, "hash")
	if len(strings.TrimPrefix(raw, "0x")) != 2*common.HashLength {
		writeError(w, "invalid spec hash", http.StatusBadRequest)
		return
	}
	s.engine.UnprovideTaskSpecs(provider, common.HexToHash(raw))
	w.WriteHeader(http.StatusNoContent)
}

// AddProviderModules handles POST /api/v1/providers/{provider}/modules
func (s *Service) AddProviderModules(w http.ResponseWriter, r *http.Request) {
	provider, err := parseAddress("provider", chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req ModulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.AddProviderModules(provider, req.Modules...); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignExecutor handles PUT /api/v1/providers/{provider}/executor
func (s *Service) AssignExecutor(w http.ResponseWriter, r *http.Request) {
	provider, err := parseAddress("provider", chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req ExecutorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	executor, err := parseAddress("executor", req.Executor)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.engine.ProviderAssignsExecutor(provider, executor); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProvideFunds handles POST /api/v1/providers/{provider}/funds
func (s *Service) ProvideFunds(w http.ResponseWriter, r *http.Request) {
	s.changeFunds(w, r, true)
}

// UnprovideFunds handles POST /api/v1/providers/{provider}/funds/withdraw
func (s *Service) UnprovideFunds(w http.ResponseWriter, r *http.Request) {
	s.changeFunds(w, r, false)
}

func (s *Service) changeFunds(w http.ResponseWriter, r *http.Request, deposit bool) {
	provider, err := parseAddress("provider", chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	amount := wad.FromDecimal(req.Amount)
	if deposit {
		err = s.engine.ProvideFunds(provider, amount)
	} else {
		_, err = s.engine.UnprovideFunds(provider, amount)
	}
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	s.writeFunds(w, provider)
}

// GetProviderFunds handles GET /api/v1/providers/{provider}/funds
func (s *Service) GetProviderFunds(w http.ResponseWriter, r *http.Request) {
	provider, err := parseAddress("provider", chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeFunds(w, provider)
}

func (s *Service) writeFunds(w http.ResponseWriter, provider common.Address) {
	balance := wad.ToDecimal(s.engine.ProviderFunds(provider))
	metrics.ProviderFunds.WithLabelValues(provider.Hex()).Set(balance.InexactFloat64())
	writeJSON(w, http.StatusOK, FundsResponse{Provider: provider, Balance: balance})
}

// --- Executors ---

// StakeExecutor handles POST /api/v1/executors/{executor}/stake
func (s *Service) StakeExecutor(w http.ResponseWriter, r *http.Request) {
	executor, err := parseAddress("executor", chi.URLParam(r, "executor"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.StakeExecutor(executor, wad.FromDecimal(req.Amount)); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	s.writeExecutor(w, r, executor)
}

// UnstakeExecutor handles DELETE /api/v1/executors/{executor}/stake
func (s *Service) UnstakeExecutor(w http.ResponseWriter, r *http.Request) {
	executor, err := parseAddress("executor", chi.URLParam(r, "executor"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.engine.UnstakeExecutor(executor); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	s.writeExecutor(w, r, executor)
}

// GetExecutor handles GET /api/v1/executors/{executor}
func (s *Service) GetExecutor(w http.ResponseWriter, r *http.Request) {
	executor, err := parseAddress("executor", chi.URLParam(r, "executor"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeExecutor(w, r, executor)
}

func (s *Service) writeExecutor(w http.ResponseWriter, r *http.Request, executor common.Address) {
	execs, err := s.store.GetExecutionsByExecutor(r.Context(), executor.Hex())
	if err != nil {
		writeError(w, "failed to load executions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ExecutorResponse{
		Executor:  executor,
		Stake:     wad.ToDecimal(s.engine.ExecutorStake(executor)),
		MinStaked: s.engine.IsExecutorMinStaked(executor),
		Summary:   model.Summarize(executor.Hex(), execs),
	})
}

// --- Quotes ---

// Quote handles POST /api/v1/quote
//
// Sizes a migration against the live liquidity pool without touching any
// position.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	mode, err := bridge.ParseMode(req.Mode)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.CostPrice.IsPositive() {
		writeError(w, "cost_price must be positive", http.StatusBadRequest)
		return
	}

	q, err := s.engine.Quote(mode, bridge.PlanInput{
		Collateral:      wad.FromDecimal(req.Collateral),
		Debt:            wad.FromDecimal(req.Debt),
		CollateralPrice: wad.FromDecimal(req.Price),
		Targets: bridge.Targets{
			Source:      wad.FromDecimal(req.SourceRatio),
			Destination: wad.FromDecimal(req.DestinationRatio),
		},
	}, req.NewPosition, wad.FromDecimal(req.CostPrice))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, route.ErrInsufficientLiquidity) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, err.Error(), status)
		return
	}
	metrics.RouteSelections.WithLabelValues(q.Source).Inc()

	writeJSON(w, http.StatusOK, QuoteResponse{
		Route:     q.Route,
		Source:    q.Source,
		CostUnits: q.CostUnits,
		Plan:      *planView(q.Plan),
	})
}

// ListSources handles GET /api/v1/sources
func (s *Service) ListSources(w http.ResponseWriter, r *http.Request) {
	var out []SourceView
	s.engine.View(func(st *task.State) {
		for _, src := range st.Pool.Sources() {
			out = append(out, SourceView{
				Name:     src.Name,
				Token:    src.Token,
				Capacity: wad.ToDecimal(src.Capacity),
				Cost:     src.Cost,
			})
		}
	})
	if out == nil {
		out = []SourceView{}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Helpers ---

func (s *Service) journalReceipt(r *http.Request, receipt task.Receipt) error {
	tasks, err := json.Marshal(receipt.Tasks)
	if err != nil {
		return err
	}
	rec := &model.ReceiptRecord{
		ID:          receipt.ID,
		Account:     receipt.Account.Hex(),
		Provider:    receipt.Provider.Address.Hex(),
		Module:      receipt.Provider.Module,
		Index:       receipt.Index,
		TaskCount:   len(receipt.Tasks),
		Status:      string(receipt.Status),
		SubmittedAt: receipt.SubmittedAt,
		Tasks:       tasks,
	}
	if !receipt.Expiry.IsZero() {
		exp := receipt.Expiry
		rec.Expiry = &exp
	}
	return s.store.SaveReceipt(r.Context(), rec)
}

func (s *Service) publish(ev Event) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}

func accountView(a task.Account) AccountView {
	return AccountView{
		Address:    a.Address,
		Owner:      a.Owner,
		Flavor:     a.Flavor,
		Authorized: a.AuthorizedList(),
	}
}

func positionView(p venue.Position) PositionView {
	return PositionView{
		Venue:      p.Venue,
		ID:         p.ID,
		Market:     p.Market,
		Owner:      p.Owner,
		Collateral: wad.ToDecimal(p.Collateral),
		Debt:       wad.ToDecimal(p.Debt),
	}
}

func planView(p *bridge.Plan) *PlanView {
	if p == nil {
		return nil
	}
	return &PlanView{
		Mode:                 p.Mode.String(),
		CollateralToWithdraw: wad.ToDecimal(p.CollateralToWithdraw),
		DebtToRepay:          wad.ToDecimal(p.DebtToRepay),
		CollateralToDeposit:  wad.ToDecimal(p.CollateralToDeposit),
		DebtToBorrow:         wad.ToDecimal(p.DebtToBorrow),
		Fee:                  wad.ToDecimal(p.Fee),
	}
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s must be a hex address", field)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s must not be the zero address", field)
	}
	return addr, nil
}

func receiptID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "receiptID"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid receipt id")
	}
	return id, nil
}

// reasonLabel bounds metric cardinality: condition reasons carry the
// condition's own text.
func reasonLabel(reason string) string {
	if strings.HasPrefix(reason, task.ReasonConditionNotOk) {
		return task.ReasonConditionNotOk
	}
	return reason
}

func execStatus(code task.ErrorCode) int {
	switch code {
	case task.CodeCannotExec:
		return http.StatusConflict
	case task.CodeSettlement:
		return http.StatusPaymentRequired
	default:
		return http.StatusUnprocessableEntity
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrReceiptNotFound), errors.Is(err, task.ErrUnknownAccount):
		return http.StatusNotFound
	case errors.Is(err, task.ErrNotAccountOwner):
		return http.StatusForbidden
	case errors.Is(err, task.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, payment.ErrInsufficientProviderFunds), errors.Is(err, payment.ErrNotStaked):
		return http.StatusConflict
	case errors.Is(err, task.ErrTaskSpecNotProvided),
		errors.Is(err, task.ErrProviderModuleNotProvided),
		errors.Is(err, task.ErrInvalidUserProxy),
		errors.Is(err, task.ErrEngineNotAuth),
		errors.Is(err, task.ErrExecutorNotMinStaked):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
