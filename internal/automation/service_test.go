package automation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/debt-bridge/internal/automation"
	"github.com/atmx/debt-bridge/internal/bridge"
	"github.com/atmx/debt-bridge/internal/condition"
	"github.com/atmx/debt-bridge/internal/model"
	"github.com/atmx/debt-bridge/internal/oracle"
	"github.com/atmx/debt-bridge/internal/route"
	"github.com/atmx/debt-bridge/internal/store"
	"github.com/atmx/debt-bridge/internal/task"
	"github.com/atmx/debt-bridge/internal/venue"
	"github.com/atmx/debt-bridge/internal/wad"
)

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	owner      = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	account    = common.HexToAddress("0x00000000000000000000000000000000000000d5")
	provider   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	executor   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func w(s string) *big.Int { return wad.MustParse(s) }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testEnv struct {
	router chi.Router
	store  *store.MemoryStore
	feed   *oracle.StaticFeed
	source venue.Ref
}

// newTestEnv wires a service around a maker book holding one 10 ETH /
// 1000 DAI position owned by the account, with ETH at 400.
func newTestEnv(t *testing.T, limiter *automation.RateLimiter) *testEnv {
	t.Helper()
	feed := oracle.NewStaticFeed(w("400"))
	prices := oracle.NewResolver()
	require.NoError(t, prices.AddOracle("ETH/USD", feed))

	book := venue.NewBook("maker",
		venue.Market{Name: "ETH-A", Collateral: "ETH", Debt: "DAI", PriceQuery: "ETH/USD", LiquidationRatio: w("1.5")},
		venue.Market{Name: "ETH-B", Collateral: "ETH", Debt: "DAI", PriceQuery: "ETH/USD", LiquidationRatio: w("1.3")},
	)
	id, err := book.Open(account, "ETH-A")
	require.NoError(t, err)
	require.NoError(t, book.Deposit(id, w("10")))
	_, err = book.Borrow(context.Background(), prices, account, id, w("1000"))
	require.NoError(t, err)

	var sources []route.Source
	for _, c := range route.DefaultCosts {
		sources = append(sources, route.Source{Name: c.Name, Token: "DAI", Capacity: w("1000000"), Cost: c.Cost})
	}
	state := task.NewState(venue.NewRegistry(book), route.NewPool(sources), wad.One())
	engine := task.NewEngine(task.Config{Address: engineAddr, SuccessSharePercent: 5}, state, prices, nil)

	ms := store.NewMemoryStore()
	svc := automation.NewService(engine, ms, nil).WithFeeds(map[string]*oracle.StaticFeed{"ETH/USD": feed})

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/accounts", svc.RegisterAccount)
		r.Get("/accounts/{account}", svc.GetAccount)
		r.Post("/accounts/{account}/auth", svc.Authorize)
		r.Delete("/accounts/{account}/auth", svc.Revoke)

		r.Post("/tasks", svc.SubmitTask)
		r.Get("/receipts", svc.ListReceipts)
		r.Get("/receipts/{receiptID}", svc.GetReceipt)
		r.Get("/receipts/{receiptID}/executions", svc.GetExecutions)
		r.Post("/receipts/{receiptID}/exec", svc.Exec)
		if limiter != nil {
			r.With(limiter.Middleware).Get("/receipts/{receiptID}/can-exec", svc.CanExec)
		} else {
			r.Get("/receipts/{receiptID}/can-exec", svc.CanExec)
		}

		r.Post("/providers/{provider}/specs", svc.ProvideTaskSpecs)
		r.Delete("/providers/{provider}/specs/{hash}", svc.UnprovideTaskSpec)
		r.Post("/providers/{provider}/modules", svc.AddProviderModules)
		r.Put("/providers/{provider}/executor", svc.AssignExecutor)
		r.Get("/providers/{provider}/funds", svc.GetProviderFunds)
		r.Post("/providers/{provider}/funds", svc.ProvideFunds)
		r.Post("/providers/{provider}/funds/withdraw", svc.UnprovideFunds)

		r.Get("/executors/{executor}", svc.GetExecutor)
		r.Post("/executors/{executor}/stake", svc.StakeExecutor)
		r.Delete("/executors/{executor}/stake", svc.UnstakeExecutor)

		r.Post("/positions", svc.OpenPosition)
		r.Get("/positions/{venue}/{positionID}", svc.GetPosition)
		r.Post("/wallets/{owner}", svc.FundWallet)
		r.Get("/prices/{base}/{quote}", svc.GetPrice)
		r.Put("/prices/{base}/{quote}", svc.SetPrice)

		r.Post("/quote", svc.Quote)
		r.Get("/sources", svc.ListSources)
	})

	return &testEnv{router: r, store: ms, feed: feed, source: venue.Ref{Venue: "maker", ID: id}}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) refinanceTask(t *testing.T) task.Task {
	t.Helper()
	data, err := condition.EncodeData(condition.UnsafeParams{Position: e.source, PriceQuery: "ETH/USD", MinRatio: w("3")})
	require.NoError(t, err)
	return task.Task{
		Conditions: []task.Condition{{Handle: condition.HandleVaultUnsafe, Data: data}},
		Actions: task.RefinanceActions(task.RefinanceParams{
			Mode:              bridge.Full,
			Source:            e.source,
			Targets:           bridge.Targets{Source: w("3"), Destination: w("1.5")},
			PriceQuery:        "ETH/USD",
			CollateralToken:   "ETH",
			DebtToken:         "DAI",
			DestinationVenue:  "maker",
			DestinationMarket: "ETH-B",
		}),
	}
}

// setup registers the account and provider over HTTP and submits one
// refinance task, returning its receipt id.
func (e *testEnv) setup(t *testing.T) uint64 {
	t.Helper()
	rec := e.do(t, "POST", "/api/v1/accounts", automation.RegisterAccountRequest{
		Address: account.Hex(), Owner: owner.Hex(), Flavor: task.FlavorDSA,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = e.do(t, "POST", "/api/v1/accounts/"+account.Hex()+"/auth", automation.AuthRequest{Caller: owner.Hex(), Who: engineAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	base := "/api/v1/providers/" + provider.Hex()
	rec = e.do(t, "POST", base+"/modules", automation.ModulesRequest{Modules: []string{task.ModuleDSA}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = e.do(t, "POST", "/api/v1/executors/"+executor.Hex()+"/stake", automation.AmountRequest{Amount: d("1")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, "PUT", base+"/executor", automation.ExecutorRequest{Executor: executor.Hex()})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = e.do(t, "POST", base+"/funds", automation.AmountRequest{Amount: d("1")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tk := e.refinanceTask(t)
	rec = e.do(t, "POST", base+"/specs", automation.ProvideSpecsRequest{Tasks: []task.Task{tk}, CostPriceCeil: d("0.000001")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, "POST", "/api/v1/tasks", automation.SubmitTaskRequest{
		Caller:   owner.Hex(),
		Account:  account.Hex(),
		Provider: provider.Hex(),
		Module:   task.ModuleDSA,
		Tasks:    []task.Task{tk},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[task.Receipt](t, rec).ID
}

func canExecPath(id uint64) string {
	return fmt.Sprintf("/api/v1/receipts/%d/can-exec?executor=%s&cost_budget=4000000&cost_price=0.0000001", id, executor.Hex())
}

func TestExec_FullRefinanceOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.setup(t)

	rec := env.do(t, "GET", canExecPath(id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ce := decode[automation.CanExecResponse](t, rec)
	assert.False(t, ce.OK)
	assert.Equal(t, "ConditionNotOk:PositionNotUnsafe", ce.Reason)

	env.feed.SetPrice(w("250"))
	ce = decode[automation.CanExecResponse](t, env.do(t, "GET", canExecPath(id), nil))
	assert.True(t, ce.OK, ce.Reason)

	rec = env.do(t, "POST", fmt.Sprintf("/api/v1/receipts/%d/exec", id), automation.ExecRequest{
		Executor: executor.Hex(), CostBudget: 4_000_000, CostPrice: d("0.0000001"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[automation.ExecResponse](t, rec)
	assert.Equal(t, model.OutcomeSucceeded, resp.Execution.Outcome)
	assert.Equal(t, uint64(2_265_000), resp.Execution.CostUsed)
	assert.True(t, resp.Execution.Payout.Equal(d("0.2265")), resp.Execution.Payout.String())
	assert.True(t, resp.Execution.ExecutorShare.Equal(d("0.215175")), resp.Execution.ExecutorShare.String())
	assert.True(t, resp.Execution.Fee.Equal(d("0.2984")))
	assert.True(t, resp.Execution.CollateralMoved.Equal(d("10")))
	require.NotNil(t, resp.Plan)
	assert.True(t, resp.Plan.CollateralToDeposit.Equal(d("9.7016")))

	receipt := decode[task.Receipt](t, env.do(t, "GET", fmt.Sprintf("/api/v1/receipts/%d", id), nil))
	assert.Equal(t, task.StatusConsumed, receipt.Status)

	records, err := env.store.ListReceipts(context.Background(), account.Hex())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(task.StatusConsumed), records[0].Status)

	funds := decode[automation.FundsResponse](t, env.do(t, "GET", "/api/v1/providers/"+provider.Hex()+"/funds", nil))
	assert.True(t, funds.Balance.Equal(d("0.7735")), funds.Balance.String())

	ex := decode[automation.ExecutorResponse](t, env.do(t, "GET", "/api/v1/executors/"+executor.Hex(), nil))
	assert.True(t, ex.Stake.Equal(d("1.215175")), ex.Stake.String())
	assert.True(t, ex.MinStaked)
	assert.Equal(t, 1, ex.Summary.Executions)
	assert.True(t, ex.Summary.TotalEarned.Equal(d("0.215175")))

	// A consumed receipt is refused and the refusal is journalled.
	rec = env.do(t, "POST", fmt.Sprintf("/api/v1/receipts/%d/exec", id), automation.ExecRequest{
		Executor: executor.Hex(), CostBudget: 4_000_000, CostPrice: d("0.0000001"),
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	fail := decode[automation.ExecFailure](t, rec)
	assert.Equal(t, string(task.CodeCannotExec), fail.Code)
	assert.Equal(t, task.ReasonInvalidReceipt, fail.Reason)

	execs := decode[[]model.Execution](t, env.do(t, "GET", fmt.Sprintf("/api/v1/receipts/%d/executions", id), nil))
	require.Len(t, execs, 2)
	assert.Equal(t, model.OutcomeFailed, execs[1].Outcome)
	assert.Equal(t, fail.ExecutionID, execs[1].ID)
}

func TestExec_OutOfBudgetIsUnprocessable(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.setup(t)
	env.feed.SetPrice(w("250"))

	rec := env.do(t, "POST", fmt.Sprintf("/api/v1/receipts/%d/exec", id), automation.ExecRequest{
		Executor: executor.Hex(), CostBudget: 2_000_000, CostPrice: d("0.0000001"),
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	fail := decode[automation.ExecFailure](t, rec)
	assert.Equal(t, string(task.CodeOutOfBudget), fail.Code)
	assert.Equal(t, task.ReasonOutOfCostBudget, fail.Reason)

	// Nothing changed: the receipt can still run with a larger budget.
	ce := decode[automation.CanExecResponse](t, env.do(t, "GET", canExecPath(id), nil))
	assert.True(t, ce.OK, ce.Reason)
}

func TestSubmitTask_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.setup(t)
	tk := env.refinanceTask(t)

	tests := []struct {
		name   string
		req    automation.SubmitTaskRequest
		status int
	}{
		{"bad caller", automation.SubmitTaskRequest{Caller: "nope", Account: account.Hex(), Provider: provider.Hex(), Module: task.ModuleDSA, Tasks: []task.Task{tk}}, http.StatusBadRequest},
		{"not owner", automation.SubmitTaskRequest{Caller: executor.Hex(), Account: account.Hex(), Provider: provider.Hex(), Module: task.ModuleDSA, Tasks: []task.Task{tk}}, http.StatusForbidden},
		{"unknown account", automation.SubmitTaskRequest{Caller: owner.Hex(), Account: executor.Hex(), Provider: provider.Hex(), Module: task.ModuleDSA, Tasks: []task.Task{tk}}, http.StatusNotFound},
		{"no tasks", automation.SubmitTaskRequest{Caller: owner.Hex(), Account: account.Hex(), Provider: provider.Hex(), Module: task.ModuleDSA}, http.StatusBadRequest},
		{"unknown module", automation.SubmitTaskRequest{Caller: owner.Hex(), Account: account.Hex(), Provider: provider.Hex(), Module: "vault", Tasks: []task.Task{tk}}, http.StatusBadRequest},
		{"spec not provided", automation.SubmitTaskRequest{Caller: owner.Hex(), Account: account.Hex(), Provider: provider.Hex(), Module: task.ModuleDSA, Tasks: []task.Task{{Actions: tk.Actions}}}, http.StatusConflict},
		{"module not enabled", automation.SubmitTaskRequest{Caller: owner.Hex(), Account: account.Hex(), Provider: provider.Hex(), Module: task.ModuleSelf, Tasks: []task.Task{tk}}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/v1/tasks", tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	t.Run("engine not authorised", func(t *testing.T) {
		rec := env.do(t, "DELETE", "/api/v1/accounts/"+account.Hex()+"/auth", automation.AuthRequest{Caller: owner.Hex(), Who: engineAddr.Hex()})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = env.do(t, "POST", "/api/v1/tasks", automation.SubmitTaskRequest{
			Caller: owner.Hex(), Account: account.Hex(), Provider: provider.Hex(), Module: task.ModuleDSA, Tasks: []task.Task{tk},
		})
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "not authorised")
	})
}

func TestAssignExecutor_RequiresStake(t *testing.T) {
	env := newTestEnv(t, nil)
	path := "/api/v1/providers/" + provider.Hex() + "/executor"

	rec := env.do(t, "PUT", path, automation.ExecutorRequest{Executor: executor.Hex()})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = env.do(t, "POST", "/api/v1/executors/"+executor.Hex()+"/stake", automation.AmountRequest{Amount: d("1")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, "PUT", path, automation.ExecutorRequest{Executor: executor.Hex()})
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, "POST", "/api/v1/quote", automation.QuoteRequest{
		Mode:             "full",
		Collateral:       d("10"),
		Debt:             d("1000"),
		Price:            d("250"),
		SourceRatio:      d("3"),
		DestinationRatio: d("1.5"),
		NewPosition:      true,
		CostPrice:        d("0.0000001"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode[automation.QuoteResponse](t, rec)
	assert.Equal(t, "dydx", q.Source)
	assert.Equal(t, uint64(2_984_000), q.CostUnits)
	assert.Equal(t, "full", q.Plan.Mode)
	assert.True(t, q.Plan.Fee.Equal(d("0.2984")), q.Plan.Fee.String())
	assert.True(t, q.Plan.CollateralToDeposit.Equal(d("9.7016")))

	rec = env.do(t, "POST", "/api/v1/quote", automation.QuoteRequest{
		Mode: "partial", Collateral: d("10"), Debt: d("1000"), Price: d("250"),
		SourceRatio: d("2"), DestinationRatio: d("2"), CostPrice: d("0.0000001"),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/v1/quote", automation.QuoteRequest{
		Mode: "full", Collateral: d("100000"), Debt: d("2000000"), Price: d("250"),
		SourceRatio: d("3"), DestinationRatio: d("1.5"), CostPrice: d("0.0000001"),
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	sources := decode[[]automation.SourceView](t, env.do(t, "GET", "/api/v1/sources", nil))
	require.Len(t, sources, 4)
	assert.Equal(t, "aave", sources[3].Name)
	assert.True(t, sources[0].Capacity.Equal(d("1000000")))
}

func TestAccountsAndProviders(t *testing.T) {
	env := newTestEnv(t, nil)
	env.setup(t)

	acct := decode[automation.AccountView](t, env.do(t, "GET", "/api/v1/accounts/"+account.Hex(), nil))
	assert.Equal(t, owner, acct.Owner)
	assert.Equal(t, []common.Address{engineAddr}, acct.Authorized)

	rec := env.do(t, "DELETE", "/api/v1/accounts/"+account.Hex()+"/auth", automation.AuthRequest{Caller: executor.Hex(), Who: engineAddr.Hex()})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(t, "DELETE", "/api/v1/accounts/"+account.Hex()+"/auth", automation.AuthRequest{Caller: owner.Hex(), Who: engineAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[automation.AccountView](t, rec).Authorized)

	rec = env.do(t, "POST", "/api/v1/accounts", automation.RegisterAccountRequest{Address: account.Hex(), Owner: owner.Hex(), Flavor: task.FlavorDSA})
	assert.Equal(t, http.StatusConflict, rec.Code)

	base := "/api/v1/providers/" + provider.Hex()
	rec = env.do(t, "POST", base+"/funds/withdraw", automation.AmountRequest{Amount: d("0.25")})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[automation.FundsResponse](t, rec).Balance.Equal(d("0.75")))

	rec = env.do(t, "POST", base+"/specs", automation.ProvideSpecsRequest{Tasks: []task.Task{env.refinanceTask(t)}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "zero ceiling")

	rec = env.do(t, "DELETE", base+"/specs/0x1234", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "DELETE", "/api/v1/executors/"+executor.Hex()+"/stake", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ex := decode[automation.ExecutorResponse](t, rec)
	assert.False(t, ex.MinStaked)
	assert.True(t, ex.Stake.IsZero())
}

func TestCanExec_RateLimited(t *testing.T) {
	env := newTestEnv(t, automation.NewRateLimiter(automation.RateLimit{RequestsPerMinute: 1, Burst: 2}))
	id := env.setup(t)

	for i := 0; i < 2; i++ {
		rec := env.do(t, "GET", canExecPath(id), nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(t, "GET", canExecPath(id), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other executors have their own bucket.
	other := fmt.Sprintf("/api/v1/receipts/%d/can-exec?executor=%s&cost_budget=1&cost_price=1", id, owner.Hex())
	rec = env.do(t, "GET", other, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, task.ReasonExecutorNotAssigned, decode[automation.CanExecResponse](t, rec).Reason)

	// The same executor polled from another address is not throttled by
	// the first caller's usage.
	req := httptest.NewRequest("GET", canExecPath(id), nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Letter case does not open a fresh bucket.
	rec = env.do(t, "GET", strings.Replace(canExecPath(id), executor.Hex(), strings.ToLower(executor.Hex()), 1), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPositionsAndPrices(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, "POST", "/api/v1/positions", automation.OpenPositionRequest{
		Owner: owner.Hex(), Market: "maker:ETH-B", Collateral: d("2"), Debt: d("100"),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pos := decode[automation.PositionView](t, rec)
	assert.Equal(t, uint64(2), pos.ID)
	assert.Equal(t, "ETH-B", pos.Market)
	assert.True(t, pos.Debt.Equal(d("100")))

	got := decode[automation.PositionView](t, env.do(t, "GET", "/api/v1/positions/maker/2", nil))
	assert.Equal(t, pos, got)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/v1/positions/maker/9", nil).Code)

	rec = env.do(t, "POST", "/api/v1/positions", automation.OpenPositionRequest{
		Owner: owner.Hex(), Market: "maker:ETH-B", Collateral: d("1"), Debt: d("1000"),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "PUT", "/api/v1/prices/ETH/USD", automation.AmountRequest{Amount: d("250")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	price := decode[automation.PriceResponse](t, env.do(t, "GET", "/api/v1/prices/ETH/USD", nil))
	assert.True(t, price.Price.Equal(d("250")), price.Price.String())

	assert.Equal(t, http.StatusNotFound, env.do(t, "PUT", "/api/v1/prices/BTC/USD", automation.AmountRequest{Amount: d("1")}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/api/v1/prices/BTC/USD", nil).Code)

	rec = env.do(t, "POST", "/api/v1/wallets/"+owner.Hex(), automation.WalletRequest{Token: "DAI", Amount: d("5")})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, "POST", "/api/v1/wallets/"+owner.Hex(), automation.WalletRequest{Token: "DAI", Amount: d("0")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
