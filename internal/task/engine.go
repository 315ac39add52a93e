package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/debt-bridge/internal/bridge"
	"github.com/atmx/debt-bridge/internal/condition"
	"github.com/atmx/debt-bridge/internal/payment"
	"github.com/atmx/debt-bridge/internal/venue"
)

var (
	ErrInvalidAccount = errors.New("task: invalid account")
	ErrExpiryInPast   = errors.New("task: expiry is not in the future")
	ErrNoTasks        = errors.New("task: receipt needs at least one task")
)

// Config holds engine parameters. Zero values fall back to defaults.
type Config struct {
	// Address is the engine's identity on accounts and venues.
	Address             common.Address
	SuccessSharePercent uint64
	Meter               Meter
	Now                 func() time.Time
	Logger              *slog.Logger
}

// Report describes a successful execution.
type Report struct {
	Receipt    uint64             `json:"receipt"`
	Next       uint64             `json:"next,omitempty"`
	Account    common.Address     `json:"account"`
	Provider   common.Address     `json:"provider"`
	Executor   common.Address     `json:"executor"`
	CostUsed   uint64             `json:"cost_used"`
	CostPrice  *big.Int           `json:"cost_price"`
	Settlement payment.Settlement `json:"settlement"`
	Plan       *bridge.Plan       `json:"plan,omitempty"`
	ExecutedAt time.Time          `json:"executed_at"`
}

// Engine serialises every state change behind one mutex. Exec runs against
// a clone of the state and swaps it in only on success.
type Engine struct {
	mu         sync.Mutex
	cfg        Config
	state      *State
	prices     venue.PriceSource
	conditions *condition.Registry
	modules    map[string]ProviderModule
	interp     *interpreter
	log        *slog.Logger
}

// NewEngine creates an engine over state. With no modules given, the DSA
// and self modules are installed.
func NewEngine(cfg Config, state *State, prices venue.PriceSource, conditions *condition.Registry, modules ...ProviderModule) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Meter.Actions == nil {
		cfg.Meter = DefaultMeter()
	}
	if conditions == nil {
		conditions = condition.DefaultRegistry()
	}
	if len(modules) == 0 {
		modules = []ProviderModule{DSAModule{}, SelfModule{}}
	}
	e := &Engine{
		cfg:        cfg,
		state:      state,
		prices:     prices,
		conditions: conditions,
		modules:    make(map[string]ProviderModule, len(modules)),
		interp:     &interpreter{meter: cfg.Meter, customs: make(map[string]CustomFunc)},
		log:        cfg.Logger.With("component", "task-engine"),
	}
	for _, m := range modules {
		e.modules[m.Name()] = m
	}
	return e
}

// Address returns the engine's identity.
func (e *Engine) Address() common.Address { return e.cfg.Address }

// Meter returns the engine's action meter.
func (e *Engine) Meter() Meter { return e.cfg.Meter }

// Prices returns the engine's price source.
func (e *Engine) Prices() venue.PriceSource { return e.prices }

// RegisterCustom installs a handler for Custom actions with the given handle.
func (e *Engine) RegisterCustom(handle string, fn CustomFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.interp.customs[handle]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCustom, handle)
	}
	e.interp.customs[handle] = fn
	return nil
}

// --- Accounts ---

// RegisterAccount adds an account. The engine is not authorised yet.
func (e *Engine) RegisterAccount(address, owner common.Address, flavor string) error {
	if address == (common.Address{}) || owner == (common.Address{}) {
		return ErrInvalidAccount
	}
	if flavor != FlavorDSA && flavor != FlavorSelf {
		return fmt.Errorf("%w: flavour %q", ErrInvalidAccount, flavor)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.state.Accounts[address]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, address.Hex())
	}
	e.state.Accounts[address] = &Account{
		Address:    address,
		Owner:      owner,
		Flavor:     flavor,
		Authorized: make(map[common.Address]bool),
	}
	e.log.Info("account registered", "account", address.Hex(), "owner", owner.Hex(), "flavor", flavor)
	return nil
}

// Authorize lets who act through account. Only the owner may call it.
func (e *Engine) Authorize(caller, account, who common.Address) error {
	return e.setAuth(caller, account, who, true)
}

// Revoke withdraws an authorisation.
func (e *Engine) Revoke(caller, account, who common.Address) error {
	return e.setAuth(caller, account, who, false)
}

func (e *Engine) setAuth(caller, account, who common.Address, allow bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	acct, ok := e.state.Accounts[account]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	if acct.Owner != caller {
		return ErrNotAccountOwner
	}
	if allow {
		acct.Authorized[who] = true
	} else {
		delete(acct.Authorized, who)
	}
	return nil
}

// Account returns a copy of a registered account.
func (e *Engine) Account(address common.Address) (Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	acct, ok := e.state.Accounts[address]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrUnknownAccount, address.Hex())
	}
	return *acct.clone(), nil
}

// FundWallet credits tokens to an address. It stands in for transfers from
// outside the engine.
func (e *Engine) FundWallet(owner common.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return venue.ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Wallets.Credit(owner, token, amount)
	return nil
}

// OpenPosition opens a position for owner in the market named by handle
// ("venue:MARKET"), deposits collateral and borrows debt into the owner's
// wallet. Like FundWallet it stands in for activity outside the engine.
// Nothing changes if any step fails.
func (e *Engine) OpenPosition(ctx context.Context, owner common.Address, handle string, collateral, debt *big.Int) (venue.Ref, error) {
	venueName, market, err := venue.ParseMarketHandle(handle)
	if err != nil {
		return venue.Ref{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := e.state.Clone()
	book, err := tx.Venues.Book(venueName)
	if err != nil {
		return venue.Ref{}, err
	}
	m, err := book.Market(market)
	if err != nil {
		return venue.Ref{}, err
	}
	id, err := book.Open(owner, market)
	if err != nil {
		return venue.Ref{}, err
	}
	if collateral != nil && collateral.Sign() > 0 {
		if err := book.Deposit(id, collateral); err != nil {
			return venue.Ref{}, err
		}
	}
	if debt != nil && debt.Sign() > 0 {
		if _, err := book.Borrow(ctx, e.prices, owner, id, debt); err != nil {
			return venue.Ref{}, err
		}
		tx.Wallets.Credit(owner, m.Debt, debt)
	}
	e.state = tx
	ref := venue.Ref{Venue: venueName, ID: id}
	e.log.Info("position opened", "position", ref.String(), "owner", owner.Hex())
	return ref, nil
}

// Position returns a copy of a position.
func (e *Engine) Position(ref venue.Ref) (venue.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Position(ref)
}

// --- Providers ---

// ProvideTaskSpecs publishes specs for provider and returns their hashes.
// Providing an existing spec updates its ceiling.
func (e *Engine) ProvideTaskSpecs(provider common.Address, specs ...TaskSpec) ([]common.Hash, error) {
	if provider == (common.Address{}) {
		return nil, ErrInvalidProvider
	}
	for _, s := range specs {
		if s.CostPriceCeil == nil || s.CostPriceCeil.Sign() <= 0 {
			return nil, ErrInvalidCeil
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.state.Specs[provider]
	if m == nil {
		m = make(map[common.Hash]*big.Int)
		e.state.Specs[provider] = m
	}
	hashes := make([]common.Hash, 0, len(specs))
	for _, s := range specs {
		h := s.Hash()
		m[h] = new(big.Int).Set(s.CostPriceCeil)
		hashes = append(hashes, h)
		e.log.Info("task spec provided", "provider", provider.Hex(), "hash", h.Hex(), "ceil", s.CostPriceCeil.String())
	}
	return hashes, nil
}

// UnprovideTaskSpecs removes specs by hash. Unknown hashes are ignored.
func (e *Engine) UnprovideTaskSpecs(provider common.Address, hashes ...common.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, h := range hashes {
		delete(e.state.Specs[provider], h)
	}
}

// IsTaskSpecProvided reports whether provider publishes the spec.
func (e *Engine) IsTaskSpecProvided(provider common.Address, h common.Hash) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.state.specCeil(provider, h)
	return ok
}

// TaskSpecCostPriceCeil returns the ceiling of a provided spec.
func (e *Engine) TaskSpecCostPriceCeil(provider common.Address, h common.Hash) (*big.Int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ceil, ok := e.state.specCeil(provider, h)
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(ceil), true
}

// AddProviderModules enables modules for provider.
func (e *Engine) AddProviderModules(provider common.Address, names ...string) error {
	if provider == (common.Address{}) {
		return ErrInvalidProvider
	}
	for _, n := range names {
		if _, ok := e.modules[n]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModule, n)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.state.Modules[provider]
	if m == nil {
		m = make(map[string]bool)
		e.state.Modules[provider] = m
	}
	for _, n := range names {
		m[n] = true
	}
	return nil
}

// RemoveProviderModules disables modules for provider. Receipts already
// submitted through them stop being executable.
func (e *Engine) RemoveProviderModules(provider common.Address, names ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range names {
		delete(e.state.Modules[provider], n)
	}
}

// ProviderAssignsExecutor sets the single executor allowed to run the
// provider's tasks. The executor must already hold the minimum stake.
func (e *Engine) ProviderAssignsExecutor(provider, executor common.Address) error {
	if provider == (common.Address{}) {
		return ErrInvalidProvider
	}
	if executor == (common.Address{}) {
		return ErrInvalidExecutor
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Stakes.IsMinStaked(executor) {
		return fmt.Errorf("%w: %s", ErrExecutorNotMinStaked, executor.Hex())
	}
	e.state.Executors[provider] = executor
	e.log.Info("executor assigned", "provider", provider.Hex(), "executor", executor.Hex())
	return nil
}

// ProvideFunds credits the provider's ledger balance.
func (e *Engine) ProvideFunds(provider common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Ledger.ProvideFunds(provider, amount)
}

// UnprovideFunds withdraws up to amount from the provider's ledger balance.
func (e *Engine) UnprovideFunds(provider common.Address, amount *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Ledger.UnprovideFunds(provider, amount)
}

// ProviderFunds returns the provider's ledger balance.
func (e *Engine) ProviderFunds(provider common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Ledger.Balance(provider)
}

// --- Executors ---

// StakeExecutor adds to an executor's stake.
func (e *Engine) StakeExecutor(executor common.Address, amount *big.Int) error {
	if executor == (common.Address{}) {
		return ErrInvalidExecutor
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Stakes.Stake(executor, amount)
}

// UnstakeExecutor returns the executor's whole stake.
func (e *Engine) UnstakeExecutor(executor common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Stakes.Unstake(executor)
}

// IsExecutorMinStaked reports whether the executor meets the minimum stake.
func (e *Engine) IsExecutorMinStaked(executor common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Stakes.IsMinStaked(executor)
}

// ExecutorStake returns the executor's stake.
func (e *Engine) ExecutorStake(executor common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Stakes.Of(executor)
}

// --- Receipts ---

// SubmitTask records a task chain for account. Only the account owner may
// submit, every task's spec must be provided, and the provider must have
// enabled a module that can serve the account. A zero expiry never expires.
func (e *Engine) SubmitTask(caller, account common.Address, provider Provider, tasks []Task, expiry time.Time) (Receipt, error) {
	if len(tasks) == 0 {
		return Receipt{}, ErrNoTasks
	}
	if provider.Address == (common.Address{}) {
		return Receipt{}, ErrInvalidProvider
	}
	if _, ok := e.modules[provider.Module]; !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownModule, provider.Module)
	}
	for i, t := range tasks {
		if len(t.Actions) == 0 {
			return Receipt{}, fmt.Errorf("%w: task %d", ErrEmptyTask, i)
		}
		for _, c := range t.Conditions {
			if !e.conditions.Has(c.Handle) {
				return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownCondition, c.Handle)
			}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	acct, ok := e.state.Accounts[account]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownAccount, account.Hex())
	}
	if acct.Owner != caller {
		return Receipt{}, ErrNotAccountOwner
	}
	now := e.cfg.Now()
	if !expiry.IsZero() && !expiry.After(now) {
		return Receipt{}, ErrExpiryInPast
	}
	for i, t := range tasks {
		if _, ok := e.state.specCeil(provider.Address, SpecFor(t, nil).Hash()); !ok {
			return Receipt{}, fmt.Errorf("%w: task %d", ErrTaskSpecNotProvided, i)
		}
	}
	if !e.state.Modules[provider.Address][provider.Module] {
		return Receipt{}, fmt.Errorf("%w: %s", ErrProviderModuleNotProvided, provider.Module)
	}
	mod := e.modules[provider.Module]
	for _, t := range tasks {
		if err := moduleError(mod.IsProvided(acct, e.cfg.Address, t)); err != nil {
			return Receipt{}, err
		}
	}

	r := e.state.addReceipt(&Receipt{
		Account:     account,
		Provider:    provider,
		Tasks:       append([]Task(nil), tasks...),
		Expiry:      expiry,
		SubmittedAt: now,
		Status:      StatusSubmitted,
	})
	e.log.Info("task submitted",
		"receipt", r.ID,
		"account", account.Hex(),
		"provider", provider.Address.Hex(),
		"module", provider.Module,
		"tasks", len(tasks),
	)
	return *r.clone(), nil
}

// Receipt returns a copy of a receipt.
func (e *Engine) Receipt(id uint64) (Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.state.Receipts[id]
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %d", ErrReceiptNotFound, id)
	}
	return *r.clone(), nil
}

// Receipts returns copies of all receipts ordered by id.
func (e *Engine) Receipts() []Receipt {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Receipt, 0, len(e.state.Receipts))
	for _, r := range e.state.Receipts {
		out = append(out, *r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// View runs fn with the live state under the engine lock. fn must not
// modify the state or keep references to it.
func (e *Engine) View(fn func(s *State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.state)
}

// Quote sizes a migration against the live liquidity pool.
func (e *Engine) Quote(mode bridge.Mode, in bridge.PlanInput, newPosition bool, costPrice *big.Int) (Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return QuotePlan(e.state.Pool, mode, in, newPosition, costPrice)
}

// --- Execution ---

// CanExec reports whether executor could run the receipt now with the given
// cost budget and cost price. It returns OK or the first failing reason and
// never changes state.
func (e *Engine) CanExec(ctx context.Context, executor common.Address, id uint64, costBudget uint64, costPrice *big.Int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canExec(ctx, e.state, executor, id, costBudget, costPrice)
}

func (e *Engine) canExec(ctx context.Context, s *State, executor common.Address, id uint64, costBudget uint64, costPrice *big.Int) string {
	r, ok := s.Receipts[id]
	if !ok || r.Status != StatusSubmitted || r.Index >= len(r.Tasks) {
		return ReasonInvalidReceipt
	}
	if r.Expired(e.cfg.Now()) {
		return ReasonExpired
	}
	provider := r.Provider.Address
	if assigned, ok := s.Executors[provider]; !ok || assigned != executor {
		return ReasonExecutorNotAssigned
	}
	if !s.Stakes.IsMinStaked(executor) {
		return ReasonExecutorNotMinStaked
	}

	t := r.Current()
	ceil, ok := s.specCeil(provider, SpecFor(t, nil).Hash())
	if !ok {
		return ReasonTaskSpecNotProvided
	}
	mod, ok := e.modules[r.Provider.Module]
	if !ok || !s.Modules[provider][r.Provider.Module] {
		return ReasonProviderModuleNotProvided
	}
	if reason := mod.IsProvided(s.Accounts[r.Account], e.cfg.Address, t); reason != OK {
		return reason
	}
	if costPrice == nil || costPrice.Cmp(ceil) > 0 {
		return ReasonCostPriceAboveCeil
	}
	need := payment.MinExecProviderFunds(new(big.Int).SetUint64(costBudget), costPrice)
	if s.Ledger.Balance(provider).Cmp(need) < 0 {
		return ReasonInsufficientProviderFunds
	}

	env := condition.Env{Prices: e.prices, CostPrice: costPrice}
	for _, c := range t.Conditions {
		if reason := e.conditions.Evaluate(ctx, c.Handle, s, c.Data, env); reason != condition.OK {
			return conditionNotOk(reason)
		}
	}
	return OK
}

// Exec runs the receipt's current task. On success the executor's stake
// is credited, the receipt is consumed and the next task in the chain, if
// any, gets a fresh receipt. On failure nothing changes and the error is
// an *ExecError.
func (e *Engine) Exec(ctx context.Context, executor common.Address, id uint64, costBudget uint64, costPrice *big.Int) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if reason := e.canExec(ctx, e.state, executor, id, costBudget, costPrice); reason != OK {
		e.log.Warn("exec refused", "receipt", id, "executor", executor.Hex(), "reason", reason)
		return nil, &ExecError{Code: CodeCannotExec, Receipt: id, Reason: reason}
	}

	tx := e.state.Clone()
	r := tx.Receipts[id]
	r.Status = StatusExecuting
	provider := r.Provider.Address
	program := e.modules[r.Provider.Module].BuildProgram(tx.Accounts[r.Account], provider, r.Current())

	rt := newRuntime(tx, r.Account, e.cfg.Address, e.prices, costPrice)
	used, xerr := e.interp.run(ctx, rt, program, costBudget)
	if xerr != nil {
		xerr.Receipt = id
		e.log.Warn("exec failed", "receipt", id, "executor", executor.Hex(), "reason", xerr.Reason, "cost_used", used)
		return nil, xerr
	}

	settlement, err := tx.Ledger.Settle(provider, executor, new(big.Int).SetUint64(used), costPrice, e.cfg.SuccessSharePercent, tx.Stakes)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, payment.ErrInsufficientProviderFunds) {
			reason = ReasonInsufficientProviderFunds
		}
		e.log.Warn("exec settlement failed", "receipt", id, "provider", provider.Hex(), "error", err)
		return nil, &ExecError{Code: CodeSettlement, Receipt: id, Reason: reason, Err: err}
	}

	now := e.cfg.Now()
	r.Status = StatusConsumed
	report := &Report{
		Receipt:    id,
		Account:    r.Account,
		Provider:   provider,
		Executor:   executor,
		CostUsed:   used,
		CostPrice:  new(big.Int).Set(costPrice),
		Settlement: settlement,
		Plan:       rt.Plan(),
		ExecutedAt: now,
	}
	if r.Index+1 < len(r.Tasks) {
		next := tx.addReceipt(&Receipt{
			Account:     r.Account,
			Provider:    r.Provider,
			Index:       r.Index + 1,
			Tasks:       r.Tasks,
			Expiry:      r.Expiry,
			SubmittedAt: now,
			Status:      StatusSubmitted,
		})
		report.Next = next.ID
	}

	e.state = tx
	e.log.Info("exec succeeded",
		"receipt", id,
		"executor", executor.Hex(),
		"cost_used", used,
		"payout", settlement.Payout.String(),
		"next", report.Next,
	)
	return report, nil
}
