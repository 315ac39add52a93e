package task

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/debt-bridge/internal/bridge"
	"github.com/atmx/debt-bridge/internal/payment"
	"github.com/atmx/debt-bridge/internal/venue"
)

// Meter prices actions in cost units. An execution is charged Base plus
// the cost of every action it starts.
type Meter struct {
	Base    uint64          `json:"base" yaml:"base" toml:"base"`
	Actions map[Kind]uint64 `json:"actions" yaml:"actions" toml:"actions"`
}

// DefaultMeter is calibrated so that a full migration into a new position
// costs 2 265 000 units.
func DefaultMeter() Meter {
	return Meter{
		Base: 80_000,
		Actions: map[Kind]uint64{
			KindRefinance:    120_000,
			KindFlashBorrow:  200_000,
			KindRepay:        300_000,
			KindWithdraw:     300_000,
			KindOpen:         465_000,
			KindDeposit:      250_000,
			KindBorrow:       400_000,
			KindFlashPayback: 100_000,
			KindPayProvider:  50_000,
			KindCustom:       50_000,
		},
	}
}

// Cost returns the units charged for one action of kind k.
func (m Meter) Cost(k Kind) uint64 { return m.Actions[k] }

// Estimate returns what a program would be charged if it ran to the end.
func (m Meter) Estimate(program []Action) uint64 {
	total := m.Base
	for _, a := range program {
		total += m.Cost(a.Kind())
	}
	return total
}

// CustomFunc implements a Custom action. It may change rt.State freely;
// the change is discarded if the execution fails.
type CustomFunc func(ctx context.Context, rt *Runtime, data json.RawMessage) error

// Runtime is the context of one execution.
type Runtime struct {
	State     *State
	Account   common.Address
	Engine    common.Address
	Prices    venue.PriceSource
	CostPrice *big.Int

	// Actor is who the current action runs as.
	Actor common.Address

	slots map[Slot]*big.Int
	plan  *bridge.Plan
}

func newRuntime(s *State, account, engine common.Address, prices venue.PriceSource, costPrice *big.Int) *Runtime {
	return &Runtime{
		State:     s,
		Account:   account,
		Engine:    engine,
		Prices:    prices,
		CostPrice: costPrice,
		slots:     make(map[Slot]*big.Int),
	}
}

// Get reads a slot.
func (rt *Runtime) Get(s Slot) (*big.Int, error) {
	v, ok := rt.slots[s]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSlotUnset, s)
	}
	return new(big.Int).Set(v), nil
}

// Set writes a slot. Slot 0 is discarded.
func (rt *Runtime) Set(s Slot, v *big.Int) {
	if s == 0 {
		return
	}
	rt.slots[s] = new(big.Int).Set(v)
}

// Plan is the last plan a Refinance produced, or nil.
func (rt *Runtime) Plan() *bridge.Plan { return rt.plan }

func (rt *Runtime) operand(o Operand) (*big.Int, error) {
	if o.Slot != 0 {
		return rt.Get(o.Slot)
	}
	if o.Value == nil {
		return nil, ErrInvalidOperand
	}
	return new(big.Int).Set(o.Value), nil
}

func (rt *Runtime) position(ref PositionRef) (*venue.Book, venue.Market, uint64, error) {
	book, err := rt.State.Venues.Book(ref.Venue)
	if err != nil {
		return nil, venue.Market{}, 0, err
	}
	id := ref.ID
	if ref.Slot != 0 {
		v, err := rt.Get(ref.Slot)
		if err != nil {
			return nil, venue.Market{}, 0, err
		}
		id = v.Uint64()
	}
	pos, err := book.Position(id)
	if err != nil {
		return nil, venue.Market{}, 0, err
	}
	m, err := book.Market(pos.Market)
	if err != nil {
		return nil, venue.Market{}, 0, err
	}
	return book, m, id, nil
}

type interpreter struct {
	meter   Meter
	customs map[string]CustomFunc
}

// run executes program in order. It stops at the first failure and returns
// the units charged so far.
func (in *interpreter) run(ctx context.Context, rt *Runtime, program []Action, budget uint64) (uint64, *ExecError) {
	used := in.meter.Base
	if used > budget {
		return used, &ExecError{Code: CodeOutOfBudget, Reason: ReasonOutOfCostBudget}
	}
	for i, a := range program {
		used += in.meter.Cost(a.Kind())
		if used > budget {
			return used, &ExecError{Code: CodeOutOfBudget, Reason: ReasonOutOfCostBudget}
		}
		if err := ctx.Err(); err != nil {
			return used, &ExecError{Code: CodeActionFailed, Reason: actionFailed(i, a.Kind(), err), Err: err}
		}
		rt.Actor = rt.Account
		if a.Via() == ModeCall {
			rt.Actor = rt.Engine
		}
		if err := in.step(ctx, rt, a); err != nil {
			return used, &ExecError{Code: CodeActionFailed, Reason: actionFailed(i, a.Kind(), err), Err: err}
		}
	}
	if loans := rt.State.Pool.Outstanding(); len(loans) > 0 {
		return used, &ExecError{
			Code:   CodeFlashLoan,
			Reason: ReasonFlashLoanNotRepaid,
			Err:    fmt.Errorf("task: %d flash loan(s) outstanding, first %s %s", len(loans), loans[0].Amount, loans[0].Token),
		}
	}
	return used, nil
}

func (in *interpreter) step(ctx context.Context, rt *Runtime, a Action) error {
	s := rt.State
	switch a := a.(type) {
	case Open:
		book, err := s.Venues.Book(a.Venue)
		if err != nil {
			return err
		}
		id, err := book.Open(rt.Actor, a.Market)
		if err != nil {
			return err
		}
		rt.Set(a.SetSlot, new(big.Int).SetUint64(id))
		return nil

	case Deposit:
		book, m, id, err := rt.position(a.Position)
		if err != nil {
			return err
		}
		amount, err := rt.operand(a.Amount)
		if err != nil {
			return err
		}
		if err := s.Wallets.Debit(rt.Actor, m.Collateral, amount); err != nil {
			return err
		}
		return book.Deposit(id, amount)

	case Withdraw:
		book, m, id, err := rt.position(a.Position)
		if err != nil {
			return err
		}
		var amount *big.Int
		if a.All {
			amount, err = book.Collateral(id)
		} else {
			amount, err = rt.operand(a.Amount)
		}
		if err != nil {
			return err
		}
		out, err := book.Withdraw(ctx, rt.Prices, rt.Actor, id, amount)
		if err != nil {
			return err
		}
		s.Wallets.Credit(rt.Actor, m.Collateral, out)
		rt.Set(a.SetSlot, out)
		return nil

	case Borrow:
		book, m, id, err := rt.position(a.Position)
		if err != nil {
			return err
		}
		amount, err := rt.operand(a.Amount)
		if err != nil {
			return err
		}
		out, err := book.Borrow(ctx, rt.Prices, rt.Actor, id, amount)
		if err != nil {
			return err
		}
		s.Wallets.Credit(rt.Actor, m.Debt, out)
		rt.Set(a.SetSlot, out)
		return nil

	case Repay:
		book, m, id, err := rt.position(a.Position)
		if err != nil {
			return err
		}
		var amount *big.Int
		if a.All {
			amount, err = book.Debt(id)
		} else {
			amount, err = rt.operand(a.Amount)
		}
		if err != nil {
			return err
		}
		repaid, err := book.Repay(id, amount)
		if err != nil {
			return err
		}
		if err := s.Wallets.Debit(rt.Actor, m.Debt, repaid); err != nil {
			return err
		}
		rt.Set(a.SetSlot, repaid)
		return nil

	case FlashBorrow:
		amount, err := rt.operand(a.Amount)
		if err != nil {
			return err
		}
		route := a.Route
		if route == RouteAuto {
			if route, err = s.Pool.Select(amount); err != nil {
				return err
			}
		}
		if err := s.Pool.FlashBorrow(a.Token, amount, route); err != nil {
			return err
		}
		s.Wallets.Credit(rt.Account, a.Token, amount)
		return nil

	case FlashPayback:
		owed, err := s.Pool.FlashPayback(a.Token)
		if err != nil {
			return err
		}
		return s.Wallets.Debit(rt.Account, a.Token, owed)

	case PayProvider:
		amount, err := rt.operand(a.Amount)
		if err != nil {
			return err
		}
		return payment.PayProvider(s.Wallets, rt.Actor, a.Recipient, a.Token, amount)

	case Refinance:
		return in.refinance(ctx, rt, a)

	case Custom:
		fn, ok := in.customs[a.Handle]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCustom, a.Handle)
		}
		return fn(ctx, rt, a.Data)
	}
	return fmt.Errorf("%w: %T", ErrUnknownActionKind, a)
}

// refinance sizes the migration of the source position. The route is
// chosen for the debt that will actually be flash borrowed, and its fixed
// cost at the executor's cost price becomes the fee.
func (in *interpreter) refinance(ctx context.Context, rt *Runtime, a Refinance) error {
	_, m, id, err := rt.position(a.Source)
	if err != nil {
		return err
	}
	pos, err := rt.State.Venues.Position(venue.Ref{Venue: a.Source.Venue, ID: id})
	if err != nil {
		return err
	}
	query := a.PriceQuery
	if query == "" {
		query = m.PriceQuery
	}
	price, err := rt.Prices.Price(ctx, query)
	if err != nil {
		return err
	}

	q, err := QuotePlan(rt.State.Pool, a.PlanMode, bridge.PlanInput{
		Collateral:      pos.Collateral,
		Debt:            pos.Debt,
		CollateralPrice: price,
		Targets:         a.Targets,
	}, a.NewPosition, rt.CostPrice)
	if err != nil {
		return err
	}
	plan := q.Plan
	rt.Set(a.WithdrawSlot, plan.CollateralToWithdraw)
	rt.Set(a.RepaySlot, plan.DebtToRepay)
	rt.Set(a.DepositSlot, plan.CollateralToDeposit)
	rt.Set(a.BorrowSlot, plan.DebtToBorrow)
	rt.Set(a.FeeSlot, plan.Fee)
	rt.plan = plan
	return nil
}
