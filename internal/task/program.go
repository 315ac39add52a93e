package task

import (
	"math/big"

	"github.com/atmx/debt-bridge/internal/bridge"
	"github.com/atmx/debt-bridge/internal/route"
	"github.com/atmx/debt-bridge/internal/venue"
)

// Slots used by the refinance programs.
const (
	SlotWithdraw Slot = iota + 1
	SlotRepay
	SlotDeposit
	SlotBorrow
	SlotFee
	SlotPosition
)

// RefinanceParams describes a migration from Source to a destination
// position. When Destination is nil a position is opened in
// DestinationMarket on DestinationVenue.
type RefinanceParams struct {
	Mode            bridge.Mode
	Source          venue.Ref
	Targets         bridge.Targets
	PriceQuery      string
	CollateralToken string
	DebtToken       string

	Destination       *venue.Ref
	DestinationVenue  string
	DestinationMarket string
}

// RefinanceActions builds the migration program: size the plan, flash
// borrow the debt to repay, close out the source slice, fund the
// destination, return the flash loan and pay the provider the fee.
func RefinanceActions(p RefinanceParams) []Action {
	src := At(p.Source)
	var dst PositionRef
	if p.Destination != nil {
		dst = At(*p.Destination)
	} else {
		dst = PositionRef{Venue: p.DestinationVenue, Slot: SlotPosition}
	}

	actions := []Action{
		Refinance{
			Source:       src,
			PlanMode:     p.Mode,
			Targets:      p.Targets,
			PriceQuery:   p.PriceQuery,
			NewPosition:  p.Destination == nil,
			WithdrawSlot: SlotWithdraw,
			RepaySlot:    SlotRepay,
			DepositSlot:  SlotDeposit,
			BorrowSlot:   SlotBorrow,
			FeeSlot:      SlotFee,
		},
		FlashBorrow{Token: p.DebtToken, Amount: FromSlot(SlotRepay), Route: RouteAuto},
		Repay{Position: src, Amount: FromSlot(SlotRepay)},
		Withdraw{Position: src, Amount: FromSlot(SlotWithdraw)},
	}
	if p.Destination == nil {
		actions = append(actions, Open{Venue: p.DestinationVenue, Market: p.DestinationMarket, SetSlot: SlotPosition})
	}
	return append(actions,
		Deposit{Position: dst, Amount: FromSlot(SlotDeposit)},
		Borrow{Position: dst, Amount: FromSlot(SlotBorrow)},
		FlashPayback{Token: p.DebtToken},
		PayProvider{Token: p.CollateralToken, Amount: FromSlot(SlotFee)},
	)
}

// LiquidateParams describes closing Source outright.
type LiquidateParams struct {
	Source          venue.Ref
	PriceQuery      string
	CollateralToken string
	DebtToken       string
}

// LiquidateActions builds the close-out program: flash borrow the whole
// debt, repay it, withdraw all collateral to the account and pay the
// provider the fee from it. The flash loan is returned from the account's
// own debt token balance, so the account must hold the debt beforehand.
func LiquidateActions(p LiquidateParams) []Action {
	src := At(p.Source)
	return []Action{
		Refinance{
			Source:       src,
			PlanMode:     bridge.Liquidate,
			PriceQuery:   p.PriceQuery,
			WithdrawSlot: SlotWithdraw,
			RepaySlot:    SlotRepay,
			DepositSlot:  SlotDeposit,
			BorrowSlot:   SlotBorrow,
			FeeSlot:      SlotFee,
		},
		FlashBorrow{Token: p.DebtToken, Amount: FromSlot(SlotRepay), Route: RouteAuto},
		Repay{Position: src, Amount: FromSlot(SlotRepay)},
		Withdraw{Position: src, Amount: FromSlot(SlotWithdraw)},
		FlashPayback{Token: p.DebtToken},
		PayProvider{Token: p.CollateralToken, Amount: FromSlot(SlotFee)},
	}
}

// Quote is a sized plan together with the liquidity route that funds it.
type Quote struct {
	Plan      *bridge.Plan `json:"plan"`
	Route     int          `json:"route"`
	Source    string       `json:"source"`
	CostUnits uint64       `json:"cost_units"`
}

// QuotePlan sizes a migration without a fee, picks the first route able to
// lend the debt to repay, then resizes the plan with that route's fixed
// cost charged at costPrice.
func QuotePlan(pool *route.Pool, mode bridge.Mode, in bridge.PlanInput, newPosition bool, costPrice *big.Int) (Quote, error) {
	in.Fee = nil
	sized, err := bridge.NewPlan(mode, in)
	if err != nil {
		return Quote{}, err
	}
	idx, err := pool.Select(sized.DebtToRepay)
	if err != nil {
		return Quote{}, err
	}
	units, err := pool.EstimatedCost(idx, newPosition)
	if err != nil {
		return Quote{}, err
	}
	in.Fee = bridge.ExecutionFee(units, costPrice)
	plan, err := bridge.NewPlan(mode, in)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Plan: plan, Route: idx, Source: pool.Sources()[idx].Name, CostUnits: units}, nil
}
