package bridge

import (
	"fmt"
	"math/big"

	"github.com/atmx/debt-bridge/internal/wad"
)

// Mode selects how much of the source position moves.
type Mode uint8

const (
	// Partial moves only the slice that puts both legs on their targets.
	Partial Mode = iota + 1
	// Full moves all debt and all collateral.
	Full
	// Liquidate repays all debt and returns all collateral, less the fee,
	// to the owner. Nothing is redeposited.
	Liquidate
)

func (m Mode) String() string {
	switch m {
	case Partial:
		return "partial"
	case Full:
		return "full"
	case Liquidate:
		return "liquidate"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode accepts "partial", "full" or "liquidate".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "partial":
		return Partial, nil
	case "full":
		return Full, nil
	case "liquidate":
		return Liquidate, nil
	}
	return 0, fmt.Errorf("bridge: unknown mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PlanInput describes the source position and the migration parameters.
// Collateral is in native units; Debt and CollateralPrice are WADs in debt
// token units. Fee is charged in native collateral units.
type PlanInput struct {
	Collateral      *big.Int
	Debt            *big.Int
	CollateralPrice *big.Int
	Targets         Targets
	Fee             *big.Int
}

// Plan is the sized migration. CollateralToDeposit is what reaches the
// destination after the fee is taken out of the moved collateral.
type Plan struct {
	Mode                 Mode     `json:"mode"`
	CollateralToWithdraw *big.Int `json:"collateral_to_withdraw"`
	DebtToRepay          *big.Int `json:"debt_to_repay"`
	CollateralToDeposit  *big.Int `json:"collateral_to_deposit"`
	DebtToBorrow         *big.Int `json:"debt_to_borrow"`
	Fee                  *big.Int `json:"fee"`
}

func emptyPlan(mode Mode) *Plan {
	return &Plan{
		Mode:                 mode,
		CollateralToWithdraw: new(big.Int),
		DebtToRepay:          new(big.Int),
		CollateralToDeposit:  new(big.Int),
		DebtToBorrow:         new(big.Int),
		Fee:                  new(big.Int),
	}
}

func (in PlanInput) validate() error {
	if err := in.Targets.Validate(); err != nil {
		return err
	}
	if in.CollateralPrice == nil || in.CollateralPrice.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if in.Collateral == nil || in.Debt == nil || in.Collateral.Sign() < 0 || in.Debt.Sign() < 0 {
		return ErrNegativeAmount
	}
	if in.Fee != nil && in.Fee.Sign() < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// PartialPlan sizes a partial migration from the closed form.
func PartialPlan(in PlanInput) (*Plan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Debt.Sign() == 0 {
		return emptyPlan(Partial), nil
	}

	priced := wad.Mul(in.Collateral, in.CollateralPrice)
	cw, err := CollateralToWithdraw(in.Targets.Source, in.Targets.Destination, in.CollateralPrice, priced, in.Debt)
	if err != nil {
		return nil, err
	}
	dr, err := DebtToRepay(in.Targets.Source, in.Targets.Destination, priced, in.Debt)
	if err != nil {
		return nil, err
	}
	// Already on target: nothing moves and no fee is due.
	if cw.Sign() == 0 {
		return emptyPlan(Partial), nil
	}
	if cw.Cmp(in.Collateral) > 0 || dr.Cmp(in.Debt) > 0 {
		return nil, fmt.Errorf("%w: needs %s collateral and %s debt",
			ErrInfeasibleTargets, wad.Format(cw), wad.Format(dr))
	}

	return withFee(&Plan{
		Mode:                 Partial,
		CollateralToWithdraw: cw,
		DebtToRepay:          dr,
		DebtToBorrow:         new(big.Int).Set(dr),
	}, in.Fee)
}

// FullPlan moves all debt and all collateral. The destination target is
// checked against what would be deposited after the fee.
func FullPlan(in PlanInput) (*Plan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Debt.Sign() == 0 {
		return emptyPlan(Full), nil
	}

	p, err := withFee(&Plan{
		Mode:                 Full,
		CollateralToWithdraw: new(big.Int).Set(in.Collateral),
		DebtToRepay:          new(big.Int).Set(in.Debt),
		DebtToBorrow:         new(big.Int).Set(in.Debt),
	}, in.Fee)
	if err != nil {
		return nil, err
	}

	ratio, err := wad.Div(wad.Mul(p.CollateralToDeposit, in.CollateralPrice), p.DebtToBorrow)
	if err != nil {
		return nil, err
	}
	if ratio.Cmp(in.Targets.Destination) < 0 {
		return nil, fmt.Errorf("%w: destination ratio %s below %s",
			ErrInfeasibleTargets, wad.Format(ratio), wad.Format(in.Targets.Destination))
	}
	return p, nil
}

// LiquidationPlan closes the position: all debt is repaid and all
// collateral withdrawn. CollateralToDeposit is what the owner keeps after
// the fee. Ratio targets are not used.
func LiquidationPlan(in PlanInput) (*Plan, error) {
	if in.CollateralPrice == nil || in.CollateralPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if in.Collateral == nil || in.Debt == nil || in.Collateral.Sign() < 0 || in.Debt.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if in.Fee != nil && in.Fee.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if in.Debt.Sign() == 0 && in.Collateral.Sign() == 0 {
		return emptyPlan(Liquidate), nil
	}
	return withFee(&Plan{
		Mode:                 Liquidate,
		CollateralToWithdraw: new(big.Int).Set(in.Collateral),
		DebtToRepay:          new(big.Int).Set(in.Debt),
		DebtToBorrow:         new(big.Int),
	}, in.Fee)
}

// NewPlan dispatches on mode.
func NewPlan(mode Mode, in PlanInput) (*Plan, error) {
	switch mode {
	case Partial:
		return PartialPlan(in)
	case Full:
		return FullPlan(in)
	case Liquidate:
		return LiquidationPlan(in)
	}
	return nil, fmt.Errorf("bridge: unknown mode %d", mode)
}

func withFee(p *Plan, fee *big.Int) (*Plan, error) {
	p.Fee = wad.Copy(fee)
	if p.Fee.Cmp(p.CollateralToWithdraw) >= 0 {
		return nil, fmt.Errorf("%w: fee %s, moved %s",
			ErrFeeExceedsCollateral, wad.Format(p.Fee), wad.Format(p.CollateralToWithdraw))
	}
	p.CollateralToDeposit = new(big.Int).Sub(p.CollateralToWithdraw, p.Fee)
	return p, nil
}
