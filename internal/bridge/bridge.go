// Package bridge sizes debt migrations between two collateralized positions.
//
// Given the source position's collateral and debt, the collateral price and
// two target collateralization ratios, the closed form below finds the
// collateral to withdraw and the debt to repay so that both legs land on
// their targets:
//
//	raw                  = (rA·rB·debt − rA·pricedCollateral) / (rB − rA)
//	collateralToWithdraw = (pricedCollateral − raw) / collateralPrice
//	debtToRepay          = debt − (1/rA)·raw
//
// Every product and quotient goes through package wad so the results are
// reproducible to the last unit. The package is stateless.
package bridge

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/atmx/debt-bridge/internal/wad"
)

var (
	// ErrEqualRatios is returned when source and destination targets are
	// equal; the closed form divides by their difference.
	ErrEqualRatios = errors.New("bridge: source and destination ratios must differ")

	// ErrInvalidRatio is returned for a missing or non-positive ratio.
	ErrInvalidRatio = errors.New("bridge: ratio must be positive")

	// ErrInvalidPrice is returned for a missing or non-positive price.
	ErrInvalidPrice = errors.New("bridge: collateral price must be positive")

	// ErrNegativeAmount is returned when collateral or debt is negative.
	ErrNegativeAmount = errors.New("bridge: amounts must not be negative")

	// ErrInfeasibleTargets is returned when the targets cannot both be met
	// from the current position.
	ErrInfeasibleTargets = errors.New("bridge: targets are not reachable from this position")

	// ErrFeeExceedsCollateral is returned when the execution fee would eat
	// all of the collateral being moved.
	ErrFeeExceedsCollateral = errors.New("bridge: execution fee exceeds moved collateral")
)

// Targets holds the minimum collateralization ratios for both legs, as WADs.
type Targets struct {
	Source      *big.Int `json:"source"`
	Destination *big.Int `json:"destination"`
}

// Validate rejects missing, non-positive and equal ratios.
func (t Targets) Validate() error {
	return validateRatios(t.Source, t.Destination)
}

func validateRatios(rA, rB *big.Int) error {
	if rA == nil || rB == nil || rA.Sign() <= 0 || rB.Sign() <= 0 {
		return ErrInvalidRatio
	}
	if rA.Cmp(rB) == 0 {
		return ErrEqualRatios
	}
	return nil
}

// raw is the priced collateral that stays on the source leg.
func raw(rA, rB, pricedCollateral, debt *big.Int) (*big.Int, error) {
	num := new(big.Int).Sub(
		wad.Mul(wad.Mul(rA, rB), debt),
		wad.Mul(rA, pricedCollateral),
	)
	return wad.Div(num, new(big.Int).Sub(rB, rA))
}

// CollateralToWithdraw returns the collateral, in native units, to move off
// the source leg. pricedCollateral is the source collateral valued in debt
// units.
func CollateralToWithdraw(rA, rB, collateralPrice, pricedCollateral, debt *big.Int) (*big.Int, error) {
	if err := validateRatios(rA, rB); err != nil {
		return nil, err
	}
	if collateralPrice == nil || collateralPrice.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	if debt.Sign() < 0 || pricedCollateral.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if debt.Sign() == 0 {
		return new(big.Int), nil
	}

	r, err := raw(rA, rB, pricedCollateral, debt)
	if err != nil {
		return nil, err
	}
	out, err := wad.Div(new(big.Int).Sub(pricedCollateral, r), collateralPrice)
	if err != nil {
		return nil, err
	}
	if out.Sign() < 0 {
		return nil, fmt.Errorf("%w: collateral to withdraw is %s", ErrInfeasibleTargets, wad.Format(out))
	}
	return out, nil
}

// DebtToRepay returns the debt, in borrowed-token units, to move off the
// source leg.
func DebtToRepay(rA, rB, pricedCollateral, debt *big.Int) (*big.Int, error) {
	if err := validateRatios(rA, rB); err != nil {
		return nil, err
	}
	if debt.Sign() < 0 || pricedCollateral.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if debt.Sign() == 0 {
		return new(big.Int), nil
	}

	r, err := raw(rA, rB, pricedCollateral, debt)
	if err != nil {
		return nil, err
	}
	inv, err := wad.Div(wad.One(), rA)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Sub(debt, wad.Mul(inv, r))
	if out.Sign() < 0 {
		return nil, fmt.Errorf("%w: debt to repay is %s", ErrInfeasibleTargets, wad.Format(out))
	}
	return out, nil
}

// ExecutionFee converts a fixed cost estimate into native collateral units.
func ExecutionFee(costUnits uint64, costPrice *big.Int) *big.Int {
	if costPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(costUnits), costPrice)
}
