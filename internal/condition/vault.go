package condition

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/atmx/debt-bridge/internal/route"
	"github.com/atmx/debt-bridge/internal/venue"
	"github.com/atmx/debt-bridge/internal/wad"
)

// UnsafeParams configures VaultUnsafe.
type UnsafeParams struct {
	Position   venue.Ref `json:"position"`
	PriceQuery string    `json:"price_query"`
	MinRatio   *big.Int  `json:"min_ratio"`
}

// SafeParams configures VaultSafe.
type SafeParams struct {
	Position   venue.Ref `json:"position"`
	PriceQuery string    `json:"price_query"`
	LimitRatio *big.Int  `json:"limit_ratio"`
}

// AffordableParams configures BridgeAffordable. MaxFeesInPercent is a WAD
// fraction of the debt: 0.02e18 allows fees up to 2%.
type AffordableParams struct {
	Position         venue.Ref `json:"position"`
	PriceQuery       string    `json:"price_query"`
	MaxFeesInPercent *big.Int  `json:"max_fees_in_percent"`
	NewPosition      bool      `json:"new_position"`
}

// VaultUnsafe passes while the position's ratio is strictly below MinRatio.
type VaultUnsafe struct{}

func (VaultUnsafe) Ok(ctx context.Context, view View, data []byte, env Env) string {
	var p UnsafeParams
	if err := json.Unmarshal(data, &p); err != nil || p.MinRatio == nil {
		return ReasonInvalidData
	}
	ratio, reason := currentRatio(ctx, view, env, p.Position, p.PriceQuery)
	if reason != "" {
		return reason
	}
	if ratio.Cmp(p.MinRatio) < 0 {
		return OK
	}
	return ReasonPositionNotUnsafe
}

// VaultSafe passes while the position's ratio is strictly above LimitRatio.
type VaultSafe struct{}

func (VaultSafe) Ok(ctx context.Context, view View, data []byte, env Env) string {
	var p SafeParams
	if err := json.Unmarshal(data, &p); err != nil || p.LimitRatio == nil {
		return ReasonInvalidData
	}
	ratio, reason := currentRatio(ctx, view, env, p.Position, p.PriceQuery)
	if reason != "" {
		return reason
	}
	if ratio.Cmp(p.LimitRatio) > 0 {
		return OK
	}
	return ReasonPositionNotSafe
}

// BridgeAffordable passes when the fixed cost of the route that would fund
// the migration, valued in debt units, is at most MaxFeesInPercent of the
// position's debt.
type BridgeAffordable struct{}

func (BridgeAffordable) Ok(ctx context.Context, view View, data []byte, env Env) string {
	var p AffordableParams
	if err := json.Unmarshal(data, &p); err != nil || p.MaxFeesInPercent == nil {
		return ReasonInvalidData
	}
	if env.CostPrice == nil {
		return ReasonCostPriceMissing
	}
	pos, err := view.Position(p.Position)
	if err != nil {
		return ReasonPositionNotFound
	}
	if pos.Debt.Sign() == 0 {
		return ReasonPositionHasNoDebt
	}
	price, err := env.Prices.Price(ctx, p.PriceQuery)
	if err != nil {
		return ReasonPriceUnavailable
	}

	sources := view.Sources()
	idx, err := route.SelectRoute(pos.Debt, sources)
	if err != nil {
		return ReasonIlliquid
	}
	units, err := route.EstimatedCost(sources, idx, p.NewPosition)
	if err != nil {
		return ReasonIlliquid
	}

	cost := new(big.Int).Mul(new(big.Int).SetUint64(units), env.CostPrice)
	fraction, err := wad.Div(wad.Mul(cost, price), pos.Debt)
	if err != nil {
		return ReasonPositionHasNoDebt
	}
	if fraction.Cmp(p.MaxFeesInPercent) <= 0 {
		return OK
	}
	return ReasonTooExpensive
}

// currentRatio returns collateral·price/debt, or a reason when it cannot be
// computed.
func currentRatio(ctx context.Context, view View, env Env, ref venue.Ref, query string) (*big.Int, string) {
	pos, err := view.Position(ref)
	if err != nil {
		return nil, ReasonPositionNotFound
	}
	if pos.Debt.Sign() == 0 {
		return nil, ReasonPositionHasNoDebt
	}
	price, err := env.Prices.Price(ctx, query)
	if err != nil {
		return nil, ReasonPriceUnavailable
	}
	ratio, err := wad.Div(wad.Mul(pos.Collateral, price), pos.Debt)
	if err != nil {
		return nil, ReasonPositionHasNoDebt
	}
	return ratio, ""
}
