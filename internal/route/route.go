// Package route picks the liquidity source that funds the temporary borrow
// in the middle of a migration, and models that source's flash liquidity.
//
// Sources are kept in ascending cost order. Selection walks them in that
// order and takes the first one with enough capacity; there is no scoring
// beyond that, so the same inputs always give the same route.
package route

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInsufficientLiquidity is returned when no source can cover the
	// required amount.
	ErrInsufficientLiquidity = errors.New("route: insufficient liquidity")

	// ErrInvalidRoute is returned for an out-of-range route index.
	ErrInvalidRoute = errors.New("route: invalid route index")
)

// Cost is the calibrated fixed execution cost of a route, in abstract
// cost units. Opening a destination position is a heavier one-time path.
type Cost struct {
	Existing    uint64 `json:"existing" yaml:"existing" toml:"existing"`
	NewPosition uint64 `json:"new_position" yaml:"new_position" toml:"new_position"`
}

// For returns the entry matching whether a destination must be opened.
func (c Cost) For(newPosition bool) uint64 {
	if newPosition {
		return c.NewPosition
	}
	return c.Existing
}

// Source is one funding venue for flash liquidity.
type Source struct {
	Name     string   `json:"name"`
	Token    string   `json:"token"`
	Capacity *big.Int `json:"capacity"`
	Cost     Cost     `json:"cost"`
}

// DefaultCosts are the fixed-cost entries for the four stock sources, in
// priority order.
var DefaultCosts = []struct {
	Name string
	Cost Cost
}{
	{"dydx", Cost{Existing: 2_519_000, NewPosition: 2_984_000}},
	{"maker", Cost{Existing: 3_140_500, NewPosition: 3_605_500}},
	{"compound", Cost{Existing: 3_971_000, NewPosition: 4_436_000}},
	{"aave", Cost{Existing: 4_345_000, NewPosition: 4_810_000}},
}

// SelectRoute returns the index of the first source whose capacity covers
// required.
func SelectRoute(required *big.Int, sources []Source) (int, error) {
	for i, s := range sources {
		if s.Capacity != nil && s.Capacity.Cmp(required) >= 0 {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: need %s across %d sources", ErrInsufficientLiquidity, required, len(sources))
}

// EstimatedCost returns the fixed-cost entry for a route.
func EstimatedCost(sources []Source, route int, newPosition bool) (uint64, error) {
	if route < 0 || route >= len(sources) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRoute, route)
	}
	return sources[route].Cost.For(newPosition), nil
}
