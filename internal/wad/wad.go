// Package wad implements fixed-point arithmetic on integers scaled by 10^18.
//
// Every ratio, price and amount that flows through the bridge math is a WAD.
// Mul and Div round half-up by adding half the divisor before an integer
// division that truncates toward zero, so results are reproducible bit for
// bit. Values are signed: intermediate bridge terms can go negative.
//
// Human-readable amounts enter and leave the package as shopspring/decimal
// values; nothing in here touches float64.
package wad

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by a WAD.
const Decimals = 18

var (
	// ErrDivisionByZero is returned by Div when the divisor is zero.
	ErrDivisionByZero = errors.New("wad: division by zero")

	// ErrInvalidAmount is returned when a decimal string cannot be parsed.
	ErrInvalidAmount = errors.New("wad: invalid amount")

	one  = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	half = new(big.Int).Quo(one, big.NewInt(2))
)

// One returns a fresh copy of 1.0 (10^18).
func One() *big.Int {
	return new(big.Int).Set(one)
}

// FromInt scales a whole number into a WAD.
func FromInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), one)
}

// Mul returns round(a*b / WAD).
func Mul(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	out.Add(out, half)
	return out.Quo(out, one)
}

// Div returns round(a*WAD / b).
func Div(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	out := new(big.Int).Mul(a, one)
	out.Add(out, new(big.Int).Quo(b, big.NewInt(2)))
	return out.Quo(out, b), nil
}

// FromDecimal converts a decimal into a WAD, truncating digits beyond the
// 18th fractional place.
func FromDecimal(d decimal.Decimal) *big.Int {
	return d.Shift(Decimals).BigInt()
}

// ToDecimal converts a WAD back into a decimal with 18 fractional digits.
func ToDecimal(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -Decimals)
}

// Parse reads a human-readable decimal string such as "1.5" into a WAD.
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse for constants and tests; it panics on bad input.
func MustParse(s string) *big.Int {
	x, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return x
}

// Format renders a WAD as a decimal string without trailing zeros.
func Format(x *big.Int) string {
	return ToDecimal(x).String()
}

// Copy returns an independent copy of x, treating nil as zero.
func Copy(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
