package wad

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"
)

// w is a test helper for WAD literals written as decimal strings.
func w(s string) *big.Int {
	return MustParse(s)
}

func n(s string) *big.Int {
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer literal " + s)
	}
	return x
}

// --- Mul ---

func TestMul_Identity(t *testing.T) {
	got := Mul(w("123.456"), One())
	if got.Cmp(w("123.456")) != 0 {
		t.Errorf("expected 123.456, got %s", Format(got))
	}
}

func TestMul_RatioProduct(t *testing.T) {
	got := Mul(w("3"), w("1.5"))
	if got.Cmp(n("4500000000000000000")) != 0 {
		t.Errorf("expected 4.5e18, got %s", got)
	}
}

func TestMul_RoundsHalfUp(t *testing.T) {
	// 0.5e-18 * 1 rounds up to 1 unit; 0.4999.. rounds down.
	if got := Mul(big.NewInt(500000000000000000), big.NewInt(1)); got.Int64() != 1 {
		t.Errorf("expected half to round up to 1, got %s", got)
	}
	if got := Mul(big.NewInt(499999999999999999), big.NewInt(1)); got.Int64() != 0 {
		t.Errorf("expected below-half to round down to 0, got %s", got)
	}
	if got := Mul(big.NewInt(1500000000000000000), big.NewInt(1)); got.Int64() != 2 {
		t.Errorf("expected 1.5 units to round to 2, got %s", got)
	}
}

// --- Div ---

func TestDiv_Basic(t *testing.T) {
	got, err := Div(w("4000"), w("1000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(w("4")) != 0 {
		t.Errorf("expected 4, got %s", Format(got))
	}
}

func TestDiv_RoundsHalfUp(t *testing.T) {
	third, _ := Div(One(), w("3"))
	if third.Cmp(n("333333333333333333")) != 0 {
		t.Errorf("1/3: expected 333333333333333333, got %s", third)
	}
	twoThirds, _ := Div(w("2"), w("3"))
	if twoThirds.Cmp(n("666666666666666667")) != 0 {
		t.Errorf("2/3: expected 666666666666666667, got %s", twoThirds)
	}
}

func TestDiv_ByZero(t *testing.T) {
	_, err := Div(One(), new(big.Int))
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestDiv_NegativeOperands(t *testing.T) {
	// Both negative: the bridge numerator and denominator when rB < rA.
	got, err := Div(w("-300"), w("-1.5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(w("200")) != 0 {
		t.Errorf("expected 200, got %s", Format(got))
	}
}

// div(mul(a,b),b) must come back to a within one rounding unit.
func TestMulDiv_RoundTrip(t *testing.T) {
	cases := [][2]*big.Int{
		{w("123456789"), n("2333333333333333333")},
		{One(), big.NewInt(3)},
		{big.NewInt(5), One()},
		{w("-7"), w("3")},
		{w("250"), w("0.000000001")},
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		a := new(big.Int).Mul(big.NewInt(rng.Int63n(1_000_000)+1), big.NewInt(rng.Int63n(1e15)+1))
		b := new(big.Int).Mul(big.NewInt(rng.Int63n(10_000)+1), big.NewInt(rng.Int63n(1e15)+1))
		cases = append(cases, [2]*big.Int{a, b})
	}

	for _, c := range cases {
		a, b := c[0], c[1]
		got, err := Div(Mul(a, b), b)
		if err != nil {
			t.Fatalf("unexpected error for a=%s b=%s: %v", a, b, err)
		}
		diff := new(big.Int).Sub(got, a)
		if diff.CmpAbs(big.NewInt(1)) > 0 && b.Cmp(One()) >= 0 {
			t.Errorf("round trip drifted by %s for a=%s b=%s", diff, a, b)
		}
	}
}

// --- Decimal conversion ---

func TestParse(t *testing.T) {
	got, err := Parse("1.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(n("1500000000000000000")) != 0 {
		t.Errorf("expected 1.5e18, got %s", got)
	}

	if _, err := Parse("one and a half"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(n("33333333333333333400")); got != "33.3333333333333334" {
		t.Errorf("expected 33.3333333333333334, got %s", got)
	}
	if got := Format(nil); got != "0" {
		t.Errorf("expected 0 for nil, got %s", got)
	}
}

func TestFromInt(t *testing.T) {
	if FromInt(250).Cmp(w("250")) != 0 {
		t.Error("FromInt(250) should equal Parse(\"250\")")
	}
}
