package route

import (
	"errors"
	"testing"
)

func TestPool_BorrowAndPayback(t *testing.T) {
	p := NewPool(testSources())

	if err := p.FlashBorrow("DAI", w("400"), 0); err != nil {
		t.Fatalf("FlashBorrow: %v", err)
	}
	if got := p.Sources()[0].Capacity; got.Cmp(w("100")) != 0 {
		t.Errorf("expected capacity 100 while borrowed, got %s", got)
	}
	if len(p.Outstanding()) != 1 {
		t.Fatalf("expected one outstanding loan, got %d", len(p.Outstanding()))
	}

	owed, err := p.FlashPayback("DAI")
	if err != nil {
		t.Fatalf("FlashPayback: %v", err)
	}
	if owed.Cmp(w("400")) != 0 {
		t.Errorf("expected to owe 400, got %s", owed)
	}
	if len(p.Outstanding()) != 0 {
		t.Error("expected no outstanding loans after payback")
	}
	if got := p.Sources()[0].Capacity; got.Cmp(w("500")) != 0 {
		t.Errorf("expected capacity restored to 500, got %s", got)
	}
}

func TestPool_BorrowBeyondCapacity(t *testing.T) {
	p := NewPool(testSources())
	if err := p.FlashBorrow("DAI", w("501"), 0); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Errorf("expected ErrInsufficientLiquidity, got %v", err)
	}
	if err := p.FlashBorrow("DAI", w("1"), 9); !errors.Is(err, ErrInvalidRoute) {
		t.Errorf("expected ErrInvalidRoute, got %v", err)
	}
	if err := p.FlashBorrow("USDC", w("1"), 0); !errors.Is(err, ErrTokenMismatch) {
		t.Errorf("expected ErrTokenMismatch, got %v", err)
	}
}

func TestPool_PaybackWithoutLoan(t *testing.T) {
	p := NewPool(testSources())
	if _, err := p.FlashPayback("DAI"); !errors.Is(err, ErrNoLoan) {
		t.Errorf("expected ErrNoLoan, got %v", err)
	}
}

func TestPool_CloneIsIndependent(t *testing.T) {
	p := NewPool(testSources())
	c := p.Clone()

	if err := c.FlashBorrow("DAI", w("300"), 0); err != nil {
		t.Fatalf("FlashBorrow on clone: %v", err)
	}
	if got := p.Sources()[0].Capacity; got.Cmp(w("500")) != 0 {
		t.Errorf("original capacity changed to %s", got)
	}
	if len(p.Outstanding()) != 0 {
		t.Error("original should have no loans")
	}
}

func TestNewPool_CopiesInput(t *testing.T) {
	sources := testSources()
	p := NewPool(sources)
	sources[0].Capacity.SetInt64(0)

	if p.Sources()[0].Capacity.Sign() == 0 {
		t.Error("pool should not alias caller capacity")
	}
}
