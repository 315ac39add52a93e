package route

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNoLoan is returned when paying back a token with nothing borrowed.
	ErrNoLoan = errors.New("route: no outstanding flash loan for token")

	// ErrTokenMismatch is returned when a source does not lend the token.
	ErrTokenMismatch = errors.New("route: source does not lend this token")
)

// Loan is a flash loan taken inside one execution.
type Loan struct {
	Route  int      `json:"route"`
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

// Pool tracks live capacity per source and the loans taken against it.
// A Pool is not safe for concurrent use; callers serialize access.
type Pool struct {
	sources []Source
	loans   []Loan
}

// NewPool copies the sources so later mutation does not leak back.
func NewPool(sources []Source) *Pool {
	return &Pool{sources: copySources(sources)}
}

func copySources(sources []Source) []Source {
	out := make([]Source, len(sources))
	for i, s := range sources {
		out[i] = s
		if s.Capacity != nil {
			out[i].Capacity = new(big.Int).Set(s.Capacity)
		}
	}
	return out
}

// Sources returns a snapshot of the sources with their live capacity.
func (p *Pool) Sources() []Source {
	return copySources(p.sources)
}

// Select picks the route for required against live capacity.
func (p *Pool) Select(required *big.Int) (int, error) {
	return SelectRoute(required, p.sources)
}

// EstimatedCost looks up the fixed cost of a route.
func (p *Pool) EstimatedCost(route int, newPosition bool) (uint64, error) {
	return EstimatedCost(p.sources, route, newPosition)
}

// FlashBorrow takes amount of token from the given route.
func (p *Pool) FlashBorrow(token string, amount *big.Int, route int) error {
	if route < 0 || route >= len(p.sources) {
		return fmt.Errorf("%w: %d", ErrInvalidRoute, route)
	}
	src := &p.sources[route]
	if src.Token != "" && src.Token != token {
		return fmt.Errorf("%w: %s lends %s, not %s", ErrTokenMismatch, src.Name, src.Token, token)
	}
	if src.Capacity == nil || src.Capacity.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s cannot cover %s", ErrInsufficientLiquidity, src.Name, amount)
	}
	src.Capacity.Sub(src.Capacity, amount)
	p.loans = append(p.loans, Loan{Route: route, Token: token, Amount: new(big.Int).Set(amount)})
	return nil
}

// FlashPayback settles the most recent loan in token and returns the
// amount owed, which the caller must fund.
func (p *Pool) FlashPayback(token string) (*big.Int, error) {
	for i := len(p.loans) - 1; i >= 0; i-- {
		loan := p.loans[i]
		if loan.Token != token {
			continue
		}
		src := &p.sources[loan.Route]
		src.Capacity.Add(src.Capacity, loan.Amount)
		p.loans = append(p.loans[:i], p.loans[i+1:]...)
		return new(big.Int).Set(loan.Amount), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoLoan, token)
}

// Outstanding returns the loans not yet paid back.
func (p *Pool) Outstanding() []Loan {
	out := make([]Loan, len(p.loans))
	copy(out, p.loans)
	return out
}

// Clone returns a deep copy.
func (p *Pool) Clone() *Pool {
	c := &Pool{sources: copySources(p.sources)}
	for _, l := range p.loans {
		c.loans = append(c.loans, Loan{Route: l.Route, Token: l.Token, Amount: new(big.Int).Set(l.Amount)})
	}
	return c
}
