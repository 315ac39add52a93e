// Package venue is the in-process lending venue used by the engine: a book
// of collateralized positions per venue, the token wallets that venue
// primitives move value between, and the registry that groups books.
//
// Every primitive is atomic on its own and validates before mutating, so a
// failed call leaves the book untouched. Safety is checked against the
// market's liquidation ratio after any borrow or withdraw.
package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/debt-bridge/internal/wad"
)

var (
	ErrUnknownVenue           = errors.New("venue: unknown venue")
	ErrUnknownMarket          = errors.New("venue: unknown market")
	ErrPositionNotFound       = errors.New("venue: position not found")
	ErrNotOwner               = errors.New("venue: caller does not own position")
	ErrInvalidAmount          = errors.New("venue: amount must be positive")
	ErrInsufficientCollateral = errors.New("venue: insufficient collateral")
	ErrUnsafePosition         = errors.New("venue: position would fall below liquidation ratio")
)

// PriceSource resolves price queries to WAD prices.
type PriceSource interface {
	Price(ctx context.Context, query string) (*big.Int, error)
}

// Ref identifies a position; ids are scoped to their venue.
type Ref struct {
	Venue string `json:"venue"`
	ID    uint64 `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Venue, r.ID)
}

// Market is one collateral type on a venue.
type Market struct {
	Name             string   `json:"name"`
	Collateral       string   `json:"collateral"`
	Debt             string   `json:"debt"`
	PriceQuery       string   `json:"price_query"`
	LiquidationRatio *big.Int `json:"liquidation_ratio"`
}

// Position is a collateral/debt pair. Collateral is in native units, debt
// in borrowed-token units, both as WADs.
type Position struct {
	Venue      string         `json:"venue"`
	ID         uint64         `json:"id"`
	Market     string         `json:"market"`
	Owner      common.Address `json:"owner"`
	Collateral *big.Int       `json:"collateral"`
	Debt       *big.Int       `json:"debt"`
}

// Ref returns the position's identity.
func (p Position) Ref() Ref {
	return Ref{Venue: p.Venue, ID: p.ID}
}

// Closed reports whether the debt has been repaid in full.
func (p Position) Closed() bool {
	return p.Debt.Sign() == 0
}

func (p *Position) clone() *Position {
	c := *p
	c.Collateral = new(big.Int).Set(p.Collateral)
	c.Debt = new(big.Int).Set(p.Debt)
	return &c
}

// Book holds the positions of one venue.
type Book struct {
	name      string
	markets   map[string]Market
	positions map[uint64]*Position
	nextID    uint64
}

// NewBook creates a venue with the given markets.
func NewBook(name string, markets ...Market) *Book {
	b := &Book{
		name:      name,
		markets:   make(map[string]Market, len(markets)),
		positions: make(map[uint64]*Position),
		nextID:    1,
	}
	for _, m := range markets {
		b.markets[m.Name] = m
	}
	return b
}

// Name returns the venue name.
func (b *Book) Name() string { return b.name }

// Market looks up a market by name.
func (b *Book) Market(name string) (Market, error) {
	m, ok := b.markets[name]
	if !ok {
		return Market{}, fmt.Errorf("%w: %s:%s", ErrUnknownMarket, b.name, name)
	}
	return m, nil
}

// Open creates an empty position for owner.
func (b *Book) Open(owner common.Address, market string) (uint64, error) {
	if _, err := b.Market(market); err != nil {
		return 0, err
	}
	id := b.nextID
	b.nextID++
	b.positions[id] = &Position{
		Venue:      b.name,
		ID:         id,
		Market:     market,
		Owner:      owner,
		Collateral: new(big.Int),
		Debt:       new(big.Int),
	}
	return id, nil
}

func (b *Book) get(id uint64) (*Position, error) {
	p, ok := b.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s#%d", ErrPositionNotFound, b.name, id)
	}
	return p, nil
}

func (b *Book) owned(caller common.Address, id uint64) (*Position, error) {
	p, err := b.get(id)
	if err != nil {
		return nil, err
	}
	if p.Owner != caller {
		return nil, fmt.Errorf("%w: %s#%d", ErrNotOwner, b.name, id)
	}
	return p, nil
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Deposit adds collateral. Anyone may deposit into any position.
func (b *Book) Deposit(id uint64, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	p, err := b.get(id)
	if err != nil {
		return err
	}
	p.Collateral.Add(p.Collateral, amount)
	return nil
}

// Withdraw removes collateral; the position must stay safe.
func (b *Book) Withdraw(ctx context.Context, prices PriceSource, caller common.Address, id uint64, amount *big.Int) (*big.Int, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	p, err := b.owned(caller, id)
	if err != nil {
		return nil, err
	}
	if p.Collateral.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrInsufficientCollateral, wad.Format(p.Collateral), wad.Format(amount))
	}
	next := new(big.Int).Sub(p.Collateral, amount)
	if err := b.checkSafe(ctx, prices, p.Market, next, p.Debt); err != nil {
		return nil, err
	}
	p.Collateral = next
	return new(big.Int).Set(amount), nil
}

// Borrow draws debt; the position must stay safe.
func (b *Book) Borrow(ctx context.Context, prices PriceSource, caller common.Address, id uint64, amount *big.Int) (*big.Int, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	p, err := b.owned(caller, id)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(p.Debt, amount)
	if err := b.checkSafe(ctx, prices, p.Market, p.Collateral, next); err != nil {
		return nil, err
	}
	p.Debt = next
	return new(big.Int).Set(amount), nil
}

// Repay pays down debt, capped at what is owed, and returns the amount
// actually repaid. Anyone may repay.
func (b *Book) Repay(id uint64, amount *big.Int) (*big.Int, error) {
	if err := positive(amount); err != nil {
		return nil, err
	}
	p, err := b.get(id)
	if err != nil {
		return nil, err
	}
	repaid := new(big.Int).Set(amount)
	if repaid.Cmp(p.Debt) > 0 {
		repaid.Set(p.Debt)
	}
	p.Debt.Sub(p.Debt, repaid)
	return repaid, nil
}

// Debt returns the position's debt.
func (b *Book) Debt(id uint64) (*big.Int, error) {
	p, err := b.get(id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(p.Debt), nil
}

// Collateral returns the position's collateral.
func (b *Book) Collateral(id uint64) (*big.Int, error) {
	p, err := b.get(id)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(p.Collateral), nil
}

// Position returns a copy of the position.
func (b *Book) Position(id uint64) (Position, error) {
	p, err := b.get(id)
	if err != nil {
		return Position{}, err
	}
	return *p.clone(), nil
}

// Positions returns copies of all positions ordered by id.
func (b *Book) Positions() []Position {
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clone returns a deep copy of the book.
func (b *Book) Clone() *Book {
	c := &Book{
		name:      b.name,
		markets:   b.markets, // markets are immutable after construction
		positions: make(map[uint64]*Position, len(b.positions)),
		nextID:    b.nextID,
	}
	for id, p := range b.positions {
		c.positions[id] = p.clone()
	}
	return c
}

func (b *Book) checkSafe(ctx context.Context, prices PriceSource, market string, collateral, debt *big.Int) error {
	if debt.Sign() == 0 {
		return nil
	}
	m, err := b.Market(market)
	if err != nil {
		return err
	}
	price, err := prices.Price(ctx, m.PriceQuery)
	if err != nil {
		return err
	}
	ratio, err := wad.Div(wad.Mul(collateral, price), debt)
	if err != nil {
		return err
	}
	if ratio.Cmp(m.LiquidationRatio) < 0 {
		return fmt.Errorf("%w: %s at %s, minimum %s",
			ErrUnsafePosition, market, wad.Format(ratio), wad.Format(m.LiquidationRatio))
	}
	return nil
}
