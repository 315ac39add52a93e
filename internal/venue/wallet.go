package venue

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/debt-bridge/internal/wad"
)

var ErrInsufficientBalance = errors.New("venue: insufficient token balance")

// Wallets holds free token balances per address.
type Wallets struct {
	balances map[common.Address]map[string]*big.Int
}

// NewWallets creates empty wallets.
func NewWallets() *Wallets {
	return &Wallets{balances: make(map[common.Address]map[string]*big.Int)}
}

// Balance returns a copy of owner's balance in token.
func (w *Wallets) Balance(owner common.Address, token string) *big.Int {
	if b, ok := w.balances[owner][token]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Credit adds amount to owner's balance.
func (w *Wallets) Credit(owner common.Address, token string, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	tokens, ok := w.balances[owner]
	if !ok {
		tokens = make(map[string]*big.Int)
		w.balances[owner] = tokens
	}
	b, ok := tokens[token]
	if !ok {
		b = new(big.Int)
		tokens[token] = b
	}
	b.Add(b, amount)
}

// Debit removes amount from owner's balance.
func (w *Wallets) Debit(owner common.Address, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	have := w.Balance(owner, token)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s %s, needs %s",
			ErrInsufficientBalance, owner.Hex(), wad.Format(have), token, wad.Format(amount))
	}
	if amount.Sign() > 0 {
		w.balances[owner][token].Sub(w.balances[owner][token], amount)
	}
	return nil
}

// Transfer moves amount of token between two addresses.
func (w *Wallets) Transfer(from, to common.Address, token string, amount *big.Int) error {
	if err := w.Debit(from, token, amount); err != nil {
		return err
	}
	w.Credit(to, token, amount)
	return nil
}

// Clone returns a deep copy.
func (w *Wallets) Clone() *Wallets {
	c := NewWallets()
	for owner, tokens := range w.balances {
		ct := make(map[string]*big.Int, len(tokens))
		for token, b := range tokens {
			ct[token] = new(big.Int).Set(b)
		}
		c.balances[owner] = ct
	}
	return c
}
