// Package payment keeps the provider-funds ledger, the executor stake
// registry and the direct owner-to-provider fee payment.
//
// Providers pre-fund the ledger; every successful execution settles the
// executor's compensation out of it. The engine owns one Ledger and one
// Stakes value and serializes access to them; neither type locks.
package payment

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientProviderFunds is returned when a provider's ledger
	// balance cannot cover a payout.
	ErrInsufficientProviderFunds = errors.New("payment: insufficient provider funds")

	// ErrInvalidRecipient is returned for a zero recipient address.
	ErrInvalidRecipient = errors.New("payment: invalid recipient")

	// ErrInvalidAmount is returned for nil or non-positive amounts.
	ErrInvalidAmount = errors.New("payment: amount must be positive")

	// ErrInvalidShare is returned for a success share above 100 percent.
	ErrInvalidShare = errors.New("payment: success share must be between 0 and 100")
)

// Settlement is the outcome of one settle call.
type Settlement struct {
	Payout        *big.Int `json:"payout"`
	ExecutorShare *big.Int `json:"executor_share"`
	PlatformShare *big.Int `json:"platform_share"`
}

// Ledger holds pre-funded provider balances and what the platform has
// retained from settlements.
type Ledger struct {
	funds    map[common.Address]*big.Int
	retained *big.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		funds:    make(map[common.Address]*big.Int),
		retained: new(big.Int),
	}
}

// ProvideFunds credits a provider.
func (l *Ledger) ProvideFunds(provider common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if provider == (common.Address{}) {
		return ErrInvalidRecipient
	}
	b, ok := l.funds[provider]
	if !ok {
		b = new(big.Int)
		l.funds[provider] = b
	}
	b.Add(b, amount)
	return nil
}

// UnprovideFunds withdraws up to amount and returns what was withdrawn.
func (l *Ledger) UnprovideFunds(provider common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	b, ok := l.funds[provider]
	if !ok || b.Sign() == 0 {
		return new(big.Int), nil
	}
	out := new(big.Int).Set(amount)
	if out.Cmp(b) > 0 {
		out.Set(b)
	}
	b.Sub(b, out)
	return out, nil
}

// Balance returns a provider's funds.
func (l *Ledger) Balance(provider common.Address) *big.Int {
	if b, ok := l.funds[provider]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Retained returns what the platform has kept from settlements.
func (l *Ledger) Retained() *big.Int {
	return new(big.Int).Set(l.retained)
}

// Settle pays an executor for one execution. The payout is costEstimate
// times priceMultiplier; the executor's stake receives (100 − share)% of it
// and the platform keeps the rest. Nothing changes on error.
func (l *Ledger) Settle(provider, executor common.Address, costEstimate, priceMultiplier *big.Int, successSharePercent uint64, stakes *Stakes) (Settlement, error) {
	if successSharePercent > 100 {
		return Settlement{}, ErrInvalidShare
	}
	payout := new(big.Int).Mul(costEstimate, priceMultiplier)
	if payout.Sign() < 0 {
		return Settlement{}, ErrInvalidAmount
	}
	have := l.Balance(provider)
	if have.Cmp(payout) < 0 {
		return Settlement{}, fmt.Errorf("%w: %s has %s, payout %s",
			ErrInsufficientProviderFunds, provider.Hex(), have, payout)
	}

	executorShare := new(big.Int).Mul(payout, new(big.Int).SetUint64(100-successSharePercent))
	executorShare.Quo(executorShare, big.NewInt(100))
	platformShare := new(big.Int).Sub(payout, executorShare)

	if payout.Sign() > 0 {
		l.funds[provider].Sub(l.funds[provider], payout)
	}
	l.retained.Add(l.retained, platformShare)
	stakes.Credit(executor, executorShare)

	return Settlement{
		Payout:        payout,
		ExecutorShare: executorShare,
		PlatformShare: platformShare,
	}, nil
}

// MinExecProviderFunds is what a provider must hold for an execution with
// the given budget and cost price.
func MinExecProviderFunds(costBudget, costPrice *big.Int) *big.Int {
	return new(big.Int).Mul(costBudget, costPrice)
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		funds:    make(map[common.Address]*big.Int, len(l.funds)),
		retained: new(big.Int).Set(l.retained),
	}
	for p, b := range l.funds {
		c.funds[p] = new(big.Int).Set(b)
	}
	return c
}
