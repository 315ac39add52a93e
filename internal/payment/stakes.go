package payment

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrStakeBelowMinimum = errors.New("payment: stake below minimum")
	ErrNotStaked         = errors.New("payment: executor has no stake")
)

// Stakes is the executor stake registry. Executors must hold at least the
// minimum stake to be assigned by a provider; compensation is credited to
// the stake.
type Stakes struct {
	min    *big.Int
	stakes map[common.Address]*big.Int
}

// NewStakes creates a registry with the given minimum stake.
func NewStakes(minStake *big.Int) *Stakes {
	if minStake == nil {
		minStake = new(big.Int)
	}
	return &Stakes{
		min:    new(big.Int).Set(minStake),
		stakes: make(map[common.Address]*big.Int),
	}
}

// MinStake returns the minimum stake.
func (s *Stakes) MinStake() *big.Int {
	return new(big.Int).Set(s.min)
}

// Stake adds amount to an executor's stake. The resulting stake must reach
// the minimum.
func (s *Stakes) Stake(executor common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	next := new(big.Int).Add(s.Of(executor), amount)
	if next.Cmp(s.min) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrStakeBelowMinimum, next, s.min)
	}
	s.stakes[executor] = next
	return nil
}

// Unstake removes and returns the whole stake.
func (s *Stakes) Unstake(executor common.Address) (*big.Int, error) {
	b, ok := s.stakes[executor]
	if !ok || b.Sign() == 0 {
		return nil, ErrNotStaked
	}
	delete(s.stakes, executor)
	return b, nil
}

// Credit adds compensation to a stake.
func (s *Stakes) Credit(executor common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	b, ok := s.stakes[executor]
	if !ok {
		b = new(big.Int)
		s.stakes[executor] = b
	}
	b.Add(b, amount)
}

// Of returns an executor's stake.
func (s *Stakes) Of(executor common.Address) *big.Int {
	if b, ok := s.stakes[executor]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// IsMinStaked reports whether an executor holds at least the minimum.
func (s *Stakes) IsMinStaked(executor common.Address) bool {
	b, ok := s.stakes[executor]
	return ok && b.Sign() > 0 && b.Cmp(s.min) >= 0
}

// Clone returns a deep copy.
func (s *Stakes) Clone() *Stakes {
	c := &Stakes{
		min:    new(big.Int).Set(s.min),
		stakes: make(map[common.Address]*big.Int, len(s.stakes)),
	}
	for e, b := range s.stakes {
		c.stakes[e] = new(big.Int).Set(b)
	}
	return c
}
