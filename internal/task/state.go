package task

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/debt-bridge/internal/payment"
	"github.com/atmx/debt-bridge/internal/route"
	"github.com/atmx/debt-bridge/internal/venue"
)

// Status is a receipt's lifecycle state.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusExecuting Status = "executing"
	StatusConsumed  Status = "consumed"
)

// Receipt records a submitted task chain. Index is the task that runs next.
type Receipt struct {
	ID          uint64         `json:"id"`
	Account     common.Address `json:"account"`
	Provider    Provider       `json:"provider"`
	Index       int            `json:"index"`
	Tasks       []Task         `json:"tasks"`
	Expiry      time.Time      `json:"expiry,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Status      Status         `json:"status"`
}

// Current returns the task this receipt executes.
func (r *Receipt) Current() Task { return r.Tasks[r.Index] }

// Expired reports whether the receipt can no longer run at now. A zero
// Expiry never expires.
func (r *Receipt) Expired(now time.Time) bool {
	return !r.Expiry.IsZero() && !now.Before(r.Expiry)
}

func (r *Receipt) clone() *Receipt {
	c := *r
	return &c
}

// State is everything an execution may change. Exec works on a Clone and
// commits it whole.
type State struct {
	Venues  *venue.Registry
	Wallets *venue.Wallets
	Pool    *route.Pool
	Ledger  *payment.Ledger
	Stakes  *payment.Stakes

	Accounts      map[common.Address]*Account
	Receipts      map[uint64]*Receipt
	NextReceiptID uint64

	// provider -> spec hash -> cost price ceiling
	Specs     map[common.Address]map[common.Hash]*big.Int
	Executors map[common.Address]common.Address
	Modules   map[common.Address]map[string]bool
}

// NewState assembles an empty state around the given venues and liquidity.
func NewState(venues *venue.Registry, pool *route.Pool, minStake *big.Int) *State {
	return &State{
		Venues:        venues,
		Wallets:       venue.NewWallets(),
		Pool:          pool,
		Ledger:        payment.NewLedger(),
		Stakes:        payment.NewStakes(minStake),
		Accounts:      make(map[common.Address]*Account),
		Receipts:      make(map[uint64]*Receipt),
		NextReceiptID: 1,
		Specs:         make(map[common.Address]map[common.Hash]*big.Int),
		Executors:     make(map[common.Address]common.Address),
		Modules:       make(map[common.Address]map[string]bool),
	}
}

// Position implements condition.View.
func (s *State) Position(ref venue.Ref) (venue.Position, error) {
	return s.Venues.Position(ref)
}

// Sources implements condition.View.
func (s *State) Sources() []route.Source {
	return s.Pool.Sources()
}

// Clone returns a deep copy. Tasks inside receipts are immutable and shared.
func (s *State) Clone() *State {
	c := &State{
		Venues:        s.Venues.Clone(),
		Wallets:       s.Wallets.Clone(),
		Pool:          s.Pool.Clone(),
		Ledger:        s.Ledger.Clone(),
		Stakes:        s.Stakes.Clone(),
		Accounts:      make(map[common.Address]*Account, len(s.Accounts)),
		Receipts:      make(map[uint64]*Receipt, len(s.Receipts)),
		NextReceiptID: s.NextReceiptID,
		Specs:         make(map[common.Address]map[common.Hash]*big.Int, len(s.Specs)),
		Executors:     make(map[common.Address]common.Address, len(s.Executors)),
		Modules:       make(map[common.Address]map[string]bool, len(s.Modules)),
	}
	for k, a := range s.Accounts {
		c.Accounts[k] = a.clone()
	}
	for id, r := range s.Receipts {
		c.Receipts[id] = r.clone()
	}
	for p, specs := range s.Specs {
		m := make(map[common.Hash]*big.Int, len(specs))
		for h, ceil := range specs {
			m[h] = new(big.Int).Set(ceil)
		}
		c.Specs[p] = m
	}
	for p, e := range s.Executors {
		c.Executors[p] = e
	}
	for p, mods := range s.Modules {
		m := make(map[string]bool, len(mods))
		for name, ok := range mods {
			m[name] = ok
		}
		c.Modules[p] = m
	}
	return c
}

// specCeil returns the ceiling a provider set for a spec hash.
func (s *State) specCeil(provider common.Address, h common.Hash) (*big.Int, bool) {
	ceil, ok := s.Specs[provider][h]
	return ceil, ok
}

func (s *State) addReceipt(r *Receipt) *Receipt {
	r.ID = s.NextReceiptID
	s.NextReceiptID++
	s.Receipts[r.ID] = r
	return r
}
