// Package task runs debt-bridge automation: owners submit tasks, providers
// publish the task shapes they pay for, and assigned executors run them
// once their conditions hold.
//
// Every execution runs the task's actions in order against a copy of the
// engine state. The copy replaces the live state only when every action
// succeeded, no flash loan is outstanding and the executor was paid.
package task

import (
	"encoding/json"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Condition gates a task. Data is the JSON encoding of the evaluator's
// parameters.
type Condition struct {
	Handle string          `json:"handle"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Task is a list of conditions and the actions to run when all hold.
type Task struct {
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// ActionSpec is the shape of one action as a provider sees it.
type ActionSpec struct {
	Target string `json:"target"`
	Kind   Kind   `json:"kind"`
	Mode   Mode   `json:"mode"`
}

// TaskSpec is a task shape a provider agrees to pay for, and the highest
// cost price it accepts for it.
type TaskSpec struct {
	Conditions    []string     `json:"conditions"`
	Actions       []ActionSpec `json:"actions"`
	CostPriceCeil *big.Int     `json:"cost_price_ceil"`
}

// Hash identifies the spec by its conditions and action shapes. The ceiling
// is not part of the identity.
func (s TaskSpec) Hash() common.Hash {
	conditions := s.Conditions
	if conditions == nil {
		conditions = []string{}
	}
	actions := s.Actions
	if actions == nil {
		actions = []ActionSpec{}
	}
	// Struct fields marshal in declaration order, so the encoding is stable.
	data, _ := json.Marshal(struct {
		Conditions []string     `json:"conditions"`
		Actions    []ActionSpec `json:"actions"`
	}{conditions, actions})
	return crypto.Keccak256Hash(data)
}

// SpecFor derives the spec that covers t.
func SpecFor(t Task, ceil *big.Int) TaskSpec {
	spec := TaskSpec{
		Conditions: make([]string, 0, len(t.Conditions)),
		Actions:    make([]ActionSpec, 0, len(t.Actions)),
	}
	if ceil != nil {
		spec.CostPriceCeil = new(big.Int).Set(ceil)
	}
	for _, c := range t.Conditions {
		spec.Conditions = append(spec.Conditions, c.Handle)
	}
	for _, a := range t.Actions {
		spec.Actions = append(spec.Actions, ActionSpec{Target: a.Target(), Kind: a.Kind(), Mode: a.Via()})
	}
	return spec
}

// Provider names who pays for a task and through which module.
type Provider struct {
	Address common.Address `json:"address"`
	Module  string         `json:"module"`
}

// Flavours of account.
const (
	FlavorDSA  = "dsa"
	FlavorSelf = "self"
)

// Account is a user proxy that can hold positions and tokens. The owner
// authorises engines to act through it.
type Account struct {
	Address    common.Address
	Owner      common.Address
	Flavor     string
	Authorized map[common.Address]bool
}

// IsAuthorized reports whether who may act through the account.
func (a *Account) IsAuthorized(who common.Address) bool {
	return a.Authorized[who]
}

// AuthorizedList returns the authorised addresses in a stable order.
func (a *Account) AuthorizedList() []common.Address {
	out := make([]common.Address, 0, len(a.Authorized))
	for addr, ok := range a.Authorized {
		if ok {
			out = append(out, addr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

func (a *Account) clone() *Account {
	c := &Account{Address: a.Address, Owner: a.Owner, Flavor: a.Flavor, Authorized: make(map[common.Address]bool, len(a.Authorized))}
	for k, v := range a.Authorized {
		c.Authorized[k] = v
	}
	return c
}
