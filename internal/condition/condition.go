// Package condition holds the read-only predicates that gate execution.
//
// An Evaluator returns "OK" or a short reason. Evaluators read positions
// through a View and prices through the Env; they never write, so any
// number of executors can poll them concurrently.
package condition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/atmx/debt-bridge/internal/route"
	"github.com/atmx/debt-bridge/internal/venue"
)

// OK is the only passing result.
const OK = "OK"

// Reasons returned by the stock evaluators.
const (
	ReasonPositionNotUnsafe = "PositionNotUnsafe"
	ReasonPositionNotSafe   = "PositionNotSafe"
	ReasonTooExpensive      = "TooExpensive"
	ReasonPositionHasNoDebt = "PositionHasNoDebt"
	ReasonPositionNotFound  = "PositionNotFound"
	ReasonPriceUnavailable  = "PriceUnavailable"
	ReasonIlliquid          = "Illiquid"
	ReasonInvalidData       = "InvalidConditionData"
	ReasonUnknownCondition  = "UnknownCondition"
	ReasonCostPriceMissing  = "CostPriceMissing"
)

// Stock handles.
const (
	HandleVaultUnsafe      = "vault-unsafe"
	HandleVaultSafe        = "vault-safe"
	HandleBridgeAffordable = "bridge-affordable"
)

var ErrDuplicateHandle = errors.New("condition: handle already registered")

// View is the read-only state an evaluator may inspect.
type View interface {
	Position(ref venue.Ref) (venue.Position, error)
	Sources() []route.Source
}

// Env carries per-call inputs: the price source and the caller's bid cost
// price.
type Env struct {
	Prices    venue.PriceSource
	CostPrice *big.Int
}

// Evaluator is one predicate. data is the JSON encoding of the evaluator's
// parameter struct.
type Evaluator interface {
	Ok(ctx context.Context, view View, data []byte, env Env) string
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, view View, data []byte, env Env) string

func (f EvaluatorFunc) Ok(ctx context.Context, view View, data []byte, env Env) string {
	return f(ctx, view, data, env)
}

// EncodeData encodes evaluator parameters.
func EncodeData(params any) ([]byte, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("condition: encode data: %w", err)
	}
	return data, nil
}

// Registry maps handles to evaluators. It is populated at start-up and
// read-only afterwards.
type Registry struct {
	evaluators map[string]Evaluator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

// DefaultRegistry registers the stock evaluators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.evaluators[HandleVaultUnsafe] = VaultUnsafe{}
	r.evaluators[HandleVaultSafe] = VaultSafe{}
	r.evaluators[HandleBridgeAffordable] = BridgeAffordable{}
	return r
}

// Register adds an evaluator under a new handle.
func (r *Registry) Register(handle string, e Evaluator) error {
	if _, ok := r.evaluators[handle]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandle, handle)
	}
	r.evaluators[handle] = e
	return nil
}

// Has reports whether a handle is registered.
func (r *Registry) Has(handle string) bool {
	_, ok := r.evaluators[handle]
	return ok
}

// Handles lists registered handles in sorted order.
func (r *Registry) Handles() []string {
	out := make([]string, 0, len(r.evaluators))
	for h := range r.evaluators {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Evaluate runs the evaluator registered under handle.
func (r *Registry) Evaluate(ctx context.Context, handle string, view View, data []byte, env Env) string {
	e, ok := r.evaluators[handle]
	if !ok {
		return ReasonUnknownCondition
	}
	return e.Ok(ctx, view, data, env)
}
