package task

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/debt-bridge/internal/bridge"
	"github.com/atmx/debt-bridge/internal/venue"
)

// Kind names an action variant.
type Kind string

const (
	KindOpen         Kind = "open"
	KindDeposit      Kind = "deposit"
	KindWithdraw     Kind = "withdraw"
	KindBorrow       Kind = "borrow"
	KindRepay        Kind = "repay"
	KindFlashBorrow  Kind = "flash-borrow"
	KindFlashPayback Kind = "flash-payback"
	KindPayProvider  Kind = "pay-provider"
	KindRefinance    Kind = "refinance"
	KindCustom       Kind = "custom"
)

// Targets for actions that are not venue primitives.
const (
	TargetFlash   = "flash"
	TargetPayment = "payment"
	TargetBridge  = "bridge"
)

// Mode selects whose identity an action runs under. Delegate runs as the
// account itself; Call runs as the engine.
type Mode uint8

const (
	ModeDelegate Mode = iota
	ModeCall
)

func (m Mode) String() string {
	if m == ModeCall {
		return "call"
	}
	return "delegate"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "delegate", "":
		*m = ModeDelegate
	case "call":
		*m = ModeCall
	default:
		return fmt.Errorf("task: unknown mode %q", b)
	}
	return nil
}

// Slot names a scratch register shared by the actions of one execution.
// Zero means "no slot".
type Slot uint8

// Operand is an amount that is either a literal or read from a slot.
type Operand struct {
	Value *big.Int `json:"value,omitempty"`
	Slot  Slot     `json:"slot,omitempty"`
}

// Amount is a literal operand.
func Amount(v *big.Int) Operand { return Operand{Value: new(big.Int).Set(v)} }

// FromSlot reads the operand from a slot at run time.
func FromSlot(s Slot) Operand { return Operand{Slot: s} }

// PositionRef points at a position either directly or through a slot that
// an earlier Open wrote.
type PositionRef struct {
	Venue string `json:"venue"`
	ID    uint64 `json:"id,omitempty"`
	Slot  Slot   `json:"slot,omitempty"`
}

// At refers to an existing position.
func At(ref venue.Ref) PositionRef { return PositionRef{Venue: ref.Venue, ID: ref.ID} }

// Action is one step of a task. The set of variants is closed.
type Action interface {
	Kind() Kind
	Target() string
	Via() Mode
	isAction()
}

// Open creates an empty position and stores its id in SetSlot.
type Open struct {
	Venue   string `json:"venue"`
	Market  string `json:"market"`
	SetSlot Slot   `json:"set_slot,omitempty"`
	Mode    Mode   `json:"mode"`
}

// Deposit adds collateral from the actor's wallet.
type Deposit struct {
	Position PositionRef `json:"position"`
	Amount   Operand     `json:"amount"`
	Mode     Mode        `json:"mode"`
}

// Withdraw moves collateral to the actor's wallet. All withdraws the full
// balance and ignores Amount.
type Withdraw struct {
	Position PositionRef `json:"position"`
	Amount   Operand     `json:"amount"`
	All      bool        `json:"all,omitempty"`
	SetSlot  Slot        `json:"set_slot,omitempty"`
	Mode     Mode        `json:"mode"`
}

// Borrow draws debt into the actor's wallet.
type Borrow struct {
	Position PositionRef `json:"position"`
	Amount   Operand     `json:"amount"`
	SetSlot  Slot        `json:"set_slot,omitempty"`
	Mode     Mode        `json:"mode"`
}

// Repay pays debt from the actor's wallet. All repays the full debt.
type Repay struct {
	Position PositionRef `json:"position"`
	Amount   Operand     `json:"amount"`
	All      bool        `json:"all,omitempty"`
	SetSlot  Slot        `json:"set_slot,omitempty"`
	Mode     Mode        `json:"mode"`
}

// RouteAuto lets a flash borrow pick its own route.
const RouteAuto = -1

// FlashBorrow takes flash liquidity into the account's wallet.
type FlashBorrow struct {
	Token  string  `json:"token"`
	Amount Operand `json:"amount"`
	Route  int     `json:"route"`
}

// FlashPayback returns the latest flash loan in Token.
type FlashPayback struct {
	Token string `json:"token"`
}

// PayProvider pays the provider directly from the account's wallet. The
// provider module fills in Recipient.
type PayProvider struct {
	Token     string         `json:"token"`
	Recipient common.Address `json:"recipient"`
	Amount    Operand        `json:"amount"`
	Mode      Mode           `json:"mode"`
}

// Refinance sizes a migration of Source and writes the plan into slots.
type Refinance struct {
	Source      PositionRef    `json:"source"`
	PlanMode    bridge.Mode    `json:"plan_mode"`
	Targets     bridge.Targets `json:"targets"`
	PriceQuery  string         `json:"price_query"`
	NewPosition bool           `json:"new_position"`

	WithdrawSlot Slot `json:"withdraw_slot"`
	RepaySlot    Slot `json:"repay_slot"`
	DepositSlot  Slot `json:"deposit_slot"`
	BorrowSlot   Slot `json:"borrow_slot"`
	FeeSlot      Slot `json:"fee_slot"`
}

// Custom runs a handler registered on the engine.
type Custom struct {
	Handle string          `json:"handle"`
	Data   json.RawMessage `json:"data,omitempty"`
	Mode   Mode            `json:"mode"`
}

func (Open) Kind() Kind         { return KindOpen }
func (Deposit) Kind() Kind      { return KindDeposit }
func (Withdraw) Kind() Kind     { return KindWithdraw }
func (Borrow) Kind() Kind       { return KindBorrow }
func (Repay) Kind() Kind        { return KindRepay }
func (FlashBorrow) Kind() Kind  { return KindFlashBorrow }
func (FlashPayback) Kind() Kind { return KindFlashPayback }
func (PayProvider) Kind() Kind  { return KindPayProvider }
func (Refinance) Kind() Kind    { return KindRefinance }
func (Custom) Kind() Kind       { return KindCustom }

func (a Open) Target() string       { return a.Venue }
func (a Deposit) Target() string    { return a.Position.Venue }
func (a Withdraw) Target() string   { return a.Position.Venue }
func (a Borrow) Target() string     { return a.Position.Venue }
func (a Repay) Target() string      { return a.Position.Venue }
func (FlashBorrow) Target() string  { return TargetFlash }
func (FlashPayback) Target() string { return TargetFlash }
func (PayProvider) Target() string  { return TargetPayment }
func (Refinance) Target() string    { return TargetBridge }
func (a Custom) Target() string     { return a.Handle }

func (a Open) Via() Mode        { return a.Mode }
func (a Deposit) Via() Mode     { return a.Mode }
func (a Withdraw) Via() Mode    { return a.Mode }
func (a Borrow) Via() Mode      { return a.Mode }
func (a Repay) Via() Mode       { return a.Mode }
func (FlashBorrow) Via() Mode   { return ModeDelegate }
func (FlashPayback) Via() Mode  { return ModeDelegate }
func (a PayProvider) Via() Mode { return a.Mode }
func (Refinance) Via() Mode     { return ModeDelegate }
func (a Custom) Via() Mode      { return a.Mode }

func (Open) isAction()         {}
func (Deposit) isAction()      {}
func (Withdraw) isAction()     {}
func (Borrow) isAction()       {}
func (Repay) isAction()        {}
func (FlashBorrow) isAction()  {}
func (FlashPayback) isAction() {}
func (PayProvider) isAction()  {}
func (Refinance) isAction()    {}
func (Custom) isAction()       {}
