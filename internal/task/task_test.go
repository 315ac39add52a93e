package task

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/debt-bridge/internal/bridge"
	"github.com/atmx/debt-bridge/internal/venue"
)

func sampleTask() Task {
	return Task{
		Conditions: []Condition{{Handle: "vault-unsafe", Data: json.RawMessage(`{"min_ratio":3}`)}},
		Actions: RefinanceActions(RefinanceParams{
			Mode:              bridge.Full,
			Source:            venue.Ref{Venue: "maker", ID: 1},
			Targets:           bridge.Targets{Source: w("3"), Destination: w("1.5")},
			PriceQuery:        "ETH/USD",
			CollateralToken:   "ETH",
			DebtToken:         "DAI",
			DestinationVenue:  "maker",
			DestinationMarket: "ETH-B",
		}),
	}
}

func TestSpecHash_IgnoresCeilingAndData(t *testing.T) {
	tk := sampleTask()
	a := SpecFor(tk, big.NewInt(1))
	b := SpecFor(tk, big.NewInt(2))
	assert.Equal(t, a.Hash(), b.Hash())

	// Condition data and amounts are not part of the shape.
	other := sampleTask()
	other.Conditions[0].Data = json.RawMessage(`{"min_ratio":2}`)
	assert.Equal(t, a.Hash(), SpecFor(other, nil).Hash())
}

func TestSpecHash_ChangesWithShape(t *testing.T) {
	base := SpecFor(sampleTask(), nil).Hash()

	withCall := sampleTask()
	withCall.Actions[2] = Repay{Position: PositionRef{Venue: "maker", ID: 1}, Amount: FromSlot(SlotRepay), Mode: ModeCall}
	assert.NotEqual(t, base, SpecFor(withCall, nil).Hash())

	otherVenue := sampleTask()
	otherVenue.Actions[2] = Repay{Position: PositionRef{Venue: "compound", ID: 1}, Amount: FromSlot(SlotRepay)}
	assert.NotEqual(t, base, SpecFor(otherVenue, nil).Hash())

	noCondition := sampleTask()
	noCondition.Conditions = nil
	assert.NotEqual(t, base, SpecFor(noCondition, nil).Hash())
}

func TestTaskJSON_KeepsShape(t *testing.T) {
	tk := sampleTask()
	tk.Actions = append(tk.Actions, Custom{Handle: "notify", Data: json.RawMessage(`{"to":"ops"}`), Mode: ModeCall})

	data, err := json.Marshal(tk)
	require.NoError(t, err)

	var got Task
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Actions, len(tk.Actions))
	assert.Equal(t, SpecFor(tk, nil).Hash(), SpecFor(got, nil).Hash())

	ref, ok := got.Actions[0].(Refinance)
	require.True(t, ok)
	assert.Equal(t, bridge.Full, ref.PlanMode)
	assert.Equal(t, 0, ref.Targets.Destination.Cmp(w("1.5")))

	custom, ok := got.Actions[len(got.Actions)-1].(Custom)
	require.True(t, ok)
	assert.JSONEq(t, `{"to":"ops"}`, string(custom.Data))
}

func TestUnmarshalAction_UnknownKind(t *testing.T) {
	_, err := UnmarshalAction([]byte(`{"kind":"selfdestruct","args":{}}`))
	require.ErrorIs(t, err, ErrUnknownActionKind)
}

func TestModules_PatchRecipients(t *testing.T) {
	prov := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	mine := common.HexToAddress("0x00000000000000000000000000000000000000f0")
	tk := Task{Actions: []Action{
		PayProvider{Token: "ETH", Amount: Amount(w("1"))},
		PayProvider{Token: "ETH", Recipient: mine, Amount: Amount(w("1"))},
	}}

	dsa := DSAModule{}.BuildProgram(nil, prov, tk)
	assert.Equal(t, prov, dsa[0].(PayProvider).Recipient)
	assert.Equal(t, prov, dsa[1].(PayProvider).Recipient)

	self := SelfModule{}.BuildProgram(nil, prov, tk)
	assert.Equal(t, prov, self[0].(PayProvider).Recipient)
	assert.Equal(t, mine, self[1].(PayProvider).Recipient)

	// The submitted task is untouched.
	assert.Equal(t, common.Address{}, tk.Actions[0].(PayProvider).Recipient)
}

func TestModules_IsProvided(t *testing.T) {
	eng := common.HexToAddress("0x00000000000000000000000000000000000000ee")
	user := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	proxy := &Account{Address: common.HexToAddress("0x00000000000000000000000000000000000000d5"), Owner: user, Flavor: FlavorDSA, Authorized: map[common.Address]bool{}}
	self := &Account{Address: user, Owner: user, Flavor: FlavorSelf, Authorized: map[common.Address]bool{eng: true}}

	assert.Equal(t, ReasonInvalidUserProxy, DSAModule{}.IsProvided(nil, eng, Task{}))
	assert.Equal(t, ReasonInvalidUserProxy, DSAModule{}.IsProvided(self, eng, Task{}))
	assert.Equal(t, ReasonEngineNotAuth, DSAModule{}.IsProvided(proxy, eng, Task{}))
	proxy.Authorized[eng] = true
	assert.Equal(t, OK, DSAModule{}.IsProvided(proxy, eng, Task{}))

	assert.Equal(t, ReasonInvalidUserProxy, SelfModule{}.IsProvided(proxy, eng, Task{}))
	assert.Equal(t, OK, SelfModule{}.IsProvided(self, eng, Task{}))
}

func TestMeter_Estimate(t *testing.T) {
	m := DefaultMeter()
	assert.Equal(t, uint64(2_265_000), m.Estimate(sampleTask().Actions))
	assert.Equal(t, uint64(80_000), m.Estimate(nil))
}
