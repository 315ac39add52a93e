package task

import (
	"encoding/json"
	"fmt"
)

// envelope is the wire form of an Action.
type envelope struct {
	Kind Kind            `json:"kind"`
	Args json.RawMessage `json:"args"`
}

// MarshalAction encodes an action with its kind tag.
func MarshalAction(a Action) ([]byte, error) {
	args, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("task: encode %s: %w", a.Kind(), err)
	}
	return json.Marshal(envelope{Kind: a.Kind(), Args: args})
}

// UnmarshalAction decodes an action written by MarshalAction.
func UnmarshalAction(data []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("task: decode action: %w", err)
	}
	var (
		a   Action
		err error
	)
	switch env.Kind {
	case KindOpen:
		a, err = decodeArgs[Open](env.Args)
	case KindDeposit:
		a, err = decodeArgs[Deposit](env.Args)
	case KindWithdraw:
		a, err = decodeArgs[Withdraw](env.Args)
	case KindBorrow:
		a, err = decodeArgs[Borrow](env.Args)
	case KindRepay:
		a, err = decodeArgs[Repay](env.Args)
	case KindFlashBorrow:
		a, err = decodeArgs[FlashBorrow](env.Args)
	case KindFlashPayback:
		a, err = decodeArgs[FlashPayback](env.Args)
	case KindPayProvider:
		a, err = decodeArgs[PayProvider](env.Args)
	case KindRefinance:
		a, err = decodeArgs[Refinance](env.Args)
	case KindCustom:
		a, err = decodeArgs[Custom](env.Args)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionKind, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("task: decode %s: %w", env.Kind, err)
	}
	return a, nil
}

func decodeArgs[T Action](raw json.RawMessage) (Action, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// MarshalJSON encodes actions through their envelopes.
func (t Task) MarshalJSON() ([]byte, error) {
	actions := make([]json.RawMessage, 0, len(t.Actions))
	for _, a := range t.Actions {
		data, err := MarshalAction(a)
		if err != nil {
			return nil, err
		}
		actions = append(actions, data)
	}
	conditions := t.Conditions
	if conditions == nil {
		conditions = []Condition{}
	}
	return json.Marshal(struct {
		Conditions []Condition       `json:"conditions"`
		Actions    []json.RawMessage `json:"actions"`
	}{conditions, actions})
}

// UnmarshalJSON decodes a task written by MarshalJSON.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw struct {
		Conditions []Condition       `json:"conditions"`
		Actions    []json.RawMessage `json:"actions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("task: decode task: %w", err)
	}
	t.Conditions = raw.Conditions
	t.Actions = make([]Action, 0, len(raw.Actions))
	for _, r := range raw.Actions {
		a, err := UnmarshalAction(r)
		if err != nil {
			return err
		}
		t.Actions = append(t.Actions, a)
	}
	return nil
}
