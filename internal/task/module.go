package task

import (
	"github.com/ethereum/go-ethereum/common"
)

// ProviderModule decides whether a provider can serve an account and turns
// a task into the program that actually runs.
type ProviderModule interface {
	Name() string

	// IsProvided returns OK or the reason the account cannot be served.
	// acct is nil when the account is not registered.
	IsProvided(acct *Account, engine common.Address, t Task) string

	// BuildProgram returns the actions to run. It must not modify t.
	BuildProgram(acct *Account, provider common.Address, t Task) []Action
}

// Module names.
const (
	ModuleDSA  = "dsa"
	ModuleSelf = "self"
)

// DSAModule serves smart-account proxies. Every PayProvider in the program
// is redirected to the paying provider.
type DSAModule struct{}

func (DSAModule) Name() string { return ModuleDSA }

func (DSAModule) IsProvided(acct *Account, engine common.Address, _ Task) string {
	if acct == nil || acct.Flavor != FlavorDSA {
		return ReasonInvalidUserProxy
	}
	if !acct.IsAuthorized(engine) {
		return ReasonEngineNotAuth
	}
	return OK
}

func (DSAModule) BuildProgram(_ *Account, provider common.Address, t Task) []Action {
	return patchRecipients(t.Actions, provider, true)
}

// SelfModule serves owners that act as their own account. Recipients the
// owner set explicitly are kept.
type SelfModule struct{}

func (SelfModule) Name() string { return ModuleSelf }

func (SelfModule) IsProvided(acct *Account, engine common.Address, _ Task) string {
	if acct == nil || acct.Flavor != FlavorSelf || acct.Address != acct.Owner {
		return ReasonInvalidUserProxy
	}
	if !acct.IsAuthorized(engine) {
		return ReasonEngineNotAuth
	}
	return OK
}

func (SelfModule) BuildProgram(_ *Account, provider common.Address, t Task) []Action {
	return patchRecipients(t.Actions, provider, false)
}

func patchRecipients(actions []Action, provider common.Address, force bool) []Action {
	out := make([]Action, len(actions))
	for i, a := range actions {
		if pay, ok := a.(PayProvider); ok && (force || pay.Recipient == (common.Address{})) {
			pay.Recipient = provider
			a = pay
		}
		out[i] = a
	}
	return out
}
