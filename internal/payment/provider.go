package payment

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/debt-bridge/internal/venue"
)

// PayProvider moves amount of token from an owner's wallet straight to the
// provider, outside the ledger. It is how owners pay a flat migration fee.
func PayProvider(wallets *venue.Wallets, from, provider common.Address, token string, amount *big.Int) error {
	if provider == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return wallets.Transfer(from, provider, token, amount)
}
