package payment

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/debt-bridge/internal/venue"
	"github.com/atmx/debt-bridge/internal/wad"
)

var (
	provider = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	executor = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func n(s string) *big.Int {
	x, _ := new(big.Int).SetString(s, 10)
	return x
}

func TestLedger_Settle(t *testing.T) {
	l := NewLedger()
	s := NewStakes(wad.One())
	require.NoError(t, l.ProvideFunds(provider, wad.One()))
	require.NoError(t, s.Stake(executor, wad.One()))

	got, err := l.Settle(provider, executor, big.NewInt(2_265_000), big.NewInt(100_000_000_000), 5, s)
	require.NoError(t, err)

	assert.Equal(t, 0, got.Payout.Cmp(n("226500000000000000")))
	assert.Equal(t, 0, got.ExecutorShare.Cmp(n("215175000000000000")))
	assert.Equal(t, 0, got.PlatformShare.Cmp(n("11325000000000000")))

	assert.Equal(t, 0, l.Balance(provider).Cmp(n("773500000000000000")))
	assert.Equal(t, 0, l.Retained().Cmp(n("11325000000000000")))
	assert.Equal(t, 0, s.Of(executor).Cmp(n("1215175000000000000")))
}

func TestLedger_SettleInsufficientFunds(t *testing.T) {
	l := NewLedger()
	s := NewStakes(nil)
	require.NoError(t, l.ProvideFunds(provider, big.NewInt(999)))

	_, err := l.Settle(provider, executor, big.NewInt(10), big.NewInt(100), 5, s)
	require.ErrorIs(t, err, ErrInsufficientProviderFunds)

	assert.Equal(t, 0, l.Balance(provider).Cmp(big.NewInt(999)), "ledger must be unchanged")
	assert.Equal(t, 0, s.Of(executor).Sign(), "stake must be unchanged")
	assert.Equal(t, 0, l.Retained().Sign())
}

func TestLedger_SettleInvalidShare(t *testing.T) {
	l := NewLedger()
	_, err := l.Settle(provider, executor, big.NewInt(1), big.NewInt(1), 101, NewStakes(nil))
	require.ErrorIs(t, err, ErrInvalidShare)
}

func TestLedger_ProvideAndUnprovide(t *testing.T) {
	l := NewLedger()
	require.ErrorIs(t, l.ProvideFunds(provider, new(big.Int)), ErrInvalidAmount)
	require.ErrorIs(t, l.ProvideFunds(common.Address{}, big.NewInt(1)), ErrInvalidRecipient)

	require.NoError(t, l.ProvideFunds(provider, big.NewInt(100)))
	require.NoError(t, l.ProvideFunds(provider, big.NewInt(50)))

	out, err := l.UnprovideFunds(provider, big.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, int64(150), out.Int64())
	assert.Equal(t, 0, l.Balance(provider).Sign())
}

func TestLedger_Clone(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.ProvideFunds(provider, big.NewInt(100)))
	c := l.Clone()
	require.NoError(t, c.ProvideFunds(provider, big.NewInt(1)))
	assert.Equal(t, int64(100), l.Balance(provider).Int64())
}

func TestMinExecProviderFunds(t *testing.T) {
	got := MinExecProviderFunds(big.NewInt(4_000_000), big.NewInt(100_000_000_000))
	assert.Equal(t, 0, got.Cmp(n("400000000000000000")))
}

func TestStakes(t *testing.T) {
	s := NewStakes(wad.One())
	assert.False(t, s.IsMinStaked(executor))

	require.ErrorIs(t, s.Stake(executor, big.NewInt(1)), ErrStakeBelowMinimum)
	assert.False(t, s.IsMinStaked(executor))

	require.NoError(t, s.Stake(executor, wad.One()))
	assert.True(t, s.IsMinStaked(executor))

	out, err := s.Unstake(executor)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Cmp(wad.One()))
	assert.False(t, s.IsMinStaked(executor))

	_, err = s.Unstake(executor)
	require.ErrorIs(t, err, ErrNotStaked)
}

func TestPayProvider(t *testing.T) {
	ws := venue.NewWallets()
	ws.Credit(owner, "ETH", wad.One())

	require.NoError(t, PayProvider(ws, owner, provider, "ETH", n("298400000000000000")))
	assert.Equal(t, 0, ws.Balance(provider, "ETH").Cmp(n("298400000000000000")))
	assert.Equal(t, 0, ws.Balance(owner, "ETH").Cmp(n("701600000000000000")))
}

func TestPayProvider_ZeroRecipient(t *testing.T) {
	ws := venue.NewWallets()
	ws.Credit(owner, "ETH", wad.One())

	err := PayProvider(ws, owner, common.Address{}, "ETH", big.NewInt(1))
	require.ErrorIs(t, err, ErrInvalidRecipient)
	assert.Equal(t, 0, ws.Balance(owner, "ETH").Cmp(wad.One()))
}

func TestPayProvider_InsufficientBalance(t *testing.T) {
	ws := venue.NewWallets()
	err := PayProvider(ws, owner, provider, "ETH", big.NewInt(1))
	require.ErrorIs(t, err, venue.ErrInsufficientBalance)
}
