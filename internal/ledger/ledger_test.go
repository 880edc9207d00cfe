package ledger

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/perpvault/internal/types"
)

const (
	ampl  types.Address = "ampl"
	stock types.Address = "stock"
	alice types.Address = "alice"
	bob   types.Address = "bob"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New()
	require.NoError(t, l.RegisterToken(ampl, true))
	require.NoError(t, l.RegisterToken(stock, false))
	return l
}

func TestRegisterToken(t *testing.T) {
	l := newLedger(t)
	assert.ErrorIs(t, l.RegisterToken(ampl, true), types.ErrTokenExists)
	assert.ErrorIs(t, l.RegisterToken("x", false), types.ErrInvalidConfig)
	assert.True(t, l.HasToken(stock))
}

func TestTransferMintBurn(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Mint(stock, alice, sdkmath.NewInt(100)))
	require.NoError(t, l.Transfer(stock, alice, bob, sdkmath.NewInt(40)))

	assert.Equal(t, int64(60), l.BalanceOf(stock, alice).Int64())
	assert.Equal(t, int64(40), l.BalanceOf(stock, bob).Int64())

	err := l.Transfer(stock, bob, alice, sdkmath.NewInt(41))
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)

	require.NoError(t, l.Burn(stock, bob, sdkmath.NewInt(40)))
	assert.Equal(t, int64(60), l.TotalSupply(stock).Int64())
	assert.ErrorIs(t, l.Burn(stock, bob, sdkmath.NewInt(1)), types.ErrInsufficientBalance)
	assert.ErrorIs(t, l.Mint("nope", alice, sdkmath.OneInt()), types.ErrUnknownToken)
}

func TestRebaseScalesBalances(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Mint(ampl, alice, sdkmath.NewInt(500)))
	require.NoError(t, l.Mint(ampl, bob, sdkmath.NewInt(500)))

	require.NoError(t, l.RebaseByPerc(ampl, sdkmath.LegacyNewDecWithPrec(1, 1)))

	assert.Equal(t, int64(1100), l.TotalSupply(ampl).Int64())
	assert.Equal(t, int64(550), l.BalanceOf(ampl, alice).Int64())
	assert.Equal(t, int64(550), l.BalanceOf(ampl, bob).Int64())

	// transfers after a rebase move fragments, not gons
	require.NoError(t, l.Transfer(ampl, alice, bob, sdkmath.NewInt(50)))
	assert.Equal(t, int64(500), l.BalanceOf(ampl, alice).Int64())
	assert.Equal(t, int64(600), l.BalanceOf(ampl, bob).Int64())

	assert.ErrorIs(t, l.Rebase(stock, sdkmath.NewInt(10)), types.ErrUnexpectedAsset)
}

func TestBalancesAsCoins(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Mint(ampl, alice, sdkmath.NewInt(7)))
	require.NoError(t, l.Mint(stock, alice, sdkmath.NewInt(3)))

	coins := l.Balances(alice)
	assert.True(t, coins.Equal(sdk.NewCoins(sdk.NewInt64Coin("ampl", 7), sdk.NewInt64Coin("stock", 3))))
}

type counter struct{ n int }

func (c *counter) Snapshot() any        { return c.n }
func (c *counter) Restore(snapshot any) { c.n = snapshot.(int) }

func TestAtomicRollsBackOnError(t *testing.T) {
	l := newLedger(t)
	c := &counter{}
	l.Register(c)
	require.NoError(t, l.Mint(stock, alice, sdkmath.NewInt(10)))
	events := l.EventCount()

	boom := errors.New("boom")
	err := l.Atomic(func() error {
		c.n = 5
		require.NoError(t, l.Transfer(stock, alice, bob, sdkmath.NewInt(10)))
		require.NoError(t, l.RegisterToken("fresh", false))
		l.EmitEvent(sdk.NewEvent("test"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 0, c.n)
	assert.Equal(t, int64(10), l.BalanceOf(stock, alice).Int64())
	assert.True(t, l.BalanceOf(stock, bob).IsZero())
	assert.False(t, l.HasToken("fresh"))
	assert.Equal(t, events, l.EventCount())
}

func TestAtomicCommitsAndNests(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Mint(stock, alice, sdkmath.NewInt(10)))

	err := l.Atomic(func() error {
		require.NoError(t, l.Transfer(stock, alice, bob, sdkmath.NewInt(4)))
		inner := l.Atomic(func() error {
			require.NoError(t, l.Transfer(stock, alice, bob, sdkmath.NewInt(6)))
			return types.ErrNoDeployment
		})
		assert.ErrorIs(t, inner, types.ErrNoDeployment)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), l.BalanceOf(stock, alice).Int64())
	assert.Equal(t, int64(4), l.BalanceOf(stock, bob).Int64())
}

func TestAtomicRestoresOnPanic(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Mint(stock, alice, sdkmath.NewInt(10)))

	assert.Panics(t, func() {
		_ = l.Atomic(func() error {
			_ = l.Transfer(stock, alice, bob, sdkmath.NewInt(10))
			panic("unexpected")
		})
	})
	assert.Equal(t, int64(10), l.BalanceOf(stock, alice).Int64())
}
