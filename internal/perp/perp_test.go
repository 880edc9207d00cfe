package perp_test

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/perpvault/internal/config"
	"github.com/elys-network/perpvault/internal/discount"
	"github.com/elys-network/perpvault/internal/simulations"
	"github.com/elys-network/perpvault/internal/types"
)

const (
	alice types.Address = "alice"
	bob   types.Address = "bob"
)

const day = 24 * time.Hour

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, config.UnderlyingDecimals)
}

func newEnv(t *testing.T, mutate ...func(*simulations.EnvironmentConfig)) *simulations.Environment {
	t.Helper()
	cfg := simulations.DefaultEnvironmentConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	env, err := simulations.NewEnvironment(cfg)
	require.NoError(t, err)
	require.NoError(t, env.Faucet(alice, units(1_000)))
	require.NoError(t, env.Faucet(bob, units(1_000)))
	return env
}

func seniorOf(t *testing.T, env *simulations.Environment) types.Address {
	t.Helper()
	senior, err := env.Perp.GetDepositTranche()
	require.NoError(t, err)
	return senior
}

func TestFirstDepositMintsAtParLessFee(t *testing.T) {
	env := newEnv(t)
	senior := seniorOf(t, env)

	// 300 units tranche into 99.9 senior. With an empty vault dr is 0, so the 0.1% mint fee applies.
	minted, err := env.MintPerps(alice, units(300))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(99_800_100_000), minted)
	assert.Equal(t, minted, env.Perp.TotalSupply())

	assert.True(t, env.Perp.InReserve(senior))
	assert.Equal(t, sdkmath.NewInt(99_900_000_000), env.Perp.GetReserveTokenBalance(senior))

	tvl, err := env.Perp.GetTVL()
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(99_900_000_000), tvl)

	// the junior tranche stays with the depositor
	junior := env.Perp.GetDepositBond().Tranches()[1].Token
	assert.Equal(t, sdkmath.NewInt(200_100_000_000), env.Balance(junior, alice))
}

func TestVaultMintsFeeFree(t *testing.T) {
	env := newEnv(t)
	senior := seniorOf(t, env)

	forVault, err := env.Perp.ComputeMintAmt(env.Vault.Address(), senior, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	forAlice, err := env.Perp.ComputeMintAmt(alice, senior, sdkmath.NewInt(1_000))
	require.NoError(t, err)

	assert.Equal(t, sdkmath.NewInt(1_000), forVault)
	assert.Equal(t, sdkmath.NewInt(999), forAlice)
}

func TestDepositRejectsOtherTranches(t *testing.T) {
	env := newEnv(t)
	b := env.Perp.GetDepositBond()
	_, err := b.Deposit(alice, units(30))
	require.NoError(t, err)

	junior := b.Tranches()[1].Token
	_, err = env.Perp.Deposit(alice, junior, units(1))
	assert.ErrorIs(t, err, types.ErrUnacceptableDeposit)

	_, err = env.Perp.Deposit(alice, b.Tranches()[0].Token, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, types.ErrInvalidAmount)
	assert.True(t, env.Perp.TotalSupply().IsZero())
}

func TestRedeemPaysProportionalShare(t *testing.T) {
	env := newEnv(t)
	senior := seniorOf(t, env)

	minted, err := env.MintPerps(alice, units(300))
	require.NoError(t, err)

	// Half the reserve is 49.95 senior. The vault is empty, so dr stays below target and the 0.1% burn fee applies.
	half := minted.QuoRaw(2)
	coins, err := env.Perp.Redeem(alice, half)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(49_900_050_000), coins.AmountOf(senior.String()))
	assert.Equal(t, sdkmath.NewInt(49_900_050_000), env.Balance(senior, alice))
	assert.Equal(t, minted.Sub(half), env.Perp.TotalSupply())

	_, err = env.Perp.Redeem(alice, minted)
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)
}

func TestFailedDepositRollsBackBondDeposit(t *testing.T) {
	env := newEnv(t)
	senior := seniorOf(t, env)
	before := env.Balance(env.Config.Underlying, alice)

	env.Perp.Pause()
	_, err := env.MintPerps(alice, units(300))
	assert.ErrorIs(t, err, types.ErrPaused)

	assert.Equal(t, before, env.Balance(env.Config.Underlying, alice))
	assert.True(t, env.Balance(senior, alice).IsZero())

	env.Perp.Unpause()
	_, err = env.MintPerps(alice, units(300))
	assert.NoError(t, err)
}

func TestReserveTokensUpForRollover(t *testing.T) {
	env := newEnv(t)
	senior := seniorOf(t, env)
	_, err := env.MintPerps(alice, units(300))
	require.NoError(t, err)

	assert.Empty(t, env.Perp.GetReserveTokensUpForRollover())

	// a week before maturity the tranche is due for rollover
	env.Advance(21 * day)
	assert.Equal(t, []types.Address{senior}, env.Perp.GetReserveTokensUpForRollover())
}

func TestUpdateStateRedeemsMatureTranches(t *testing.T) {
	env := newEnv(t)
	first := env.Perp.GetDepositBond()
	senior := seniorOf(t, env)
	minted, err := env.MintPerps(alice, units(300))
	require.NoError(t, err)

	env.Advance(28 * day)
	require.NoError(t, env.Perp.UpdateState())

	assert.True(t, first.IsMature())
	assert.NotEqual(t, first.Address(), env.Perp.GetDepositBond().Address())
	assert.False(t, env.Perp.InReserve(senior))
	assert.Equal(t, []types.Address{env.Config.Underlying}, env.Perp.GetReserveTokens())
	assert.Equal(t, sdkmath.NewInt(99_900_000_000), env.Perp.GetReserveTokenBalance(env.Config.Underlying))

	// The mint fee stayed in the reserve, so each perp is now worth a little more than one unit.
	price, err := env.Perp.GetPrice()
	require.NoError(t, err)
	assert.Equal(t, minted, env.Perp.TotalSupply())
	assert.True(t, price.GT(types.PriceOne))
}

func TestRolloverIsVaultOnly(t *testing.T) {
	env := newEnv(t)
	_, err := env.MintPerps(alice, units(300))
	require.NoError(t, err)
	env.Advance(28 * day)
	require.NoError(t, env.Perp.UpdateState())

	senior := seniorOf(t, env)
	_, err = env.Perp.Rollover(alice, senior, env.Config.Underlying, units(1))
	assert.ErrorIs(t, err, types.ErrUnauthorizedCall)
}

func TestRolloverPreview(t *testing.T) {
	env := newEnv(t, func(c *simulations.EnvironmentConfig) { c.Discount = discount.KindClassDefined })
	_, err := env.MintPerps(alice, units(300))
	require.NoError(t, err)
	env.Advance(28 * day)
	require.NoError(t, env.Perp.UpdateState())

	senior := seniorOf(t, env)
	r, err := env.Perp.ComputeRolloverAmt(senior, env.Config.Underlying, units(10))
	require.NoError(t, err)
	assert.Equal(t, units(10), r.TrancheInAmt)
	assert.True(t, r.TokenOutAmt.IsPositive())
	assert.True(t, r.PerpRolloverAmt.IsPositive())

	// the underlying is not a tranche perp accepts
	r, err = env.Perp.ComputeRolloverAmt(env.Config.Underlying, env.Config.Underlying, units(10))
	require.NoError(t, err)
	assert.True(t, r.PerpRolloverAmt.IsZero())

	// a tranche weighed at zero rolls nothing
	require.NoError(t, env.Discount.UpdateTrancheDiscount(senior, sdkmath.ZeroInt()))
	r, err = env.Perp.ComputeRolloverAmt(senior, env.Config.Underlying, units(10))
	require.NoError(t, err)
	assert.Equal(t, types.ZeroRolloverData(), r)
}

func TestRolloverCapsAtAvailableTokenOut(t *testing.T) {
	env := newEnv(t)
	_, err := env.MintPerps(alice, units(300))
	require.NoError(t, err)
	env.Advance(28 * day)
	require.NoError(t, env.Perp.UpdateState())

	senior := seniorOf(t, env)
	available := env.Perp.GetReserveTokenBalance(env.Config.Underlying)
	r, err := env.Perp.ComputeRolloverAmt(senior, env.Config.Underlying, units(500))
	require.NoError(t, err)

	assert.Equal(t, available, r.TokenOutAmt)
	assert.True(t, r.TrancheInAmt.LT(units(500)))
	assert.True(t, r.TrancheInAmt.IsPositive())
}
