package vault_test

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
	"github.com/elys-network/perpvault/internal/vault"
)

const (
	alice types.Address = "alice"
	bob   types.Address = "bob"
	carol types.Address = "carol"
	dave  types.Address = "dave"
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
	for _, u := range []types.Address{alice, bob, carol, dave} {
		require.NoError(t, env.Faucet(u, units(10_000)))
	}
	return env
}

// seeded has bob's vaultAmt units in the vault and alice holding 99.9 perps minted from 300 units.
func seeded(t *testing.T, vaultAmt int64, mutate ...func(*simulations.EnvironmentConfig)) *simulations.Environment {
	t.Helper()
	env := newEnv(t, mutate...)
	_, err := env.Vault.Deposit(bob, units(vaultAmt))
	require.NoError(t, err)
	minted, err := env.MintPerps(alice, units(300))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(99_900_000_000), minted)
	return env
}

func tvl(t *testing.T, v *vault.Vault) sdkmath.Int {
	t.Helper()
	out, err := v.GetTVL()
	require.NoError(t, err)
	return out
}

func TestDepositRedeemRoundTrip(t *testing.T) {
	env := newEnv(t)

	notes, err := env.Vault.Deposit(alice, units(1_000))
	require.NoError(t, err)
	assert.Equal(t, units(1_000).Mul(types.InitialRate), notes)
	assert.Equal(t, units(1_000), tvl(t, env.Vault))

	more, err := env.Vault.Deposit(bob, units(500))
	require.NoError(t, err)
	assert.Equal(t, notes.QuoRaw(2), more)

	coins, err := env.Vault.Redeem(alice, notes)
	require.NoError(t, err)
	assert.Equal(t, units(1_000), coins.AmountOf(env.Config.Underlying.String()))
	assert.Equal(t, units(10_000), env.Balance(env.Config.Underlying, alice))
	assert.Equal(t, more, env.Vault.TotalSupply())

	_, err = env.Vault.Redeem(alice, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)
	_, err = env.Vault.Deposit(alice, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, types.ErrInvalidAmount)
}

func TestDeployRollsSeniorIntoPerp(t *testing.T) {
	env := seeded(t, 1_000)
	oldSenior, err := env.Perp.GetDepositTranche()
	require.NoError(t, err)

	env.Advance(21 * day)
	receipt, err := env.Vault.Deploy()
	require.NoError(t, err)

	newBond := env.Perp.GetDepositBond()
	newSenior := newBond.Tranches()[0].Token
	assert.Equal(t, newBond.Address(), receipt.Bond)
	assert.NotEqual(t, oldSenior, newSenior)
	assert.Equal(t, vault.PhaseDeployed, env.Vault.Phase())

	assert.True(t, receipt.TrancheAmt.GTE(env.Vault.Config().MinDeploymentAmt))
	assert.True(t, receipt.TrancheAmt.LT(units(990)))
	assert.LessOrEqual(t, receipt.Rollover.Iterations, 2)
	require.NotEmpty(t, receipt.Rollover.Pairs)

	sum := sdkmath.ZeroInt()
	for _, p := range receipt.Rollover.Pairs {
		sum = sum.Add(p.PerpRolloverAmt)
	}
	assert.Equal(t, receipt.Rollover.TotalPerpRolledOver, sum)
	assert.True(t, sum.IsPositive())

	assert.True(t, env.Perp.InReserve(newSenior))
	assert.True(t, env.Vault.IsDeployed(oldSenior))
	assert.True(t, env.Vault.IsDeployed(newBond.Tranches()[1].Token))
}

func TestRecoverRedeemsMatureTranches(t *testing.T) {
	env := seeded(t, 1_000)
	oldSenior, err := env.Perp.GetDepositTranche()
	require.NoError(t, err)

	env.Advance(21 * day)
	receipt, err := env.Vault.Deploy()
	require.NoError(t, err)
	rolledOut := sdkmath.ZeroInt()
	for _, p := range receipt.Rollover.Pairs {
		rolledOut = rolledOut.Add(p.TokenOutAmt)
	}
	underlyingBefore := env.Balance(env.Config.Underlying, env.Vault.Address())

	env.Advance(8 * day)
	n, err := env.Vault.Recover()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
	assert.Equal(t, vault.PhaseIdle, env.Vault.Phase())

	assert.False(t, env.Vault.IsDeployed(oldSenior))
	assert.Equal(t, underlyingBefore.Add(rolledOut), env.Balance(env.Config.Underlying, env.Vault.Address()))

	_, err = env.Vault.RecoverToken(oldSenior)
	assert.ErrorIs(t, err, types.ErrNotReserveMember)
}

func TestDeployWithoutRolloverCapacityIsRetryable(t *testing.T) {
	env := newEnv(t)
	_, err := env.Vault.Deposit(bob, units(1_000))
	require.NoError(t, err)
	holdings := env.Vault.Holdings().String()

	_, err = env.Vault.Deploy()
	assert.ErrorIs(t, err, types.ErrNoRolloverAvailable)
	assert.True(t, types.IsRetryable(err))

	// the failed deploy left nothing behind
	assert.Equal(t, vault.PhaseIdle, env.Vault.Phase())
	assert.Equal(t, holdings, env.Vault.Holdings().String())
	assert.Empty(t, env.Vault.DeployedAssets())
}

func TestDeployBelowMinimum(t *testing.T) {
	env := newEnv(t)
	_, err := env.Vault.Deposit(bob, units(50))
	require.NoError(t, err)

	_, err = env.Vault.Deploy()
	assert.ErrorIs(t, err, types.ErrInsufficientDeployment)
}

func TestRolloverLoopIsBounded(t *testing.T) {
	env := seeded(t, 1_000)
	oldSenior, err := env.Perp.GetDepositTranche()
	require.NoError(t, err)

	env.Advance(28 * day)
	require.NoError(t, env.Perp.UpdateState())
	b := env.Perp.GetDepositBond()
	_, err = b.Deposit(env.Vault.Address(), units(30))
	require.NoError(t, err)
	senior, junior := b.Tranches()[0].Token, b.Tranches()[1].Token
	seniorAmt := env.Balance(senior, env.Vault.Address())
	underlyingBefore := env.Balance(env.Config.Underlying, env.Vault.Address())

	tranches := []types.Address{senior, junior}
	tokens := []types.Address{oldSenior, env.Config.Underlying}
	report, err := env.Vault.RolloverPairs(tranches, tokens)
	require.NoError(t, err)

	assert.LessOrEqual(t, report.Iterations, len(tranches)+len(tokens))
	require.Len(t, report.Pairs, 1)
	pair := report.Pairs[0]
	assert.Equal(t, senior, pair.TrancheIn)
	assert.Equal(t, env.Config.Underlying, pair.TokenOut)
	assert.Equal(t, seniorAmt, pair.TrancheInAmt)
	assert.Equal(t, pair.PerpRolloverAmt, report.TotalPerpRolledOver)

	assert.True(t, env.Balance(senior, env.Vault.Address()).IsZero())
	assert.Equal(t, underlyingBefore.Add(pair.TokenOutAmt), env.Balance(env.Config.Underlying, env.Vault.Address()))
	assert.Equal(t, seniorAmt, env.Perp.GetReserveTokenBalance(senior))
}

func classDefined(c *simulations.EnvironmentConfig) { c.Discount = discount.KindClassDefined }

func TestRolloverSkipsZeroDiscountTranche(t *testing.T) {
	env := seeded(t, 1_000, classDefined)
	env.Advance(28 * day)
	require.NoError(t, env.Perp.UpdateState())

	b := env.Perp.GetDepositBond()
	_, err := b.Deposit(env.Vault.Address(), units(30))
	require.NoError(t, err)
	senior, junior := b.Tranches()[0].Token, b.Tranches()[1].Token
	require.NoError(t, env.Discount.UpdateTrancheDiscount(senior, sdkmath.ZeroInt()))

	seniorAmt := env.Balance(senior, env.Vault.Address())
	juniorAmt := env.Balance(junior, env.Vault.Address())
	vaultUnderlying := env.Balance(env.Config.Underlying, env.Vault.Address())
	reserveUnderlying := env.Perp.GetReserveTokenBalance(env.Config.Underlying)
	require.True(t, seniorAmt.IsPositive())
	require.True(t, reserveUnderlying.IsPositive())

	tranches := []types.Address{senior, junior}
	tokens := []types.Address{env.Config.Underlying}
	report, err := env.Vault.RolloverPairs(tranches, tokens)
	require.NoError(t, err)

	// both tranches preview to nothing, so the tranche cursor walks past each of them once
	assert.Equal(t, len(tranches), report.Iterations)
	assert.LessOrEqual(t, report.Iterations, len(tranches)+len(tokens))
	assert.Empty(t, report.Pairs)
	assert.True(t, report.TotalPerpRolledOver.IsZero())

	assert.Equal(t, seniorAmt, env.Balance(senior, env.Vault.Address()))
	assert.Equal(t, juniorAmt, env.Balance(junior, env.Vault.Address()))
	assert.Equal(t, vaultUnderlying, env.Balance(env.Config.Underlying, env.Vault.Address()))
	assert.Equal(t, reserveUnderlying, env.Perp.GetReserveTokenBalance(env.Config.Underlying))
	assert.False(t, env.Perp.InReserve(senior))
}

func TestDeployIntoZeroDiscountTrancheRollsNothing(t *testing.T) {
	env := seeded(t, 1_000, classDefined)
	oldSenior, err := env.Perp.GetDepositTranche()
	require.NoError(t, err)
	require.NoError(t, env.Discount.UpdateTrancheDiscount(oldSenior, sdkmath.ZeroInt()))

	env.Advance(21 * day)
	holdings := env.Vault.Holdings().String()
	reserve := env.Perp.GetReserveTokenBalance(oldSenior)

	_, err = env.Vault.Deploy()
	assert.ErrorIs(t, err, types.ErrNoRolloverAvailable)
	assert.True(t, types.IsRetryable(err))

	assert.Equal(t, vault.PhaseIdle, env.Vault.Phase())
	assert.Equal(t, holdings, env.Vault.Holdings().String())
	assert.Equal(t, reserve, env.Perp.GetReserveTokenBalance(oldSenior))
	assert.Empty(t, env.Vault.DeployedAssets())
}

func TestSwapUnderlyingForPerps(t *testing.T) {
	env := seeded(t, 300)
	before := tvl(t, env.Vault)

	out, err := env.Vault.SwapUnderlyingForPerps(carol, units(10))
	require.NoError(t, err)
	// 0.5% swap fee, no perp mint fee above target
	assert.Equal(t, sdkmath.NewInt(9_950_000_000), out)
	assert.Equal(t, out, env.Balance(env.Perp.Address(), carol))
	assert.Equal(t, before.Add(sdkmath.NewInt(50_000_000)), tvl(t, env.Vault))

	_, err = env.Vault.SwapUnderlyingForPerps(carol, sdkmath.NewInt(1))
	assert.ErrorIs(t, err, types.ErrSwapBelowMinimum)
}

func TestSwapPerpsForUnderlying(t *testing.T) {
	env := seeded(t, 300)
	before := tvl(t, env.Vault)
	underlying := env.Balance(env.Config.Underlying, alice)

	out, err := env.Vault.SwapPerpsForUnderlying(alice, units(10))
	require.NoError(t, err)
	// 0.5% swap fee, no perp burn fee above target
	assert.Equal(t, sdkmath.NewInt(9_950_000_000), out)
	assert.Equal(t, underlying.Add(out), env.Balance(env.Config.Underlying, alice))
	assert.Equal(t, before.Add(sdkmath.NewInt(50_000_000)), tvl(t, env.Vault))
}

func TestSwapBlockedOutsideDeviationBounds(t *testing.T) {
	env := seeded(t, 1_000)
	perps := env.Balance(env.Perp.Address(), alice)

	_, err := env.Vault.SwapPerpsForUnderlying(alice, units(10))
	assert.ErrorIs(t, err, types.ErrSwapBlocked)
	assert.Equal(t, perps, env.Balance(env.Perp.Address(), alice))
}

func TestMeld(t *testing.T) {
	env := seeded(t, 300)
	_, err := env.Vault.SwapUnderlyingForPerps(carol, units(10))
	require.NoError(t, err)

	b := env.Perp.GetDepositBond()
	senior := b.Tranches()[0].Token
	_, err = b.Deposit(dave, units(30))
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(9_990_000_000), env.Balance(senior, dave))
	before := tvl(t, env.Vault)

	out, err := env.Vault.Meld(dave, senior, units(5))
	require.NoError(t, err)
	// only the part of the 5 units that fits a proportional set is taken
	assert.Equal(t, sdkmath.NewInt(4_974_999_995), out)
	assert.Equal(t, sdkmath.NewInt(4_990_000_005), env.Balance(senior, dave))
	assert.True(t, tvl(t, env.Vault).GTE(before))

	_, err = env.Vault.Meld(dave, "nobody/tr0", units(5))
	assert.ErrorIs(t, err, types.ErrUnexpectedAsset)
}

func TestPausedVaultRejectsCalls(t *testing.T) {
	env := newEnv(t)
	env.Vault.Pause()

	_, err := env.Vault.Deposit(alice, units(10))
	assert.ErrorIs(t, err, types.ErrPaused)
	assert.Equal(t, types.ClassInput, types.ClassOf(err))
	_, err = env.Vault.Deploy()
	assert.ErrorIs(t, err, types.ErrPaused)

	env.Vault.Unpause()
	_, err = env.Vault.Deposit(alice, units(10))
	assert.NoError(t, err)
}

func TestCheckTVL(t *testing.T) {
	env := newEnv(t)
	_, err := env.Vault.Deposit(alice, units(10))
	require.NoError(t, err)

	current := tvl(t, env.Vault)
	assert.NoError(t, env.Vault.CheckTVL(current))
	assert.ErrorIs(t, env.Vault.CheckTVL(current.AddRaw(1)), types.ErrTVLDecreased)
}
