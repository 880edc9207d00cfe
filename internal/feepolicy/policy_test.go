package feepolicy

import (
	"math/rand"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/perpvault/internal/types"
)

func perc(p int64) sdkmath.Int { return sdkmath.NewInt(p) }

func defaultParams() types.FeePolicyParams {
	return types.FeePolicyParams{
		TargetSubscriptionRatio:          perc(133_000_000),
		DeviationRatioBoundLower:         perc(75_000_000),
		DeviationRatioBoundUpper:         perc(200_000_000),
		PerpMintFeePerc:                  perc(100_000),
		PerpBurnFeePerc:                  perc(200_000),
		VaultMintFeePerc:                 perc(300_000),
		VaultBurnFeePerc:                 perc(400_000),
		VaultUnderlyingToPerpSwapFeePerc: perc(500_000),
		VaultPerpToUnderlyingSwapFeePerc: perc(600_000),
		MeldFeePerc:                      perc(700_000),
		PerpRolloverFee: types.SigmoidParams{
			Lower:  perc(-250_000),
			Upper:  perc(830_000),
			Growth: perc(500_000_000),
		},
		VaultDeploymentFee: sdkmath.ZeroInt(),
	}
}

func newPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := New(defaultParams())
	require.NoError(t, err)
	return p
}

func state(perpTVL, vaultTVL int64, seniorTR uint64) types.SubscriptionState {
	return types.SubscriptionState{PerpTVL: sdkmath.NewInt(perpTVL), VaultTVL: sdkmath.NewInt(vaultTVL), SeniorTR: seniorTR}
}

func TestComputeDeviationRatio(t *testing.T) {
	p := newPolicy(t)

	// senior 200 / junior 800: vault*200 / (perp*800) = 1.33 is exactly at target
	dr := p.ComputeDeviationRatio(state(4000, 21280, 200))
	assert.Equal(t, types.FeeOne.Int64(), dr.Int64())

	dr = p.ComputeDeviationRatio(state(4000, 42560, 200))
	assert.Equal(t, 2*types.FeeOne.Int64(), dr.Int64())

	assert.True(t, MaxDeviationRatio.Equal(p.ComputeDeviationRatio(state(0, 100, 200))))
	assert.True(t, MaxDeviationRatio.Equal(p.ComputeDeviationRatio(state(100, 100, 1000))))
}

func TestDeviationRatioMonotonicInVaultTVL(t *testing.T) {
	p := newPolicy(t)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 300; i++ {
		perpTVL := rng.Int63n(1e15) + 1
		seniorTR := uint64(rng.Intn(999) + 1)
		v1 := rng.Int63n(1e15)
		v2 := v1 + rng.Int63n(1e12)

		dr1 := p.ComputeDeviationRatio(state(perpTVL, v1, seniorTR))
		dr2 := p.ComputeDeviationRatio(state(perpTVL, v2, seniorTR))
		require.False(t, dr1.IsNegative())
		assert.True(t, dr2.GTE(dr1), "dr must not fall as vault tvl grows")
	}
}

func TestMintBurnFees(t *testing.T) {
	p := newPolicy(t)
	below, at, above := perc(90_000_000), types.FeeOne, perc(110_000_000)

	assert.Equal(t, int64(100_000), p.ComputePerpMintFeePerc(below).Int64())
	assert.Equal(t, int64(100_000), p.ComputePerpMintFeePerc(at).Int64())
	assert.True(t, p.ComputePerpMintFeePerc(above).IsZero())

	assert.Equal(t, int64(200_000), p.ComputePerpBurnFeePerc(below).Int64())
	assert.True(t, p.ComputePerpBurnFeePerc(at).IsZero())
	assert.True(t, p.ComputePerpBurnFeePerc(above).IsZero())

	assert.Equal(t, int64(300_000), p.ComputeVaultMintFeePerc(above).Int64())
	assert.True(t, p.ComputeVaultMintFeePerc(below).IsZero())
	assert.Equal(t, int64(400_000), p.ComputeVaultBurnFeePerc(below).Int64())
	assert.True(t, p.ComputeVaultBurnFeePerc(at).IsZero())
}

func TestPerpBurnFeeRisesBelowTarget(t *testing.T) {
	p := newPolicy(t)
	tests := []struct {
		name     string
		dr       sdkmath.Int
		expected int64
	}{
		{"under-subscribed", perc(50_000_000), 200_000},
		{"at target", types.FeeOne, 0},
		{"over-subscribed", perc(150_000_000), 0},
		{"no perp tvl", MaxDeviationRatio, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, p.ComputePerpBurnFeePerc(tc.dr).Int64())
		})
	}
}

func TestSwapFees(t *testing.T) {
	p := newPolicy(t)

	assert.True(t, types.FeeOne.Equal(p.ComputeUnderlyingToPerpSwapFeePerc(perc(70_000_000))))
	assert.Equal(t, int64(600_000), p.ComputeUnderlyingToPerpSwapFeePerc(perc(90_000_000)).Int64())
	assert.Equal(t, int64(500_000), p.ComputeUnderlyingToPerpSwapFeePerc(perc(150_000_000)).Int64())

	assert.True(t, types.FeeOne.Equal(p.ComputePerpToUnderlyingSwapFeePerc(perc(210_000_000))))
	assert.Equal(t, int64(600_000), p.ComputePerpToUnderlyingSwapFeePerc(perc(150_000_000)).Int64())
	assert.Equal(t, int64(800_000), p.ComputePerpToUnderlyingSwapFeePerc(perc(90_000_000)).Int64())
}

func TestRolloverFeeCurve(t *testing.T) {
	p := newPolicy(t)

	atTarget := p.ComputePerpRolloverFeePerc(types.FeeOne)
	assert.LessOrEqual(t, atTarget.Abs().Int64(), int64(1), "zero at target")

	prev := p.ComputePerpRolloverFeePerc(sdkmath.ZeroInt())
	assert.True(t, prev.IsNegative(), "rebate when under-subscribed")
	for dr := int64(10_000_000); dr <= 500_000_000; dr += 10_000_000 {
		fee := p.ComputePerpRolloverFeePerc(perc(dr))
		assert.True(t, fee.GTE(prev), "curve is non-decreasing at dr=%d", dr)
		assert.True(t, fee.GTE(perc(-250_000)) && fee.LTE(perc(830_000)))
		prev = fee
	}
	assert.True(t, p.ComputePerpRolloverFeePerc(perc(200_000_000)).IsPositive())

	// huge deviation saturates at the upper asymptote
	assert.Equal(t, int64(830_000), p.ComputePerpRolloverFeePerc(MaxDeviationRatio).Int64())
}

func TestTwoPower(t *testing.T) {
	tests := []struct {
		exp      string
		expected string
	}{
		{"0", "1"},
		{"1", "2"},
		{"10", "1024"},
		{"-1", "0.5"},
		{"0.5", "1.414213562373095049"},
		{"2.5", "5.656854249492380195"},
	}
	for _, tc := range tests {
		got := TwoPower(sdkmath.LegacyMustNewDecFromStr(tc.exp))
		want := sdkmath.LegacyMustNewDecFromStr(tc.expected)
		diff := got.Sub(want).Abs()
		assert.True(t, diff.LTE(sdkmath.LegacyNewDecWithPrec(1, 12)), "2^%s = %s, want %s", tc.exp, got, tc.expected)
	}
}

func TestApplyMaturityDecay(t *testing.T) {
	fee := perc(-400_000)
	assert.Equal(t, int64(-100_000), ApplyMaturityDecay(fee, 25, 100).Int64())
	assert.Equal(t, int64(-400_000), ApplyMaturityDecay(fee, 200, 100).Int64())
	assert.True(t, ApplyMaturityDecay(fee, 0, 100).IsZero())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.FeePolicyParams)
		err    error
	}{
		{"percentage above one", func(p *types.FeePolicyParams) { p.PerpMintFeePerc = types.FeeOne.AddRaw(1) }, types.ErrInvalidPerc},
		{"negative percentage", func(p *types.FeePolicyParams) { p.MeldFeePerc = perc(-1) }, types.ErrInvalidPerc},
		{"target too low", func(p *types.FeePolicyParams) { p.TargetSubscriptionRatio = perc(50_000_000) }, types.ErrInvalidRange},
		{"bounds inverted", func(p *types.FeePolicyParams) { p.DeviationRatioBoundLower = perc(150_000_000) }, types.ErrInvalidRange},
		{"lower asymptote positive", func(p *types.FeePolicyParams) { p.PerpRolloverFee.Lower = perc(1) }, types.ErrInvalidSigmoidAsymptotes},
		{"upper asymptote too large", func(p *types.FeePolicyParams) { p.PerpRolloverFee.Upper = perc(2_000_000) }, types.ErrInvalidSigmoidAsymptotes},
		{"negative growth", func(p *types.FeePolicyParams) { p.PerpRolloverFee.Growth = perc(-1) }, types.ErrInvalidSigmoidAsymptotes},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := defaultParams()
			tc.mutate(&params)
			err := Validate(params)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, types.ClassConfiguration, types.ClassOf(err))
		})
	}
}

func TestRejectedUpdateKeepsOldParams(t *testing.T) {
	p := newPolicy(t)
	bad := defaultParams()
	bad.PerpRolloverFee.Lower = perc(500_000)
	require.Error(t, p.UpdateParams(bad))
	assert.Equal(t, int64(-250_000), p.Params().PerpRolloverFee.Lower.Int64())

	good := defaultParams()
	good.PerpMintFeePerc = sdkmath.ZeroInt()
	require.NoError(t, p.UpdateParams(good))
	assert.True(t, p.Params().PerpMintFeePerc.IsZero())
	assert.Equal(t, types.FeeDecimals, p.Decimals())
}
