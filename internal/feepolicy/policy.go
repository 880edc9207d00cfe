// Package feepolicy prices mint, burn, swap and rollover operations off the deviation ratio between
// the vault's and perp's TVL. Every percentage and ratio shares the types.FeeOne scale.
package feepolicy

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/perpvault/internal/logger"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

var policyLogger = logger.GetForComponent("fee_policy")

var (
	// TargetSRLowerBound and TargetSRUpperBound bound the configurable target subscription ratio.
	TargetSRLowerBound = sdkmath.NewInt(75_000_000)
	TargetSRUpperBound = sdkmath.NewInt(200_000_000)

	// SigmoidBound caps the rollover fee asymptotes at 1% either way.
	SigmoidBound = types.FeeOne.QuoRaw(100)

	// MaxDeviationRatio stands in for an infinite deviation when perp has no TVL.
	MaxDeviationRatio = sdkmath.NewIntWithDecimal(1, 30)
)

// Policy holds validated parameters. It is not safe for concurrent mutation; reads during a call see a
// consistent set because updates replace the whole struct.
type Policy struct {
	params types.FeePolicyParams
}

func New(params types.FeePolicyParams) (*Policy, error) {
	if err := Validate(params); err != nil {
		return nil, err
	}
	return &Policy{params: params}, nil
}

func (p *Policy) Decimals() int                 { return types.FeeDecimals }
func (p *Policy) Params() types.FeePolicyParams { return p.params }

// UpdateParams replaces every parameter, or none if params is invalid.
func (p *Policy) UpdateParams(params types.FeePolicyParams) error {
	if err := Validate(params); err != nil {
		policyLogger.Warn().Err(err).Msg("Rejected fee policy update")
		return err
	}
	p.params = params
	policyLogger.Info().
		Str("targetSR", utils.FormatScaled(params.TargetSubscriptionRatio, types.FeeDecimals)).
		Msg("Fee policy updated")
	return nil
}

func (p *Policy) Snapshot() any        { return p.params }
func (p *Policy) Restore(snapshot any) { p.params = snapshot.(types.FeePolicyParams) }

// ComputeDeviationRatio normalises the vault/perp subscription against the target: 1.0 is at target,
// above means the vault is over-subscribed relative to perp.
func (p *Policy) ComputeDeviationRatio(s types.SubscriptionState) sdkmath.Int {
	if s.SeniorTR >= types.TrancheRatioGranularity || !s.PerpTVL.IsPositive() {
		return MaxDeviationRatio
	}
	juniorTR := sdkmath.NewIntFromUint64(types.TrancheRatioGranularity - s.SeniorTR)
	seniorTR := sdkmath.NewIntFromUint64(s.SeniorTR)

	subscription := utils.MulDiv(s.VaultTVL.Mul(seniorTR), types.FeeOne, s.PerpTVL.Mul(juniorTR))
	return utils.MulDiv(subscription, types.FeeOne, p.params.TargetSubscriptionRatio)
}

// ComputePerpMintFeePerc charges minting while junior capital is scarce (dr at or below target).
func (p *Policy) ComputePerpMintFeePerc(dr sdkmath.Int) sdkmath.Int {
	if dr.LTE(types.FeeOne) {
		return p.params.PerpMintFeePerc
	}
	return sdkmath.ZeroInt()
}

// ComputePerpBurnFeePerc charges burning while junior capital is scarce (dr below target).
func (p *Policy) ComputePerpBurnFeePerc(dr sdkmath.Int) sdkmath.Int {
	if dr.LT(types.FeeOne) {
		return p.params.PerpBurnFeePerc
	}
	return sdkmath.ZeroInt()
}

func (p *Policy) ComputeVaultMintFeePerc(dr sdkmath.Int) sdkmath.Int {
	if dr.GT(types.FeeOne) {
		return p.params.VaultMintFeePerc
	}
	return sdkmath.ZeroInt()
}

func (p *Policy) ComputeVaultBurnFeePerc(dr sdkmath.Int) sdkmath.Int {
	if dr.LT(types.FeeOne) {
		return p.params.VaultBurnFeePerc
	}
	return sdkmath.ZeroInt()
}

// ComputeUnderlyingToPerpSwapFeePerc takes the post-swap deviation ratio. A swap that would push dr
// below the lower bound costs 100%.
func (p *Policy) ComputeUnderlyingToPerpSwapFeePerc(dr1 sdkmath.Int) sdkmath.Int {
	if dr1.LT(p.params.DeviationRatioBoundLower) {
		return types.FeeOne
	}
	return utils.MinInt(p.ComputePerpMintFeePerc(dr1).Add(p.params.VaultUnderlyingToPerpSwapFeePerc), types.FeeOne)
}

// ComputePerpToUnderlyingSwapFeePerc takes the post-swap deviation ratio. A swap that would push dr
// above the upper bound costs 100%.
func (p *Policy) ComputePerpToUnderlyingSwapFeePerc(dr1 sdkmath.Int) sdkmath.Int {
	if dr1.GT(p.params.DeviationRatioBoundUpper) {
		return types.FeeOne
	}
	return utils.MinInt(p.ComputePerpBurnFeePerc(dr1).Add(p.params.VaultPerpToUnderlyingSwapFeePerc), types.FeeOne)
}

func (p *Policy) ComputeMeldFeePerc() sdkmath.Int {
	return p.params.MeldFeePerc
}

func (p *Policy) ComputeDeploymentFee() sdkmath.Int {
	return p.params.VaultDeploymentFee
}

// ComputePerpRolloverFeePerc is a sigmoid in dr, negative (a rebate to the roller) below target.
func (p *Policy) ComputePerpRolloverFeePerc(dr sdkmath.Int) sdkmath.Int {
	rf := p.params.PerpRolloverFee
	y := Sigmoid(toDec(dr), toDec(rf.Lower), toDec(rf.Upper), toDec(rf.Growth))
	return y.MulInt(types.FeeOne).TruncateInt()
}

// ApplyMaturityDecay scales fee linearly by the remaining share of a bond's life.
func ApplyMaturityDecay(fee sdkmath.Int, secondsToMaturity, duration uint64) sdkmath.Int {
	if duration == 0 || secondsToMaturity == 0 {
		return sdkmath.ZeroInt()
	}
	if secondsToMaturity > duration {
		secondsToMaturity = duration
	}
	return utils.MulDivSigned(fee, sdkmath.NewIntFromUint64(secondsToMaturity), sdkmath.NewIntFromUint64(duration))
}

func toDec(v sdkmath.Int) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromInt(v).QuoInt(types.FeeOne)
}

// Validate rejects any out of range parameter.
func Validate(params types.FeePolicyParams) error {
	percs := map[string]sdkmath.Int{
		"perp_mint_fee_perc":                     params.PerpMintFeePerc,
		"perp_burn_fee_perc":                     params.PerpBurnFeePerc,
		"vault_mint_fee_perc":                    params.VaultMintFeePerc,
		"vault_burn_fee_perc":                    params.VaultBurnFeePerc,
		"vault_underlying_to_perp_swap_fee_perc": params.VaultUnderlyingToPerpSwapFeePerc,
		"vault_perp_to_underlying_swap_fee_perc": params.VaultPerpToUnderlyingSwapFeePerc,
		"meld_fee_perc":                          params.MeldFeePerc,
	}
	for name, v := range percs {
		if v.IsNil() || v.IsNegative() || v.GT(types.FeeOne) {
			return fmt.Errorf("%w: %s", types.ErrInvalidPerc, name)
		}
	}

	target := params.TargetSubscriptionRatio
	if target.IsNil() || target.LT(TargetSRLowerBound) || target.GT(TargetSRUpperBound) {
		return fmt.Errorf("%w: target subscription ratio outside [%s, %s]", types.ErrInvalidRange, TargetSRLowerBound, TargetSRUpperBound)
	}

	lower, upper := params.DeviationRatioBoundLower, params.DeviationRatioBoundUpper
	if lower.IsNil() || upper.IsNil() || !lower.IsPositive() || lower.GT(types.FeeOne) || upper.LT(types.FeeOne) {
		return fmt.Errorf("%w: deviation ratio bounds must satisfy 0 < lower <= 1 <= upper", types.ErrInvalidRange)
	}

	rf := params.PerpRolloverFee
	if rf.Lower.IsNil() || rf.Upper.IsNil() || rf.Growth.IsNil() {
		return fmt.Errorf("%w: rollover fee curve is unset", types.ErrInvalidSigmoidAsymptotes)
	}
	if !rf.Lower.IsNegative() || !rf.Upper.IsPositive() ||
		rf.Lower.LT(SigmoidBound.Neg()) || rf.Upper.GT(SigmoidBound) {
		return fmt.Errorf("%w: need -%s <= lower < 0 < upper <= %s", types.ErrInvalidSigmoidAsymptotes, SigmoidBound, SigmoidBound)
	}
	if rf.Growth.IsNegative() {
		return fmt.Errorf("%w: negative rollover fee growth", types.ErrInvalidSigmoidAsymptotes)
	}

	if params.VaultDeploymentFee.IsNil() || params.VaultDeploymentFee.IsNegative() {
		return fmt.Errorf("%w: negative deployment fee", types.ErrInvalidConfig)
	}
	return nil
}
