/*

This file contains the default parameters for the perp and vault engine.

These parameters are designed for a collateral with 9 decimals that rebases daily by a few percent.
Each value has been chosen to balance the vault's capital efficiency against perp's stability.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/perpvault/internal/types"
)

// UnderlyingDecimals is the precision of the collateral denom.
const UnderlyingDecimals = 9

// EngineParameters configures bonds, perp's reserve and the vault's deployment thresholds.
type EngineParameters struct {
	TrancheRatios     []uint64      `json:"tranche_ratios"`
	BondIssueInterval time.Duration `json:"bond_issue_interval"`
	BondDuration      time.Duration `json:"bond_duration"`

	MinTrancheMaturity time.Duration `json:"min_tranche_maturity"`
	MaxTrancheMaturity time.Duration `json:"max_tranche_maturity"`
	MaxReserveCount    int           `json:"max_reserve_count"`

	MaxDeployedCount int         `json:"max_deployed_count"`
	MinDeploymentAmt sdkmath.Int `json:"min_deployment_amt"`
	MinUnderlyingBal sdkmath.Int `json:"min_underlying_bal"`
	TrancheDustAmt   sdkmath.Int `json:"tranche_dust_amt"`
	MinSwapAmt       sdkmath.Int `json:"min_swap_amt"`
	MaxRefinements   int         `json:"max_refinements"`
}

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, UnderlyingDecimals)
}

func perc(p int64) sdkmath.Int { return sdkmath.NewInt(p) }

// DefaultEngineParameters provides the baseline engine configuration.
func DefaultEngineParameters() EngineParameters {
	return EngineParameters{
		TrancheRatios: []uint64{333, 667}, // One senior, one junior.
		// Rationale: a third of every deposit becomes the senior perp accepts, two thirds stay with the
		// vault as the junior that absorbs rebase losses first.

		BondIssueInterval: 7 * 24 * time.Hour, // A new bond every week.
		BondDuration:      28 * 24 * time.Hour, // Bonds mature after four weeks.
		// Rationale: four overlapping bonds keep perp's reserve rotating weekly without fragmenting it.

		MinTrancheMaturity: 7 * 24 * time.Hour,
		MaxTrancheMaturity: 28 * 24 * time.Hour,
		// Rationale: a bond is accepted for deposit while it has between one and four weeks left and
		// is rolled out in its last week.

		MaxReserveCount: 16,
		// Rationale: four live bonds with headroom for stragglers; well under the hard cap.

		MaxDeployedCount: types.MaxDeployedCount,

		MinDeploymentAmt: units(100), // Tranche at least 100 units per deploy.
		// Rationale: smaller deploys spend more on rounding dust than they earn in rollover fees.

		MinUnderlyingBal: units(10), // Keep 10 units liquid.
		// Rationale: a buffer for swaps and redemptions between deploys.

		TrancheDustAmt: sdkmath.NewInt(1_000), // 1e-6 units.
		// Rationale: below this a proportional redemption rounds to nothing.

		MinSwapAmt: units(1),
		// Rationale: swaps smaller than one unit cannot pay for their own rounding.

		MaxRefinements: 8,
		// Rationale: the deploy amount converges in one or two passes; eight bounds the worst case.
	}
}

// DefaultFeePolicy provides a baseline set of fee policy parameters.
// These values are used if no active parameters are found in the database during initialization.
func DefaultFeePolicy() types.FeePolicyParams {
	return types.FeePolicyParams{
		TargetSubscriptionRatio: perc(133_000_000), // 1.33
		// Rationale: the vault holds 33% more junior than perp's senior needs as a loss buffer.

		DeviationRatioBoundLower: perc(75_000_000),  // 0.75
		DeviationRatioBoundUpper: perc(200_000_000), // 2.0
		// Rationale: swaps that would leave the system this far from target are blocked outright.

		PerpMintFeePerc: perc(100_000), // 0.1%
		PerpBurnFeePerc: perc(100_000), // 0.1%
		// Rationale: small enough not to deter holders, large enough to cover rounding.

		VaultMintFeePerc: sdkmath.ZeroInt(),
		VaultBurnFeePerc: perc(100_000), // 0.1%
		// Rationale: deposits are always welcome; withdrawing while under-subscribed pays a little.

		VaultUnderlyingToPerpSwapFeePerc: perc(500_000), // 0.5%
		VaultPerpToUnderlyingSwapFeePerc: perc(500_000), // 0.5%
		// Rationale: the vault earns on instant liquidity; the fee also keeps swaps TVL positive.

		MeldFeePerc: perc(500_000), // 0.5%

		PerpRolloverFee: types.SigmoidParams{
			Lower:  perc(-250_000),    // -0.25% rebate when the vault is scarce.
			Upper:  perc(830_000),     // 0.83% charge when the vault is abundant.
			Growth: perc(500_000_000), // 5.0
		},
		// Rationale: rollover is the vault's yield; the curve pushes subscription back to target.

		VaultDeploymentFee: sdkmath.ZeroInt(),
	}
}
