/*

This file contains the types for the fee policy and the subscription state it is evaluated against.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// SubscriptionState is the on-demand snapshot of perp and vault TVL the fee policy reads.
// It is never cached across calls.
type SubscriptionState struct {
	PerpTVL  sdkmath.Int `json:"perp_tvl"`
	VaultTVL sdkmath.Int `json:"vault_tvl"`
	SeniorTR uint64      `json:"senior_tr"` // Senior tranche ratio of the deposit bond, over TrancheRatioGranularity.
}

// SigmoidParams shapes the rollover fee curve. All values are on the FeeOne scale, Lower is negative.
type SigmoidParams struct {
	Lower  sdkmath.Int `json:"lower"`
	Upper  sdkmath.Int `json:"upper"`
	Growth sdkmath.Int `json:"growth"`
}

// FeePolicyParams holds every owner-set fee parameter. Percentages and ratios are on the FeeOne scale.
type FeePolicyParams struct {
	TargetSubscriptionRatio  sdkmath.Int `json:"target_subscription_ratio"`   // Vault/perp subscription considered "at target".
	DeviationRatioBoundLower sdkmath.Int `json:"deviation_ratio_bound_lower"` // Below this, underlying->perp swaps are blocked.
	DeviationRatioBoundUpper sdkmath.Int `json:"deviation_ratio_bound_upper"` // Above this, perp->underlying swaps are blocked.

	PerpMintFeePerc                  sdkmath.Int `json:"perp_mint_fee_perc"`
	PerpBurnFeePerc                  sdkmath.Int `json:"perp_burn_fee_perc"`
	VaultMintFeePerc                 sdkmath.Int `json:"vault_mint_fee_perc"`
	VaultBurnFeePerc                 sdkmath.Int `json:"vault_burn_fee_perc"`
	VaultUnderlyingToPerpSwapFeePerc sdkmath.Int `json:"vault_underlying_to_perp_swap_fee_perc"`
	VaultPerpToUnderlyingSwapFeePerc sdkmath.Int `json:"vault_perp_to_underlying_swap_fee_perc"`
	MeldFeePerc                      sdkmath.Int `json:"meld_fee_perc"`

	PerpRolloverFee SigmoidParams `json:"perp_rollover_fee"`

	// VaultDeploymentFee is a fixed amount of underlying paid to the fee collector on every deploy.
	VaultDeploymentFee sdkmath.Int `json:"vault_deployment_fee"`
}
