package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

// feePolicyFile mirrors types.FeePolicyParams with human readable decimals ("1.33", "-0.0025").
// Unset keys keep the base value.
type feePolicyFile struct {
	TargetSubscriptionRatio          *string `toml:"target_subscription_ratio"`
	DeviationRatioBoundLower         *string `toml:"deviation_ratio_bound_lower"`
	DeviationRatioBoundUpper         *string `toml:"deviation_ratio_bound_upper"`
	PerpMintFeePerc                  *string `toml:"perp_mint_fee_perc"`
	PerpBurnFeePerc                  *string `toml:"perp_burn_fee_perc"`
	VaultMintFeePerc                 *string `toml:"vault_mint_fee_perc"`
	VaultBurnFeePerc                 *string `toml:"vault_burn_fee_perc"`
	VaultUnderlyingToPerpSwapFeePerc *string `toml:"vault_underlying_to_perp_swap_fee_perc"`
	VaultPerpToUnderlyingSwapFeePerc *string `toml:"vault_perp_to_underlying_swap_fee_perc"`
	MeldFeePerc                      *string `toml:"meld_fee_perc"`

	// VaultDeploymentFee is in underlying units.
	VaultDeploymentFee *string `toml:"vault_deployment_fee"`

	PerpRolloverFee struct {
		Lower  *string `toml:"lower"`
		Upper  *string `toml:"upper"`
		Growth *string `toml:"growth"`
	} `toml:"perp_rollover_fee"`
}

// LoadFeePolicyFile overlays the TOML file at path onto base. Validation is left to the fee policy.
func LoadFeePolicyFile(path string, base types.FeePolicyParams) (types.FeePolicyParams, error) {
	var f feePolicyFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return base, fmt.Errorf("failed to decode fee policy file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return base, fmt.Errorf("%w: unknown keys in %s: %v", types.ErrInvalidConfig, path, undecoded)
	}
	return overlayFeePolicy(f, base)
}

// ParseFeePolicy overlays a TOML document onto base.
func ParseFeePolicy(doc string, base types.FeePolicyParams) (types.FeePolicyParams, error) {
	var f feePolicyFile
	md, err := toml.Decode(doc, &f)
	if err != nil {
		return base, fmt.Errorf("failed to decode fee policy: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return base, fmt.Errorf("%w: unknown keys: %v", types.ErrInvalidConfig, undecoded)
	}
	return overlayFeePolicy(f, base)
}

func overlayFeePolicy(f feePolicyFile, base types.FeePolicyParams) (types.FeePolicyParams, error) {
	out := base
	fields := []struct {
		name      string
		value     *string
		target    *sdkmath.Int
		precision int
	}{
		{"target_subscription_ratio", f.TargetSubscriptionRatio, &out.TargetSubscriptionRatio, types.FeeDecimals},
		{"deviation_ratio_bound_lower", f.DeviationRatioBoundLower, &out.DeviationRatioBoundLower, types.FeeDecimals},
		{"deviation_ratio_bound_upper", f.DeviationRatioBoundUpper, &out.DeviationRatioBoundUpper, types.FeeDecimals},
		{"perp_mint_fee_perc", f.PerpMintFeePerc, &out.PerpMintFeePerc, types.FeeDecimals},
		{"perp_burn_fee_perc", f.PerpBurnFeePerc, &out.PerpBurnFeePerc, types.FeeDecimals},
		{"vault_mint_fee_perc", f.VaultMintFeePerc, &out.VaultMintFeePerc, types.FeeDecimals},
		{"vault_burn_fee_perc", f.VaultBurnFeePerc, &out.VaultBurnFeePerc, types.FeeDecimals},
		{"vault_underlying_to_perp_swap_fee_perc", f.VaultUnderlyingToPerpSwapFeePerc, &out.VaultUnderlyingToPerpSwapFeePerc, types.FeeDecimals},
		{"vault_perp_to_underlying_swap_fee_perc", f.VaultPerpToUnderlyingSwapFeePerc, &out.VaultPerpToUnderlyingSwapFeePerc, types.FeeDecimals},
		{"meld_fee_perc", f.MeldFeePerc, &out.MeldFeePerc, types.FeeDecimals},
		{"vault_deployment_fee", f.VaultDeploymentFee, &out.VaultDeploymentFee, UnderlyingDecimals},
		{"perp_rollover_fee.lower", f.PerpRolloverFee.Lower, &out.PerpRolloverFee.Lower, types.FeeDecimals},
		{"perp_rollover_fee.upper", f.PerpRolloverFee.Upper, &out.PerpRolloverFee.Upper, types.FeeDecimals},
		{"perp_rollover_fee.growth", f.PerpRolloverFee.Growth, &out.PerpRolloverFee.Growth, types.FeeDecimals},
	}
	for _, field := range fields {
		if field.value == nil {
			continue
		}
		v, err := utils.ParseScaled(*field.value, field.precision)
		if err != nil {
			return base, fmt.Errorf("%w: %s: %w", types.ErrInvalidConfig, field.name, err)
		}
		*field.target = v
		log.Debug().Str("field", field.name).Str("value", *field.value).Msg("Fee policy override")
	}
	return out, nil
}
