package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

// ComputeMintAmt previews the notes minted for depositing amt of underlying, net of the vault mint fee.
func (v *Vault) ComputeMintAmt(amt sdkmath.Int) (sdkmath.Int, error) {
	if !amt.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deposit must be positive", types.ErrInvalidAmount)
	}
	s, err := v.SubscriptionState()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	notes := amt.Mul(types.InitialRate)
	if supply := v.TotalSupply(); supply.IsPositive() {
		if !s.VaultTVL.IsPositive() {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s notes outstanding against no value", types.ErrUnacceptableDeposit, supply)
		}
		notes = utils.MulDiv(amt, supply, s.VaultTVL)
	}

	s.VaultTVL = s.VaultTVL.Add(amt)
	policy := v.perp.FeePolicy()
	feePerc := policy.ComputeVaultMintFeePerc(policy.ComputeDeviationRatio(s))
	return utils.ApplyFee(notes, feePerc, types.FeeOne), nil
}

// Deposit takes amt of underlying from user and mints notes.
func (v *Vault) Deposit(user types.Address, amt sdkmath.Int) (sdkmath.Int, error) {
	minted := sdkmath.ZeroInt()
	err := v.mutate(func() error {
		notes, err := v.ComputeMintAmt(amt)
		if err != nil {
			return err
		}
		if !notes.IsPositive() {
			return fmt.Errorf("%w: deposit mints no notes", types.ErrInvalidAmount)
		}
		if err := v.ledger.Transfer(v.underlying(), user, v.cfg.Address, amt); err != nil {
			return err
		}
		if err := v.sync(v.underlying()); err != nil {
			return err
		}
		if err := v.ledger.Mint(v.cfg.Address, user, notes); err != nil {
			return err
		}
		v.ledger.EmitEvent(sdk.NewEvent(types.EventTypeDeposit,
			sdk.NewAttribute(types.AttributeKeyOwner, v.cfg.Address.String()),
			sdk.NewAttribute(types.AttributeKeySender, user.String()),
			sdk.NewAttribute(types.AttributeKeyAmount, amt.String()),
			sdk.NewAttribute(types.AttributeKeyMinted, notes.String()),
		))
		minted = notes
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	vaultLogger.Debug().Str("user", user.String()).Str("amount", amt.String()).Str("notes", minted.String()).Msg("Vault deposit")
	return minted, nil
}

// ComputeRedemptionAmts previews the assets paid for burning notes, net of the vault burn fee and
// without dust.
func (v *Vault) ComputeRedemptionAmts(notes sdkmath.Int) (sdk.Coins, error) {
	if !notes.IsPositive() {
		return nil, fmt.Errorf("%w: redemption must be positive", types.ErrInvalidAmount)
	}
	supply := v.TotalSupply()
	if notes.GT(supply) {
		return nil, fmt.Errorf("%w: redeeming %s of %s notes", types.ErrInsufficientBalance, notes, supply)
	}
	s, err := v.SubscriptionState()
	if err != nil {
		return nil, err
	}
	s.VaultTVL = s.VaultTVL.Sub(utils.MulDiv(s.VaultTVL, notes, supply))
	policy := v.perp.FeePolicy()
	feePerc := policy.ComputeVaultBurnFeePerc(policy.ComputeDeviationRatio(s))

	coins := sdk.NewCoins()
	for _, t := range v.assets() {
		share := utils.ApplyFee(utils.MulDiv(v.balance(t), notes, supply), feePerc, types.FeeOne)
		if !share.IsPositive() || share.LT(v.cfg.TrancheDustAmt) {
			continue
		}
		coins = coins.Add(sdk.NewCoin(t.String(), share))
	}
	return coins, nil
}

// Redeem burns notes from user and transfers the user's share of every vault asset.
func (v *Vault) Redeem(user types.Address, notes sdkmath.Int) (sdk.Coins, error) {
	var paid sdk.Coins
	err := v.mutate(func() error {
		if v.ledger.BalanceOf(v.cfg.Address, user).LT(notes) {
			return fmt.Errorf("%w: %s holds fewer than %s notes", types.ErrInsufficientBalance, user, notes)
		}
		coins, err := v.ComputeRedemptionAmts(notes)
		if err != nil {
			return err
		}
		if err := v.ledger.Burn(v.cfg.Address, user, notes); err != nil {
			return err
		}
		for _, c := range coins {
			token := types.Address(c.Denom)
			if err := v.ledger.Transfer(token, v.cfg.Address, user, c.Amount); err != nil {
				return err
			}
			if err := v.sync(token); err != nil {
				return err
			}
		}
		v.ledger.EmitEvent(sdk.NewEvent(types.EventTypeRedeem,
			sdk.NewAttribute(types.AttributeKeyOwner, v.cfg.Address.String()),
			sdk.NewAttribute(types.AttributeKeySender, user.String()),
			sdk.NewAttribute(types.AttributeKeyBurned, notes.String()),
			sdk.NewAttribute(types.AttributeKeyAmount, coins.String()),
		))
		paid = coins
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
