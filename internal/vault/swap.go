package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/bond"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

const maxTrancheTopUps = 4

func (v *Vault) checkSwapAmt(amt sdkmath.Int) error {
	if !amt.IsPositive() {
		return fmt.Errorf("%w: swap amount must be positive", types.ErrInvalidAmount)
	}
	if amt.LT(v.cfg.MinSwapAmt) {
		return fmt.Errorf("%w: %s below %s", types.ErrSwapBelowMinimum, amt, v.cfg.MinSwapAmt)
	}
	return nil
}

// ComputeUnderlyingToPerpSwapAmt previews the perps paid for underlyingAmtIn. The fee is read off the
// state after the vault mints the perps.
func (v *Vault) ComputeUnderlyingToPerpSwapAmt(underlyingAmtIn sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	s, err := v.SubscriptionState()
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	supply := v.perp.TotalSupply()
	if !supply.IsPositive() || !s.PerpTVL.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: perp has no supply to price against", types.ErrInsufficientLiquidity)
	}
	perpAmtOut := utils.MulDiv(underlyingAmtIn, supply, s.PerpTVL)

	s.PerpTVL = s.PerpTVL.Add(underlyingAmtIn)
	policy := v.perp.FeePolicy()
	feePerc := policy.ComputeUnderlyingToPerpSwapFeePerc(policy.ComputeDeviationRatio(s))
	return utils.ApplyFee(perpAmtOut, feePerc, types.FeeOne), feePerc, nil
}

// ComputePerpToUnderlyingSwapAmt previews the underlying paid for perpAmtIn. The fee is read off the
// state after the perps are redeemed.
func (v *Vault) ComputePerpToUnderlyingSwapAmt(perpAmtIn sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	s, err := v.SubscriptionState()
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	supply := v.perp.TotalSupply()
	if perpAmtIn.GT(supply) {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: swapping %s of %s perps", types.ErrInsufficientBalance, perpAmtIn, supply)
	}
	underlyingAmtOut := utils.MulDiv(perpAmtIn, s.PerpTVL, supply)

	s.PerpTVL = s.PerpTVL.Sub(underlyingAmtOut)
	policy := v.perp.FeePolicy()
	feePerc := policy.ComputePerpToUnderlyingSwapFeePerc(policy.ComputeDeviationRatio(s))
	return utils.ApplyFee(underlyingAmtOut, feePerc, types.FeeOne), feePerc, nil
}

// SwapUnderlyingForPerps takes underlying from user, tranches enough of the vault's underlying to mint
// the perps owed, and pays them out. Perp dust minted beyond the amount owed stays in the vault.
func (v *Vault) SwapUnderlyingForPerps(user types.Address, underlyingAmtIn sdkmath.Int) (sdkmath.Int, error) {
	perpAmtOut := sdkmath.ZeroInt()
	err := v.mutate(func() error {
		if err := v.checkSwapAmt(underlyingAmtIn); err != nil {
			return err
		}
		tvlBefore, err := v.GetTVL()
		if err != nil {
			return err
		}
		out, feePerc, err := v.ComputeUnderlyingToPerpSwapAmt(underlyingAmtIn)
		if err != nil {
			return err
		}
		if feePerc.GTE(types.FeeOne) {
			return fmt.Errorf("%w: swap would push the deviation ratio below its bound", types.ErrSwapBlocked)
		}
		if !out.IsPositive() {
			return fmt.Errorf("%w: swap pays no perps", types.ErrSwapBelowMinimum)
		}

		if err := v.ledger.Transfer(v.underlying(), user, v.cfg.Address, underlyingAmtIn); err != nil {
			return err
		}
		if err := v.trancheAndMintPerps(out); err != nil {
			return err
		}
		if err := v.ledger.Transfer(v.perp.Address(), v.cfg.Address, user, out); err != nil {
			return err
		}
		if err := v.sync(v.underlying(), v.perp.Address()); err != nil {
			return err
		}
		if err := v.checkTVL(tvlBefore); err != nil {
			return err
		}
		v.emitSwap(user, "underlying_to_perp", underlyingAmtIn, out, feePerc)
		perpAmtOut = out
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return perpAmtOut, nil
}

// trancheAndMintPerps deposits underlying into the deposit bond and mints at least perpAmt perps with
// its senior tranche. The junior tranches stay in the vault.
func (v *Vault) trancheAndMintPerps(perpAmt sdkmath.Int) error {
	depositBond := v.perp.GetDepositBond()
	if depositBond == nil {
		return fmt.Errorf("%w: perp has no deposit bond", types.ErrInsufficientLiquidity)
	}
	seniorTranche, err := v.perp.GetDepositTranche()
	if err != nil {
		return err
	}

	seniorAmt, err := v.seniorAmtForPerps(seniorTranche, perpAmt)
	if err != nil {
		return err
	}
	held := v.balance(seniorTranche)
	if held.LT(seniorAmt) {
		trancheAmt, err := v.underlyingForSenior(depositBond, seniorAmt.Sub(held))
		if err != nil {
			return err
		}
		if v.balance(v.underlying()).LT(trancheAmt) {
			return fmt.Errorf("%w: need %s underlying to tranche", types.ErrInsufficientLiquidity, trancheAmt)
		}
		if _, err := depositBond.Deposit(v.cfg.Address, trancheAmt); err != nil {
			return err
		}
		if err := v.syncBond(depositBond); err != nil {
			return err
		}
	}

	minted, err := v.perp.Deposit(v.cfg.Address, seniorTranche, seniorAmt)
	if err != nil {
		return err
	}
	if minted.LT(perpAmt) {
		return fmt.Errorf("%w: minted %s perps, owed %s", types.ErrInvariantViolation, minted, perpAmt)
	}
	return v.sync(seniorTranche)
}

// seniorAmtForPerps inverts perp's mint amount: the senior tranche needed to mint perpAmt fee free.
func (v *Vault) seniorAmtForPerps(seniorTranche types.Address, perpAmt sdkmath.Int) (sdkmath.Int, error) {
	// Preview a large reference deposit so the inverse keeps its precision.
	ref := types.PriceOne.Mul(types.DiscountOne)
	refMint, err := v.perp.ComputeMintAmt(v.cfg.Address, seniorTranche, ref)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !refMint.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: perp does not accept %s", types.ErrInsufficientLiquidity, seniorTranche)
	}
	return utils.MulDivUp(perpAmt, ref, refMint).AddRaw(1), nil
}

// underlyingForSenior finds an underlying amount whose deposit yields at least seniorAmt of the senior tranche.
func (v *Vault) underlyingForSenior(b bond.Bond, seniorAmt sdkmath.Int) (sdkmath.Int, error) {
	ratio := sdkmath.NewIntFromUint64(b.Tranches()[0].Ratio)
	granularity := sdkmath.NewInt(types.TrancheRatioGranularity)
	amt := utils.MulDivUp(seniorAmt, granularity, ratio)
	if debt := b.TotalDebt(); debt.IsPositive() {
		amt = utils.MulDivUp(amt, b.CollateralBalance(), debt)
	}
	for k := 0; k < maxTrancheTopUps; k++ {
		preview, err := b.PreviewDeposit(amt)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if preview[0].GTE(seniorAmt) {
			return amt, nil
		}
		amt = amt.Add(utils.MulDivUp(seniorAmt.Sub(preview[0]), granularity, ratio)).AddRaw(1)
	}
	return sdkmath.ZeroInt(), fmt.Errorf("%w: could not size a deposit for %s senior", types.ErrInvariantViolation, seniorAmt)
}

// SwapPerpsForUnderlying takes perps from user, redeems them from perp, recovers what it can into
// underlying and pays user out.
func (v *Vault) SwapPerpsForUnderlying(user types.Address, perpAmtIn sdkmath.Int) (sdkmath.Int, error) {
	underlyingAmtOut := sdkmath.ZeroInt()
	err := v.mutate(func() error {
		if err := v.checkSwapAmt(perpAmtIn); err != nil {
			return err
		}
		tvlBefore, err := v.GetTVL()
		if err != nil {
			return err
		}
		out, feePerc, err := v.ComputePerpToUnderlyingSwapAmt(perpAmtIn)
		if err != nil {
			return err
		}
		if feePerc.GTE(types.FeeOne) {
			return fmt.Errorf("%w: swap would push the deviation ratio above its bound", types.ErrSwapBlocked)
		}
		if !out.IsPositive() {
			return fmt.Errorf("%w: swap pays no underlying", types.ErrSwapBelowMinimum)
		}

		if err := v.ledger.Transfer(v.perp.Address(), user, v.cfg.Address, perpAmtIn); err != nil {
			return err
		}
		coins, err := v.perp.Redeem(v.cfg.Address, perpAmtIn)
		if err != nil {
			return err
		}
		for _, c := range coins {
			if err := v.sync(types.Address(c.Denom)); err != nil {
				return err
			}
		}
		if _, err := v.recoverAll(); err != nil {
			return err
		}
		if v.balance(v.underlying()).LT(out) {
			return fmt.Errorf("%w: need %s underlying, hold %s", types.ErrInsufficientLiquidity, out, v.balance(v.underlying()))
		}
		if err := v.ledger.Transfer(v.underlying(), v.cfg.Address, user, out); err != nil {
			return err
		}
		if err := v.sync(v.underlying(), v.perp.Address()); err != nil {
			return err
		}
		if err := v.checkTVL(tvlBefore); err != nil {
			return err
		}
		v.emitSwap(user, "perp_to_underlying", perpAmtIn, out, feePerc)
		underlyingAmtOut = out
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return underlyingAmtOut, nil
}

// Meld takes amt of an immature tranche from user, pairs it with the vault's sibling tranches into a
// proportional set and redeems the set. The user is paid the value of the tranche used, net of the meld
// fee, and never more than the proceeds left after covering the siblings' value. Only the portion of
// amt that fits a proportional set is taken from user.
func (v *Vault) Meld(user, tranche types.Address, amt sdkmath.Int) (sdkmath.Int, error) {
	payout := sdkmath.ZeroInt()
	err := v.mutate(func() error {
		if err := v.checkSwapAmt(amt); err != nil {
			return err
		}
		b, ok := v.bonds.BondOf(tranche)
		if !ok {
			return fmt.Errorf("%w: %s is not a tranche", types.ErrUnexpectedAsset, tranche)
		}
		if b.IsMature() {
			return fmt.Errorf("%w: %s is mature, redeem it directly", types.ErrUnacceptableRedemption, tranche)
		}
		tvlBefore, err := v.GetTVL()
		if err != nil {
			return err
		}

		idx, _ := b.TrancheIndex(tranche)
		tranches := b.Tranches()
		balances := make([]sdkmath.Int, len(tranches))
		for i, t := range tranches {
			if i == idx {
				balances[i] = amt
				continue
			}
			balances[i] = v.balance(t.Token)
		}
		amounts, err := bond.ComputeRedeemableTrancheAmounts(b.Ratios(), balances)
		if err != nil {
			return err
		}
		if !amounts[idx].IsPositive() {
			return fmt.Errorf("%w: vault holds no siblings to meld %s with", types.ErrInsufficientLiquidity, tranche)
		}

		userValue := sdkmath.ZeroInt()
		siblingValue := sdkmath.ZeroInt()
		for i, t := range tranches {
			claim, supply, err := b.TrancheCollateralization(t.Token)
			if err != nil {
				return err
			}
			if i == idx {
				userValue = utils.MulDiv(amounts[i], claim, supply)
				continue
			}
			siblingValue = siblingValue.Add(utils.MulDivUp(amounts[i], claim, supply))
		}

		if err := v.ledger.Transfer(tranche, user, v.cfg.Address, amounts[idx]); err != nil {
			return err
		}
		proceeds, err := b.Redeem(v.cfg.Address, amounts)
		if err != nil {
			return err
		}
		policy := v.perp.FeePolicy()
		out := utils.MinInt(
			utils.ApplyFee(userValue, policy.ComputeMeldFeePerc(), types.FeeOne),
			utils.SubFloorZero(proceeds, siblingValue),
		)
		if !out.IsPositive() {
			return fmt.Errorf("%w: meld pays nothing", types.ErrSwapBelowMinimum)
		}
		if err := v.ledger.Transfer(v.underlying(), v.cfg.Address, user, out); err != nil {
			return err
		}
		if err := v.syncBond(b); err != nil {
			return err
		}
		if err := v.sync(v.underlying()); err != nil {
			return err
		}
		if err := v.checkTVL(tvlBefore); err != nil {
			return err
		}
		v.ledger.EmitEvent(sdk.NewEvent(types.EventTypeMeld,
			sdk.NewAttribute(types.AttributeKeySender, user.String()),
			sdk.NewAttribute(types.AttributeKeyToken, tranche.String()),
			sdk.NewAttribute(types.AttributeKeyAmountIn, amounts[idx].String()),
			sdk.NewAttribute(types.AttributeKeyAmountOut, out.String()),
		))
		payout = out
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return payout, nil
}

func (v *Vault) emitSwap(user types.Address, direction string, in, out, feePerc sdkmath.Int) {
	v.ledger.EmitEvent(sdk.NewEvent(types.EventTypeSwap,
		sdk.NewAttribute(types.AttributeKeySender, user.String()),
		sdk.NewAttribute(types.AttributeKeyDirection, direction),
		sdk.NewAttribute(types.AttributeKeyAmountIn, in.String()),
		sdk.NewAttribute(types.AttributeKeyAmountOut, out.String()),
		sdk.NewAttribute(types.AttributeKeyFeePerc, feePerc.String()),
	))
}
