package perp

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/feepolicy"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

// ComputeRolloverFeePerc returns the signed rollover fee for the current state, decayed by the
// remaining life of the deposit bond. Negative values are a rebate to the roller.
func (p *Perp) ComputeRolloverFeePerc() (sdkmath.Int, error) {
	s, err := p.SubscriptionState()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	fee := p.policy.ComputePerpRolloverFeePerc(p.policy.ComputeDeviationRatio(s))
	if p.depositBond == nil {
		return fee, nil
	}
	return feepolicy.ApplyMaturityDecay(fee, p.depositBond.SecondsToMaturity(), p.depositBond.Duration()), nil
}

// ComputeRolloverAmt previews rolling up to trancheInAmtAvailable of trancheIn for tokenOut. Pairs perp
// would not accept, and tranches with a zero discount, preview as the zero rollover.
func (p *Perp) ComputeRolloverAmt(trancheIn, tokenOut types.Address, trancheInAmtAvailable sdkmath.Int) (types.RolloverData, error) {
	r := types.ZeroRolloverData()
	if !trancheInAmtAvailable.IsPositive() || !p.isDepositTranche(trancheIn) || !p.isUpForRollover(tokenOut) {
		return r, nil
	}
	tokenOutAvailable := p.GetReserveTokenBalance(tokenOut)
	if !tokenOutAvailable.IsPositive() {
		return r, nil
	}

	discIn, err := p.discount.Discount(trancheIn)
	if err != nil {
		return r, err
	}
	priceIn, err := p.pricing.Price(trancheIn)
	if err != nil {
		return r, err
	}
	discOut := types.DiscountOne
	priceOut := types.PriceOne
	if tokenOut != p.cfg.Underlying {
		if discOut, err = p.discount.Discount(tokenOut); err != nil {
			return r, err
		}
		if priceOut, err = p.pricing.Price(tokenOut); err != nil {
			return r, err
		}
	}
	if discIn.IsZero() || priceIn.IsZero() || discOut.IsZero() || priceOut.IsZero() {
		return r, nil
	}
	feePerc, err := p.ComputeRolloverFeePerc()
	if err != nil {
		return r, err
	}

	unitIn := discIn.Mul(priceIn)
	unitOut := discOut.Mul(priceOut)
	one := types.DiscountOne.Mul(types.PriceOne)
	feeAdj := types.FeeOne.Sub(feePerc)

	trancheInAmt := trancheInAmtAvailable
	valueIn := utils.MulDiv(trancheInAmt, unitIn, one)
	tokenOutAmt := utils.ApplyFee(utils.MulDiv(valueIn, one, unitOut), feePerc, types.FeeOne)

	if tokenOutAmt.GT(tokenOutAvailable) {
		// Take only as much trancheIn as the available tokenOut is worth, rounding in perp's favour.
		tokenOutAmt = tokenOutAvailable
		valueOut := utils.MulDivUp(tokenOutAmt, unitOut, one)
		trancheInAmt = utils.MinInt(
			utils.MulDivUp(utils.MulDivUp(valueOut, types.FeeOne, feeAdj), one, unitIn),
			trancheInAmtAvailable,
		)
		valueIn = utils.MulDiv(trancheInAmt, unitIn, one)
	}

	reserveValue, err := p.GetReserveValue()
	if err != nil {
		return r, err
	}
	perpRolloverAmt := utils.MulDiv(valueIn, p.TotalSupply(), reserveValue)
	if !perpRolloverAmt.IsPositive() || !tokenOutAmt.IsPositive() {
		return r, nil
	}
	return types.RolloverData{
		TrancheInAmt:    trancheInAmt,
		TokenOutAmt:     tokenOutAmt,
		PerpRolloverAmt: perpRolloverAmt,
	}, nil
}

// Rollover exchanges up to trancheInAmtAvailable of the vault's trancheIn for tokenOut from the reserve.
func (p *Perp) Rollover(caller, trancheIn, tokenOut types.Address, trancheInAmtAvailable sdkmath.Int) (types.RolloverData, error) {
	var r types.RolloverData
	err := p.mutate(func() error {
		if !p.isVault(caller) {
			return fmt.Errorf("%w: %s may not roll over", types.ErrUnauthorizedCall, caller)
		}
		if !p.isDepositTranche(trancheIn) {
			return fmt.Errorf("%w: %s is not the deposit tranche", types.ErrUnacceptableRollover, trancheIn)
		}
		if !p.isUpForRollover(tokenOut) {
			return fmt.Errorf("%w: %s is not up for rollover", types.ErrUnacceptableRollover, tokenOut)
		}
		data, err := p.ComputeRolloverAmt(trancheIn, tokenOut, trancheInAmtAvailable)
		if err != nil {
			return err
		}
		if !data.PerpRolloverAmt.IsPositive() {
			return fmt.Errorf("%w: nothing to roll over", types.ErrUnacceptableRollover)
		}

		if err := p.ledger.Transfer(trancheIn, caller, p.cfg.Address, data.TrancheInAmt); err != nil {
			return err
		}
		if err := p.reserve.SyncAndAdd(trancheIn); err != nil {
			return err
		}
		if err := p.ledger.Transfer(tokenOut, p.cfg.Address, caller, data.TokenOutAmt); err != nil {
			return err
		}
		p.reserve.SyncAndRemove(tokenOut)

		p.ledger.EmitEvent(sdk.NewEvent(types.EventTypeRollover,
			sdk.NewAttribute(types.AttributeKeySender, caller.String()),
			sdk.NewAttribute(types.AttributeKeyTrancheIn, trancheIn.String()),
			sdk.NewAttribute(types.AttributeKeyTokenOut, tokenOut.String()),
			sdk.NewAttribute(types.AttributeKeyAmountIn, data.TrancheInAmt.String()),
			sdk.NewAttribute(types.AttributeKeyAmountOut, data.TokenOutAmt.String()),
			sdk.NewAttribute(types.AttributeKeyPerpAmount, data.PerpRolloverAmt.String()),
		))
		r = data
		return nil
	})
	if err != nil {
		return types.ZeroRolloverData(), err
	}
	return r, nil
}
