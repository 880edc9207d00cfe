package perp

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

// ComputeMintAmt previews the perps minted for depositing amt of trancheIn, after the mint fee.
// The fee is read off the subscription state the deposit would produce.
func (p *Perp) ComputeMintAmt(caller, trancheIn types.Address, amt sdkmath.Int) (sdkmath.Int, error) {
	if !amt.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: deposit must be positive", types.ErrInvalidAmount)
	}
	if !p.isDepositTranche(trancheIn) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s is not the deposit tranche", types.ErrUnacceptableDeposit, trancheIn)
	}
	valueIn, err := p.discountedValue(trancheIn, amt)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	mintAmt := valueIn
	if supply := p.TotalSupply(); supply.IsPositive() {
		reserveValue, err := p.GetReserveValue()
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if reserveValue.IsZero() {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: perp supply %s has no reserve value", types.ErrInvariantViolation, supply)
		}
		mintAmt = utils.MulDiv(valueIn, supply, reserveValue)
	}

	if p.isVault(caller) {
		return mintAmt, nil
	}
	s, err := p.SubscriptionState()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	rawValue, err := p.value(trancheIn, amt)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.PerpTVL = s.PerpTVL.Add(rawValue)
	feePerc := p.policy.ComputePerpMintFeePerc(p.policy.ComputeDeviationRatio(s))
	return utils.ApplyFee(mintAmt, feePerc, types.FeeOne), nil
}

// Deposit takes amt of the deposit tranche from caller into the reserve and mints perps to caller.
func (p *Perp) Deposit(caller, trancheIn types.Address, amt sdkmath.Int) (sdkmath.Int, error) {
	minted := sdkmath.ZeroInt()
	err := p.mutate(func() error {
		mintAmt, err := p.ComputeMintAmt(caller, trancheIn, amt)
		if err != nil {
			return err
		}
		if !mintAmt.IsPositive() {
			return fmt.Errorf("%w: deposit mints no perps", types.ErrUnacceptableDeposit)
		}
		if err := p.ledger.Transfer(trancheIn, caller, p.cfg.Address, amt); err != nil {
			return err
		}
		if err := p.reserve.SyncAndAdd(trancheIn); err != nil {
			return err
		}
		if err := p.ledger.Mint(p.cfg.Address, caller, mintAmt); err != nil {
			return err
		}
		p.ledger.EmitEvent(sdk.NewEvent(types.EventTypeDeposit,
			sdk.NewAttribute(types.AttributeKeyOwner, p.cfg.Address.String()),
			sdk.NewAttribute(types.AttributeKeySender, caller.String()),
			sdk.NewAttribute(types.AttributeKeyToken, trancheIn.String()),
			sdk.NewAttribute(types.AttributeKeyAmount, amt.String()),
			sdk.NewAttribute(types.AttributeKeyMinted, mintAmt.String()),
		))
		minted = mintAmt
		return nil
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	perpLogger.Debug().Str("caller", caller.String()).Str("tranche", trancheIn.String()).Str("minted", minted.String()).Msg("Perp deposit")
	return minted, nil
}

// ComputeRedemptionAmts previews caller's share of every reserve token for burning perpAmt, after the
// burn fee. The fee stays in the reserve.
func (p *Perp) ComputeRedemptionAmts(caller types.Address, perpAmt sdkmath.Int) (sdk.Coins, error) {
	if !perpAmt.IsPositive() {
		return nil, fmt.Errorf("%w: redemption must be positive", types.ErrInvalidAmount)
	}
	supply := p.TotalSupply()
	if perpAmt.GT(supply) {
		return nil, fmt.Errorf("%w: redeeming %s of %s perps", types.ErrInsufficientBalance, perpAmt, supply)
	}

	feePerc := sdkmath.ZeroInt()
	if !p.isVault(caller) {
		s, err := p.SubscriptionState()
		if err != nil {
			return nil, err
		}
		s.PerpTVL = s.PerpTVL.Sub(utils.MulDiv(s.PerpTVL, perpAmt, supply))
		feePerc = p.policy.ComputePerpBurnFeePerc(p.policy.ComputeDeviationRatio(s))
	}

	coins := sdk.NewCoins()
	for _, t := range p.GetReserveTokens() {
		share := utils.MulDiv(p.GetReserveTokenBalance(t), perpAmt, supply)
		share = utils.ApplyFee(share, feePerc, types.FeeOne)
		if share.IsPositive() {
			coins = coins.Add(sdk.NewCoin(t.String(), share))
		}
	}
	return coins, nil
}

// Redeem burns perpAmt from caller and pays out a proportional share of the reserve.
func (p *Perp) Redeem(caller types.Address, perpAmt sdkmath.Int) (sdk.Coins, error) {
	var paid sdk.Coins
	err := p.mutate(func() error {
		if p.ledger.BalanceOf(p.cfg.Address, caller).LT(perpAmt) {
			return fmt.Errorf("%w: %s holds fewer than %s perps", types.ErrInsufficientBalance, caller, perpAmt)
		}
		coins, err := p.ComputeRedemptionAmts(caller, perpAmt)
		if err != nil {
			return err
		}
		if err := p.ledger.Burn(p.cfg.Address, caller, perpAmt); err != nil {
			return err
		}
		for _, c := range coins {
			token := types.Address(c.Denom)
			if err := p.ledger.Transfer(token, p.cfg.Address, caller, c.Amount); err != nil {
				return err
			}
			if err := p.emitSync(token); err != nil {
				return err
			}
		}
		p.ledger.EmitEvent(sdk.NewEvent(types.EventTypeRedeem,
			sdk.NewAttribute(types.AttributeKeyOwner, p.cfg.Address.String()),
			sdk.NewAttribute(types.AttributeKeySender, caller.String()),
			sdk.NewAttribute(types.AttributeKeyBurned, perpAmt.String()),
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
