package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/bond"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

// Deploy pays the deployment fee, tranches the usable underlying into perp's deposit bond, rolls the
// senior tranche into perp and redeems whatever proportional set is left over.
func (v *Vault) Deploy() (*types.DeployReceipt, error) {
	var receipt *types.DeployReceipt
	err := v.mutate(func() error {
		v.phase = PhaseDeploying
		r, err := v.deploy()
		if err != nil {
			return err
		}
		v.phase = PhaseDeployed
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	vaultLogger.Info().
		Str("bond", receipt.Bond.String()).
		Str("trancheAmt", receipt.TrancheAmt.String()).
		Str("perpRolledOver", receipt.Rollover.TotalPerpRolledOver.String()).
		Int("refinements", receipt.Refinements).
		Msg("Vault deployed")
	return receipt, nil
}

func (v *Vault) deploy() (*types.DeployReceipt, error) {
	if err := v.perp.UpdateState(); err != nil {
		return nil, err
	}
	depositBond := v.perp.GetDepositBond()
	if depositBond == nil {
		return nil, fmt.Errorf("%w: perp has no deposit bond", types.ErrNoDeployment)
	}
	seniorTranche, err := v.perp.GetDepositTranche()
	if err != nil {
		return nil, err
	}

	fee := v.perp.FeePolicy().ComputeDeploymentFee()
	usable := utils.SubFloorZero(v.balance(v.underlying()), v.cfg.MinUnderlyingBal.Add(fee))
	if usable.LT(v.cfg.MinDeploymentAmt) || !usable.IsPositive() {
		return nil, fmt.Errorf("%w: %s usable underlying, need %s", types.ErrInsufficientDeployment, usable, v.cfg.MinDeploymentAmt)
	}
	if fee.IsPositive() {
		if err := v.ledger.Transfer(v.underlying(), v.cfg.Address, v.cfg.FeeCollector, fee); err != nil {
			return nil, err
		}
	}

	rolloverTokens := v.perp.GetReserveTokensUpForRollover()
	trancheAmt, refinements, err := v.refineTrancheAmt(depositBond, seniorTranche, rolloverTokens, usable)
	if err != nil {
		return nil, err
	}

	if _, err := depositBond.Deposit(v.cfg.Address, trancheAmt); err != nil {
		return nil, err
	}
	if err := v.syncBond(depositBond); err != nil {
		return nil, err
	}
	if err := v.sync(v.underlying()); err != nil {
		return nil, err
	}

	report, err := v.rollover([]types.Address{seniorTranche}, rolloverTokens)
	if err != nil {
		return nil, err
	}
	if !report.TotalPerpRolledOver.IsPositive() {
		return nil, fmt.Errorf("%w: nothing rolled over", types.ErrNoDeployment)
	}

	// Whatever senior did not roll pairs up with the junior tranches and goes back to underlying.
	if v.balance(seniorTranche).GT(v.cfg.TrancheDustAmt) {
		if _, err := v.redeemImmature(depositBond); err != nil {
			return nil, err
		}
	}

	v.ledger.EmitEvent(sdk.NewEvent(types.EventTypeDeploy,
		sdk.NewAttribute(types.AttributeKeyOwner, v.cfg.Address.String()),
		sdk.NewAttribute(types.AttributeKeyBond, depositBond.Address().String()),
		sdk.NewAttribute(types.AttributeKeyAmount, trancheAmt.String()),
		sdk.NewAttribute(types.AttributeKeyPerpAmount, report.TotalPerpRolledOver.String()),
	))
	return &types.DeployReceipt{
		Bond:        depositBond.Address(),
		TrancheAmt:  trancheAmt,
		FeePaid:     fee,
		Refinements: refinements,
		Rollover:    report,
	}, nil
}

// rolloverCapacity is how much of seniorTranche perp would take across the whole rollover list.
func (v *Vault) rolloverCapacity(seniorTranche types.Address, rolloverTokens []types.Address, limit sdkmath.Int) (sdkmath.Int, error) {
	capacity := sdkmath.ZeroInt()
	for _, t := range rolloverTokens {
		remaining := limit.Sub(capacity)
		if !remaining.IsPositive() {
			break
		}
		r, err := v.perp.ComputeRolloverAmt(seniorTranche, t, remaining)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		capacity = capacity.Add(r.TrancheInAmt)
	}
	return capacity, nil
}

// refineTrancheAmt shrinks the tranche amount until the senior tranche it produces fits perp's rollover
// capacity, so the deploy does not strand seniors outside perp.
func (v *Vault) refineTrancheAmt(b bond.Bond, seniorTranche types.Address, rolloverTokens []types.Address, usable sdkmath.Int) (sdkmath.Int, int, error) {
	preview, err := b.PreviewDeposit(usable)
	if err != nil {
		return sdkmath.ZeroInt(), 0, err
	}
	capacity, err := v.rolloverCapacity(seniorTranche, rolloverTokens, preview[0])
	if err != nil {
		return sdkmath.ZeroInt(), 0, err
	}
	if !capacity.IsPositive() {
		return sdkmath.ZeroInt(), 0, fmt.Errorf("%w: perp has nothing up for rollover", types.ErrNoRolloverAvailable)
	}

	amt := usable
	refinements := 0
	for ; refinements < v.cfg.MaxRefinements && preview[0].GT(capacity); refinements++ {
		amt = utils.MulDiv(amt, capacity, preview[0])
		if !amt.IsPositive() {
			break
		}
		if preview, err = b.PreviewDeposit(amt); err != nil {
			return sdkmath.ZeroInt(), refinements, err
		}
	}
	if amt.LT(v.cfg.MinDeploymentAmt) || !amt.IsPositive() {
		return sdkmath.ZeroInt(), refinements, fmt.Errorf("%w: perp can absorb only %s of %s", types.ErrInsufficientDeployment, amt, usable)
	}
	return amt, refinements, nil
}
