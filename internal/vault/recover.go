package vault

import (
	"errors"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/bond"
	"github.com/elys-network/perpvault/internal/types"
)

// Recover redeems every deployed tranche it can: mature tranches outright (maturing the bond first
// when due) and immature ones as proportional sets, once per bond. It returns the number of redemptions.
func (v *Vault) Recover() (int, error) {
	count := 0
	err := v.mutate(func() error {
		v.phase = PhaseRecovering
		n, err := v.recoverAll()
		if err != nil {
			return err
		}
		count = n
		v.phase = PhaseIdle
		v.ledger.EmitEvent(sdk.NewEvent(types.EventTypeRecover,
			sdk.NewAttribute(types.AttributeKeyOwner, v.cfg.Address.String()),
			sdk.NewAttribute(types.AttributeKeyAmount, fmt.Sprintf("%d", n)),
		))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// RecoverToken redeems a single deployed tranche. Redeeming a non-member is a caller error.
func (v *Vault) RecoverToken(token types.Address) (int, error) {
	count := 0
	err := v.mutate(func() error {
		if !v.deployed.Contains(token) {
			return fmt.Errorf("%w: %s", types.ErrNotReserveMember, token)
		}
		n, err := v.recoverToken(token, map[types.Address]bool{})
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	return count, err
}

// RecoverAndRedeploy recovers, then deploys what was recovered.
func (v *Vault) RecoverAndRedeploy() (*types.DeployReceipt, error) {
	if _, err := v.Recover(); err != nil {
		return nil, err
	}
	return v.Deploy()
}

// recoverAll iterates a snapshot of the deployed set, so removals cannot skip members.
func (v *Vault) recoverAll() (int, error) {
	count := 0
	redeemed := make(map[types.Address]bool)
	for _, t := range v.deployed.Members() {
		n, err := v.recoverToken(t, redeemed)
		if err != nil {
			return count, err
		}
		count += n
	}
	return count, nil
}

func (v *Vault) recoverToken(token types.Address, redeemed map[types.Address]bool) (int, error) {
	b, ok := v.bonds.BondOf(token)
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrUnexpectedReserveAsset, token)
	}
	bal := v.balance(token)
	if !bal.IsPositive() {
		return 0, v.sync(token)
	}

	if !b.IsMature() {
		if err := b.Mature(); err != nil && !errors.Is(err, types.ErrNotUpForMaturity) {
			return 0, err
		}
	}

	if b.IsMature() {
		if _, err := b.RedeemMature(v.cfg.Address, token, bal); err != nil {
			return 0, err
		}
		return 1, v.sync(token, v.underlying())
	}

	idx, _ := b.TrancheIndex(token)
	if idx != 0 || redeemed[b.Address()] || bal.LTE(v.cfg.TrancheDustAmt) {
		return 0, nil
	}
	redeemed[b.Address()] = true
	return v.redeemImmature(b)
}

// redeemImmature redeems the largest proportional tranche set of b the vault holds.
func (v *Vault) redeemImmature(b bond.Bond) (int, error) {
	amounts, err := b.ComputeRedeemableTrancheAmounts(v.cfg.Address)
	if err != nil {
		return 0, err
	}
	if len(amounts) == 0 || !amounts[0].IsPositive() {
		return 0, nil
	}
	if _, err := b.Redeem(v.cfg.Address, amounts); err != nil {
		return 0, err
	}
	if err := v.syncBond(b); err != nil {
		return 0, err
	}
	return 1, v.sync(v.underlying())
}
