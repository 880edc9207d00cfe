package vault

import (
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/types"
)

// VaultManager defines the interface the keeper drives the vault through.
// This interface abstracts away the engine wiring, so the keeper loop can run against
// a live environment or a scripted simulation alike.
type VaultManager interface {
	// GetTVL returns the vault's total value in underlying units.
	GetTVL() (sdkmath.Int, error)

	// SubscriptionState returns the perp and vault TVLs with the deposit bond's senior ratio.
	SubscriptionState() (types.SubscriptionState, error)

	// DeviationRatio returns the current deviation ratio on the FeeOne scale.
	DeviationRatio() (sdkmath.Int, error)

	// RolloverFeePerc returns the signed rollover fee perp currently charges.
	RolloverFeePerc() (sdkmath.Int, error)

	// PerpPrice returns perp's TVL per unit on the PriceOne scale.
	PerpPrice() (sdkmath.Int, error)

	// UpdatePerpState rotates perp's deposit bond and redeems its mature reserve tranches.
	UpdatePerpState() error

	// Recover redeems every mature or proportionally redeemable tranche the vault holds and
	// returns the number of redemptions performed.
	Recover() (int, error)

	// Deploy tranches idle underlying and rolls the seniors into perp.
	Deploy() (*types.DeployReceipt, error)

	// Holdings lists the vault's balances.
	Holdings() sdk.Coins

	// EventsSince returns the engine events emitted after the first n.
	EventsSince(n int) sdk.Events

	// EventCount returns the number of events emitted so far.
	EventCount() int
}

var _ VaultManager = (*Vault)(nil)
