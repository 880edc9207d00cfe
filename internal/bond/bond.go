// Package bond adapts fixed-maturity bonds that tranche a rebasing collateral.
package bond

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/perpvault/internal/types"
)

// TrancheData is one tranche of a bond with its ratio over types.TrancheRatioGranularity.
type TrancheData struct {
	Token types.Address `json:"token"`
	Ratio uint64        `json:"ratio"`
}

// Bond is the surface of a bond the perp and the vault depend on.
type Bond interface {
	Address() types.Address
	CollateralToken() types.Address
	// Tranches are ordered most senior first.
	Tranches() []TrancheData
	TrancheIndex(tranche types.Address) (int, bool)
	Ratios() []uint64

	// IsMature is true from the maturity time on, whether or not Mature has run.
	IsMature() bool
	// Mature settles the collateral into the tranches. It fails with ErrNotUpForMaturity before the
	// maturity time and is a no-op once settled.
	Mature() error
	MaturityTime() time.Time
	SecondsToMaturity() uint64
	Duration() uint64

	TotalDebt() sdkmath.Int
	CollateralBalance() sdkmath.Int
	TrancheCollateralization(tranche types.Address) (claim, supply sdkmath.Int, err error)

	PreviewDeposit(amt sdkmath.Int) ([]sdkmath.Int, error)
	Deposit(holder types.Address, amt sdkmath.Int) ([]sdkmath.Int, error)
	Redeem(holder types.Address, amounts []sdkmath.Int) (sdkmath.Int, error)
	RedeemMature(holder, tranche types.Address, amt sdkmath.Int) (sdkmath.Int, error)
	ComputeRedeemableTrancheAmounts(holder types.Address) ([]sdkmath.Int, error)
}

// ComputeRedeemableTrancheAmounts returns the largest proportional tranche amounts redeemable out of
// balances. Each amount is ratio_i * scalar for a single scalar, so the result is either all zero or
// all positive and never exceeds a balance.
func ComputeRedeemableTrancheAmounts(ratios []uint64, balances []sdkmath.Int) ([]sdkmath.Int, error) {
	if len(ratios) != len(balances) {
		return nil, fmt.Errorf("%w: %d ratios, %d balances", types.ErrArrayLengthMismatch, len(ratios), len(balances))
	}
	amounts := make([]sdkmath.Int, len(ratios))
	for i := range amounts {
		amounts[i] = sdkmath.ZeroInt()
	}
	if len(ratios) == 0 {
		return amounts, nil
	}

	reduced := reduceRatios(ratios)
	var scalar sdkmath.Int
	for i, r := range reduced {
		if r == 0 {
			return nil, fmt.Errorf("%w: zero tranche ratio", types.ErrInvalidBondParams)
		}
		s := balances[i].QuoRaw(int64(r))
		if i == 0 || s.LT(scalar) {
			scalar = s
		}
	}
	if !scalar.IsPositive() {
		return amounts, nil
	}
	for i, r := range reduced {
		amounts[i] = scalar.MulRaw(int64(r))
	}
	return amounts, nil
}

// reduceRatios divides every ratio by their gcd so the proportional scalar loses as little as possible.
func reduceRatios(ratios []uint64) []uint64 {
	g := uint64(0)
	for _, r := range ratios {
		g = gcd(g, r)
	}
	out := make([]uint64, len(ratios))
	for i, r := range ratios {
		if g == 0 {
			out[i] = r
			continue
		}
		out[i] = r / g
	}
	return out
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ValidateRatios checks that ratios are positive and sum to types.TrancheRatioGranularity.
func ValidateRatios(ratios []uint64) error {
	if len(ratios) < 2 {
		return fmt.Errorf("%w: a bond needs at least two tranches", types.ErrInvalidBondParams)
	}
	sum := uint64(0)
	for _, r := range ratios {
		if r == 0 {
			return fmt.Errorf("%w: zero tranche ratio", types.ErrInvalidBondParams)
		}
		sum += r
	}
	if sum != types.TrancheRatioGranularity {
		return fmt.Errorf("%w: ratios sum to %d, expected %d", types.ErrInvalidBondParams, sum, types.TrancheRatioGranularity)
	}
	return nil
}

// Registry resolves a tranche to its bond. *Issuer implements it.
type Registry interface {
	BondOf(tranche types.Address) (Bond, bool)
}
