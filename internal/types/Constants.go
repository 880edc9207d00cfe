/*

This file contains the fixed point scales and protocol wide constants shared by the perp and the vault.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Address identifies both accounts and tokens in the ledger. Token addresses double as coin denoms.
type Address string

func (a Address) String() string { return string(a) }

const (
	PriceDecimals    = 8
	DiscountDecimals = 18
	FeeDecimals      = 8

	// TrancheRatioGranularity is the denominator every bond's tranche ratios sum to.
	TrancheRatioGranularity = 1000

	// MaxDeployedCount bounds the vault's deployed set so iteration cost stays bounded.
	MaxDeployedCount = 47
	// MaxReserveCount bounds perp's reserve set.
	MaxReserveCount = 128
)

var (
	// PriceOne is 1.0 on the pricing scale.
	PriceOne = sdkmath.NewIntWithDecimal(1, PriceDecimals)
	// DiscountOne is 1.0 on the discount scale.
	DiscountOne = sdkmath.NewIntWithDecimal(1, DiscountDecimals)
	// FeeOne is 1.0 (100%) on the shared fee and deviation ratio scale.
	FeeOne = sdkmath.NewIntWithDecimal(1, FeeDecimals)
	// InitialRate is the number of vault notes minted per underlying unit on the first deposit.
	InitialRate = sdkmath.NewInt(1_000_000)
)

// Clock supplies the block time the engine evaluates maturities against.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
