// Package pricing values reserve tokens in underlying units on the types.PriceOne scale.
package pricing

import (
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/perpvault/internal/bond"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

// Kind selects a pricing variant.
type Kind int

const (
	// KindUnit prices every tranche at par.
	KindUnit Kind = iota
	// KindCDR prices a mature tranche at its realized collateral per unit.
	KindCDR
	// KindCDRLowerBound is KindCDR floored at par, for senior tranches protected by the junior.
	KindCDRLowerBound
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindCDR:
		return "cdr"
	case KindCDRLowerBound:
		return "cdr_lower_bound"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a config string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unit":
		return KindUnit, nil
	case "cdr":
		return KindCDR, nil
	case "cdr_lower_bound", "cdr-lower-bound":
		return KindCDRLowerBound, nil
	}
	return KindUnit, fmt.Errorf("%w: unknown pricing strategy %q", types.ErrInvalidConfig, s)
}

// Strategy prices the underlying and any tranche the registry knows.
type Strategy struct {
	kind       Kind
	bonds      bond.Registry
	underlying types.Address
}

func New(kind Kind, bonds bond.Registry, underlying types.Address) *Strategy {
	return &Strategy{kind: kind, bonds: bonds, underlying: underlying}
}

func (s *Strategy) Kind() Kind    { return s.kind }
func (s *Strategy) Decimals() int { return types.PriceDecimals }

func (s *Strategy) UnderlyingPrice() sdkmath.Int {
	return types.PriceOne
}

// Price returns token's price in underlying per unit.
func (s *Strategy) Price(token types.Address) (sdkmath.Int, error) {
	if token == s.underlying {
		return s.UnderlyingPrice(), nil
	}
	b, ok := s.bonds.BondOf(token)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: cannot price %s", types.ErrUnknownToken, token)
	}

	switch s.kind {
	case KindUnit:
		return types.PriceOne, nil
	case KindCDR:
		if !b.IsMature() {
			return types.PriceOne, nil
		}
		return cdr(b, token)
	case KindCDRLowerBound:
		if !b.IsMature() {
			return types.PriceOne, nil
		}
		p, err := cdr(b, token)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		return utils.MaxInt(p, types.PriceOne), nil
	}
	return sdkmath.ZeroInt(), fmt.Errorf("%w: pricing %s", types.ErrInvalidConfig, s.kind)
}

func cdr(b bond.Bond, tranche types.Address) (sdkmath.Int, error) {
	claim, supply, err := b.TrancheCollateralization(tranche)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if supply.IsZero() {
		return types.PriceOne, nil
	}
	return utils.MulDiv(claim, types.PriceOne, supply), nil
}
