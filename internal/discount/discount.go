// Package discount weighs reserve tokens by tranche class. Weights are on the types.DiscountOne scale.
package discount

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"golang.org/x/crypto/sha3"

	"github.com/elys-network/perpvault/internal/bond"
	"github.com/elys-network/perpvault/internal/ledger"
	"github.com/elys-network/perpvault/internal/types"
)

// Class identifies tranches with the same collateral, ratio vector and seniority across bond instances.
type Class [32]byte

func (c Class) String() string { return hex.EncodeToString(c[:]) }

// TrancheClass hashes (collateral, ratios, index) with Keccak256, each integer as a 32 byte word.
func TrancheClass(b bond.Bond, index int) Class {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(b.CollateralToken()))
	for _, r := range b.Ratios() {
		h.Write(word(new(big.Int).SetUint64(r)))
	}
	h.Write(word(big.NewInt(int64(index))))
	var c Class
	copy(c[:], h.Sum(nil))
	return c
}

func word(v *big.Int) []byte {
	return v.FillBytes(make([]byte, 32))
}

type Kind int

const (
	// KindClassDefined reads owner-set weights per class. Unset classes weigh zero.
	KindClassDefined Kind = iota
	// KindUnit weighs every tranche at DiscountOne.
	KindUnit
)

func (k Kind) String() string {
	if k == KindUnit {
		return "unit"
	}
	return "class_defined"
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "class_defined", "class-defined", "":
		return KindClassDefined, nil
	case "unit":
		return KindUnit, nil
	}
	return KindClassDefined, fmt.Errorf("%w: unknown discount strategy %q", types.ErrInvalidConfig, s)
}

// Strategy looks weights up on every read, so updates revalue existing holdings immediately.
type Strategy struct {
	kind       Kind
	bonds      bond.Registry
	underlying types.Address
	events     *ledger.Ledger
	weights    map[Class]sdkmath.Int
}

func New(kind Kind, bonds bond.Registry, underlying types.Address, l *ledger.Ledger) *Strategy {
	s := &Strategy{
		kind:       kind,
		bonds:      bonds,
		underlying: underlying,
		events:     l,
		weights:    make(map[Class]sdkmath.Int),
	}
	l.Register(s)
	return s
}

func (s *Strategy) Kind() Kind    { return s.kind }
func (s *Strategy) Decimals() int { return types.DiscountDecimals }

func (s *Strategy) UnderlyingDiscount() sdkmath.Int { return types.DiscountOne }

// ClassOf returns the class of a known tranche.
func (s *Strategy) ClassOf(tranche types.Address) (Class, error) {
	b, ok := s.bonds.BondOf(tranche)
	if !ok {
		return Class{}, fmt.Errorf("%w: %s is not a tranche", types.ErrUnknownToken, tranche)
	}
	i, _ := b.TrancheIndex(tranche)
	return TrancheClass(b, i), nil
}

// Discount returns token's weight.
func (s *Strategy) Discount(token types.Address) (sdkmath.Int, error) {
	if token == s.underlying {
		return s.UnderlyingDiscount(), nil
	}
	class, err := s.ClassOf(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if s.kind == KindUnit {
		return types.DiscountOne, nil
	}
	if w, ok := s.weights[class]; ok {
		return w, nil
	}
	return sdkmath.ZeroInt(), nil
}

// UpdateDefinedDiscount sets the weight of a class.
func (s *Strategy) UpdateDefinedDiscount(class Class, weight sdkmath.Int) error {
	if weight.IsNegative() || weight.GT(types.DiscountOne) {
		return fmt.Errorf("%w: discount %s outside [0, %s]", types.ErrInvalidPerc, weight, types.DiscountOne)
	}
	s.weights[class] = weight
	s.events.EmitEvent(sdk.NewEvent(types.EventTypeDiscountUpdated,
		sdk.NewAttribute(types.AttributeKeyClass, class.String()),
		sdk.NewAttribute(types.AttributeKeyAmount, weight.String()),
	))
	return nil
}

// UpdateTrancheDiscount sets the weight of tranche's class.
func (s *Strategy) UpdateTrancheDiscount(tranche types.Address, weight sdkmath.Int) error {
	class, err := s.ClassOf(tranche)
	if err != nil {
		return err
	}
	return s.UpdateDefinedDiscount(class, weight)
}

func (s *Strategy) Snapshot() any {
	out := make(map[Class]sdkmath.Int, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

func (s *Strategy) Restore(snapshot any) {
	s.weights = snapshot.(map[Class]sdkmath.Int)
}
