package bond

import (
	"fmt"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/ledger"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

// ledgerBond keeps its collateral under its own address in the ledger. Once settled, the collateral is
// moved to each tranche's address by seniority, after which rebases accrue to the tranches directly.
// The bond is mature from its maturity time on. Settlement happens on the first Mature or RedeemMature
// call after that.
type ledgerBond struct {
	ledger     *ledger.Ledger
	clock      types.Clock
	addr       types.Address
	collateral types.Address
	tranches   []TrancheData
	index      map[types.Address]int
	maturity   time.Time
	duration   time.Duration
	settled    bool
}

var _ Bond = (*ledgerBond)(nil)

func newLedgerBond(l *ledger.Ledger, clock types.Clock, addr, collateral types.Address, ratios []uint64, duration time.Duration) (*ledgerBond, error) {
	if err := ValidateRatios(ratios); err != nil {
		return nil, err
	}
	b := &ledgerBond{
		ledger:     l,
		clock:      clock,
		addr:       addr,
		collateral: collateral,
		index:      make(map[types.Address]int, len(ratios)),
		maturity:   clock.Now().Add(duration),
		duration:   duration,
	}
	for i, r := range ratios {
		tok := types.Address(addr.String() + "/tr" + strconv.Itoa(i))
		if err := l.RegisterToken(tok, false); err != nil {
			return nil, err
		}
		b.tranches = append(b.tranches, TrancheData{Token: tok, Ratio: r})
		b.index[tok] = i
	}
	return b, nil
}

func (b *ledgerBond) Address() types.Address         { return b.addr }
func (b *ledgerBond) CollateralToken() types.Address { return b.collateral }
func (b *ledgerBond) IsMature() bool                 { return b.settled || !b.clock.Now().Before(b.maturity) }
func (b *ledgerBond) MaturityTime() time.Time        { return b.maturity }
func (b *ledgerBond) Duration() uint64               { return uint64(b.duration / time.Second) }

func (b *ledgerBond) Tranches() []TrancheData {
	out := make([]TrancheData, len(b.tranches))
	copy(out, b.tranches)
	return out
}

func (b *ledgerBond) Ratios() []uint64 {
	out := make([]uint64, len(b.tranches))
	for i, t := range b.tranches {
		out[i] = t.Ratio
	}
	return out
}

func (b *ledgerBond) TrancheIndex(tranche types.Address) (int, bool) {
	i, ok := b.index[tranche]
	return i, ok
}

func (b *ledgerBond) SecondsToMaturity() uint64 {
	now := b.clock.Now()
	if !now.Before(b.maturity) {
		return 0
	}
	return uint64(b.maturity.Sub(now) / time.Second)
}

func (b *ledgerBond) TotalDebt() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, t := range b.tranches {
		total = total.Add(b.ledger.TotalSupply(t.Token))
	}
	return total
}

func (b *ledgerBond) CollateralBalance() sdkmath.Int {
	return b.ledger.BalanceOf(b.collateral, b.addr)
}

func (b *ledgerBond) supplies() []sdkmath.Int {
	out := make([]sdkmath.Int, len(b.tranches))
	for i, t := range b.tranches {
		out[i] = b.ledger.TotalSupply(t.Token)
	}
	return out
}

// waterfall splits collateral across tranches by seniority. The last tranche absorbs the remainder.
func waterfall(collateral sdkmath.Int, supplies []sdkmath.Int) []sdkmath.Int {
	claims := make([]sdkmath.Int, len(supplies))
	remaining := collateral
	for i, s := range supplies {
		if i == len(supplies)-1 {
			claims[i] = remaining
			break
		}
		claims[i] = utils.MinInt(remaining, s)
		remaining = remaining.Sub(claims[i])
	}
	return claims
}

func (b *ledgerBond) TrancheCollateralization(tranche types.Address) (sdkmath.Int, sdkmath.Int, error) {
	i, ok := b.index[tranche]
	if !ok {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %s is not a tranche of %s", types.ErrUnknownToken, tranche, b.addr)
	}
	supply := b.ledger.TotalSupply(tranche)
	if b.settled {
		return b.ledger.BalanceOf(b.collateral, tranche), supply, nil
	}
	claims := waterfall(b.CollateralBalance(), b.supplies())
	return claims[i], supply, nil
}

func (b *ledgerBond) PreviewDeposit(amt sdkmath.Int) ([]sdkmath.Int, error) {
	if b.IsMature() {
		return nil, fmt.Errorf("%w: bond %s is mature", types.ErrUnacceptableDeposit, b.addr)
	}
	if !amt.IsPositive() {
		return nil, fmt.Errorf("%w: deposit must be positive", types.ErrInvalidAmount)
	}
	debt := b.TotalDebt()
	newDebt := amt
	if debt.IsPositive() {
		coll := b.CollateralBalance()
		if coll.IsZero() {
			return nil, fmt.Errorf("%w: bond %s has debt but no collateral", types.ErrUnacceptableDeposit, b.addr)
		}
		newDebt = utils.MulDiv(amt, debt, coll)
	}
	out := make([]sdkmath.Int, len(b.tranches))
	minted := sdkmath.ZeroInt()
	for i, t := range b.tranches {
		if i == len(b.tranches)-1 {
			out[i] = newDebt.Sub(minted)
			break
		}
		out[i] = newDebt.MulRaw(int64(t.Ratio)).QuoRaw(types.TrancheRatioGranularity)
		minted = minted.Add(out[i])
	}
	return out, nil
}

func (b *ledgerBond) Deposit(holder types.Address, amt sdkmath.Int) ([]sdkmath.Int, error) {
	amounts, err := b.PreviewDeposit(amt)
	if err != nil {
		return nil, err
	}
	if err := b.ledger.Transfer(b.collateral, holder, b.addr, amt); err != nil {
		return nil, err
	}
	for i, t := range b.tranches {
		if err := b.ledger.Mint(t.Token, holder, amounts[i]); err != nil {
			return nil, err
		}
	}
	return amounts, nil
}

func (b *ledgerBond) Redeem(holder types.Address, amounts []sdkmath.Int) (sdkmath.Int, error) {
	if b.IsMature() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: bond %s is mature", types.ErrUnacceptableRedemption, b.addr)
	}
	if len(amounts) != len(b.tranches) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d amounts for %d tranches", types.ErrArrayLengthMismatch, len(amounts), len(b.tranches))
	}
	r0 := int64(b.tranches[0].Ratio)
	for i, t := range b.tranches {
		if !amounts[i].MulRaw(r0).Equal(amounts[0].MulRaw(int64(t.Ratio))) {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: amounts are not proportional to tranche ratios", types.ErrUnacceptableRedemption)
		}
	}
	total := utils.SumInts(amounts)
	if !total.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nothing to redeem", types.ErrInvalidAmount)
	}
	out := utils.MulDiv(b.CollateralBalance(), total, b.TotalDebt())
	for i, t := range b.tranches {
		if err := b.ledger.Burn(t.Token, holder, amounts[i]); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	if err := b.ledger.Transfer(b.collateral, b.addr, holder, out); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

func (b *ledgerBond) Mature() error {
	if b.settled {
		return nil
	}
	if b.clock.Now().Before(b.maturity) {
		return fmt.Errorf("%w: %s matures at %s", types.ErrNotUpForMaturity, b.addr, b.maturity.Format(time.RFC3339))
	}
	claims := waterfall(b.CollateralBalance(), b.supplies())
	for i, t := range b.tranches {
		if err := b.ledger.Transfer(b.collateral, b.addr, t.Token, claims[i]); err != nil {
			return err
		}
	}
	b.settled = true
	b.ledger.EmitEvent(sdk.NewEvent(types.EventTypeBondMatured,
		sdk.NewAttribute(types.AttributeKeyBond, b.addr.String()),
	))
	return nil
}

func (b *ledgerBond) RedeemMature(holder, tranche types.Address, amt sdkmath.Int) (sdkmath.Int, error) {
	if err := b.Mature(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if _, ok := b.index[tranche]; !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s is not a tranche of %s", types.ErrUnknownToken, tranche, b.addr)
	}
	if !amt.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: nothing to redeem", types.ErrInvalidAmount)
	}
	out := utils.MulDiv(b.ledger.BalanceOf(b.collateral, tranche), amt, b.ledger.TotalSupply(tranche))
	if err := b.ledger.Burn(tranche, holder, amt); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := b.ledger.Transfer(b.collateral, tranche, holder, out); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

func (b *ledgerBond) ComputeRedeemableTrancheAmounts(holder types.Address) ([]sdkmath.Int, error) {
	balances := make([]sdkmath.Int, len(b.tranches))
	for i, t := range b.tranches {
		balances[i] = b.ledger.BalanceOf(t.Token, holder)
	}
	return ComputeRedeemableTrancheAmounts(b.Ratios(), balances)
}
