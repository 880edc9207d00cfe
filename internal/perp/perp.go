// Package perp implements the perpetual tranche token: a reserve of senior tranches and underlying
// collateral that rotates as bonds approach maturity.
package perp

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/assetset"
	"github.com/elys-network/perpvault/internal/bond"
	"github.com/elys-network/perpvault/internal/discount"
	"github.com/elys-network/perpvault/internal/feepolicy"
	"github.com/elys-network/perpvault/internal/guard"
	"github.com/elys-network/perpvault/internal/ledger"
	"github.com/elys-network/perpvault/internal/logger"
	"github.com/elys-network/perpvault/internal/pricing"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

var perpLogger = logger.GetForComponent("perp")

// BondIssuer hands out the latest bond and resolves tranches. *bond.Issuer implements it.
type BondIssuer interface {
	bond.Registry
	GetLatestBond() (bond.Bond, error)
}

// VaultReader is the vault surface perp reads for the subscription state. The vault is also the only
// caller allowed to roll over and is exempt from mint and burn fees.
type VaultReader interface {
	Address() types.Address
	GetTVL() (sdkmath.Int, error)
}

type Config struct {
	// Address is both the perp denom and the account holding the reserve.
	Address    types.Address
	Underlying types.Address

	// A deposit bond must mature between MinTrancheMaturity and MaxTrancheMaturity from now.
	// Reserve tranches closer than MinTrancheMaturity to maturity are up for rollover.
	MinTrancheMaturity time.Duration
	MaxTrancheMaturity time.Duration

	MaxReserveCount int
}

func (c Config) Validate() error {
	if c.Address == "" || c.Underlying == "" || c.Address == c.Underlying {
		return fmt.Errorf("%w: perp and underlying denoms must be set and distinct", types.ErrInvalidConfig)
	}
	if c.MinTrancheMaturity < 0 || c.MaxTrancheMaturity < c.MinTrancheMaturity {
		return fmt.Errorf("%w: tranche maturity window [%s, %s]", types.ErrInvalidRange, c.MinTrancheMaturity, c.MaxTrancheMaturity)
	}
	if c.MaxReserveCount <= 0 || c.MaxReserveCount > types.MaxReserveCount {
		return fmt.Errorf("%w: max reserve count %d", types.ErrInvalidConfig, c.MaxReserveCount)
	}
	return nil
}

type Perp struct {
	cfg      Config
	ledger   *ledger.Ledger
	issuer   BondIssuer
	pricing  *pricing.Strategy
	discount *discount.Strategy
	policy   *feepolicy.Policy
	vault    VaultReader

	reserve     *assetset.Set
	depositBond bond.Bond
	guard       guard.Guard
}

type perpSnapshot struct {
	depositBond bond.Bond
	reserve     any
}

func New(cfg Config, l *ledger.Ledger, issuer BondIssuer, pr *pricing.Strategy, disc *discount.Strategy, policy *feepolicy.Policy) (*Perp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := l.RegisterToken(cfg.Address, false); err != nil {
		return nil, err
	}
	p := &Perp{
		cfg:      cfg,
		ledger:   l,
		issuer:   issuer,
		pricing:  pr,
		discount: disc,
		reserve:  assetset.New(cfg.Address, cfg.MaxReserveCount, l, cfg.Underlying),
	}
	if err := p.SetFeePolicy(policy); err != nil {
		return nil, err
	}
	l.Register(p)
	return p, nil
}

func (p *Perp) Snapshot() any {
	return perpSnapshot{depositBond: p.depositBond, reserve: p.reserve.Snapshot()}
}

func (p *Perp) Restore(snapshot any) {
	s := snapshot.(perpSnapshot)
	p.depositBond = s.depositBond
	p.reserve.Restore(s.reserve)
}

func (p *Perp) Address() types.Address    { return p.cfg.Address }
func (p *Perp) Underlying() types.Address { return p.cfg.Underlying }
func (p *Perp) FeePolicy() *feepolicy.Policy {
	return p.policy
}

// SetVault authorizes v as the rollover counterparty.
func (p *Perp) SetVault(v VaultReader) { p.vault = v }

// SetFeePolicy swaps the fee policy. A policy on a different scale is rejected and the old one kept.
func (p *Perp) SetFeePolicy(policy *feepolicy.Policy) error {
	if policy == nil {
		return fmt.Errorf("%w: nil fee policy", types.ErrInvalidConfig)
	}
	if policy.Decimals() != types.FeeDecimals {
		return fmt.Errorf("%w: fee policy has %d decimals, expected %d", types.ErrUnexpectedDecimals, policy.Decimals(), types.FeeDecimals)
	}
	p.policy = policy
	return nil
}

func (p *Perp) Pause()       { p.guard.Pause() }
func (p *Perp) Unpause()     { p.guard.Unpause() }
func (p *Perp) Paused() bool { return p.guard.Paused() }

// mutate runs fn under the reentrancy guard inside a ledger transaction.
func (p *Perp) mutate(fn func() error) error {
	release, err := p.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	return p.ledger.Atomic(fn)
}

func (p *Perp) isVault(caller types.Address) bool {
	return p.vault != nil && caller == p.vault.Address()
}

//---------------------------------------------------------------------------
// Views

func (p *Perp) TotalSupply() sdkmath.Int {
	return p.ledger.TotalSupply(p.cfg.Address)
}

// GetDepositBond returns the bond whose senior tranche perp currently accepts, or nil before the first UpdateState.
func (p *Perp) GetDepositBond() bond.Bond { return p.depositBond }

// GetDepositTranche returns the senior tranche of the deposit bond.
func (p *Perp) GetDepositTranche() (types.Address, error) {
	if p.depositBond == nil {
		return "", fmt.Errorf("%w: no deposit bond", types.ErrUnacceptableDeposit)
	}
	return p.depositBond.Tranches()[0].Token, nil
}

// GetDepositTrancheRatio returns the senior ratio of the deposit bond, or zero without one.
func (p *Perp) GetDepositTrancheRatio() uint64 {
	if p.depositBond == nil {
		return 0
	}
	return p.depositBond.Tranches()[0].Ratio
}

func (p *Perp) GetReserveTokens() []types.Address {
	return append([]types.Address{p.cfg.Underlying}, p.reserve.Members()...)
}

func (p *Perp) GetReserveTokenBalance(token types.Address) sdkmath.Int {
	return p.ledger.BalanceOf(token, p.cfg.Address)
}

func (p *Perp) InReserve(token types.Address) bool {
	return token == p.cfg.Underlying || p.reserve.Contains(token)
}

// GetReserveTokensUpForRollover lists the underlying (when held) followed by every reserve tranche
// whose bond is mature or within MinTrancheMaturity of maturing.
func (p *Perp) GetReserveTokensUpForRollover() []types.Address {
	var out []types.Address
	if p.GetReserveTokenBalance(p.cfg.Underlying).IsPositive() {
		out = append(out, p.cfg.Underlying)
	}
	for _, t := range p.reserve.Members() {
		if p.isUpForRollover(t) {
			out = append(out, t)
		}
	}
	return out
}

func (p *Perp) isUpForRollover(token types.Address) bool {
	if token == p.cfg.Underlying {
		return true
	}
	if !p.reserve.Contains(token) {
		return false
	}
	b, ok := p.issuer.BondOf(token)
	if !ok {
		return false
	}
	return b.IsMature() || b.SecondsToMaturity() <= uint64(p.cfg.MinTrancheMaturity/time.Second)
}

// value returns amt of token in underlying units.
func (p *Perp) value(token types.Address, amt sdkmath.Int) (sdkmath.Int, error) {
	if token == p.cfg.Underlying {
		return amt, nil
	}
	price, err := p.pricing.Price(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return utils.MulDiv(amt, price, types.PriceOne), nil
}

// discountedValue returns amt of token in underlying units weighed by its discount.
func (p *Perp) discountedValue(token types.Address, amt sdkmath.Int) (sdkmath.Int, error) {
	w, err := p.discount.Discount(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	v, err := p.value(token, amt)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return utils.MulDiv(v, w, types.DiscountOne), nil
}

// GetTVL values every reserve holding at its price.
func (p *Perp) GetTVL() (sdkmath.Int, error) {
	tvl := p.GetReserveTokenBalance(p.cfg.Underlying)
	for _, t := range p.reserve.Members() {
		v, err := p.value(t, p.GetReserveTokenBalance(t))
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		tvl = tvl.Add(v)
	}
	return tvl, nil
}

// GetReserveValue values every reserve holding at its discounted price. Mint, redeem and rollover
// amounts are proportional to it.
func (p *Perp) GetReserveValue() (sdkmath.Int, error) {
	total := p.GetReserveTokenBalance(p.cfg.Underlying)
	for _, t := range p.reserve.Members() {
		v, err := p.discountedValue(t, p.GetReserveTokenBalance(t))
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		total = total.Add(v)
	}
	return total, nil
}

// GetPrice is the TVL per perp on the PriceOne scale. An empty perp prices at par.
func (p *Perp) GetPrice() (sdkmath.Int, error) {
	supply := p.TotalSupply()
	if supply.IsZero() {
		return types.PriceOne, nil
	}
	tvl, err := p.GetTVL()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return utils.MulDiv(tvl, types.PriceOne, supply), nil
}

// SubscriptionState reads both TVLs and the deposit bond's senior ratio.
func (p *Perp) SubscriptionState() (types.SubscriptionState, error) {
	perpTVL, err := p.GetTVL()
	if err != nil {
		return types.SubscriptionState{}, err
	}
	vaultTVL := sdkmath.ZeroInt()
	if p.vault != nil {
		if vaultTVL, err = p.vault.GetTVL(); err != nil {
			return types.SubscriptionState{}, err
		}
	}
	return types.SubscriptionState{PerpTVL: perpTVL, VaultTVL: vaultTVL, SeniorTR: p.GetDepositTrancheRatio()}, nil
}

func (p *Perp) DeviationRatio() (sdkmath.Int, error) {
	s, err := p.SubscriptionState()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return p.policy.ComputeDeviationRatio(s), nil
}

//---------------------------------------------------------------------------
// Keeper

// UpdateState moves the deposit bond to the issuer's latest bond when it qualifies, then matures
// every reserve bond that can be and redeems its tranches into underlying.
func (p *Perp) UpdateState() error {
	return p.mutate(p.updateState)
}

func (p *Perp) updateState() error {
	latest, err := p.issuer.GetLatestBond()
	if err != nil {
		return fmt.Errorf("failed to get latest bond: %w", err)
	}
	if p.isValidDepositBond(latest) && (p.depositBond == nil || p.depositBond.Address() != latest.Address()) {
		p.depositBond = latest
		p.ledger.EmitEvent(sdk.NewEvent(types.EventTypeDepositBondUpdate,
			sdk.NewAttribute(types.AttributeKeyBond, latest.Address().String()),
			sdk.NewAttribute(types.AttributeKeyMaturity, latest.MaturityTime().Format(time.RFC3339)),
		))
		perpLogger.Info().Str("bond", latest.Address().String()).Msg("Deposit bond updated")
	}

	for _, t := range p.reserve.Members() {
		b, ok := p.issuer.BondOf(t)
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrUnexpectedReserveAsset, t)
		}
		if !b.IsMature() {
			if err := b.Mature(); err != nil {
				if errors.Is(err, types.ErrNotUpForMaturity) {
					continue
				}
				return err
			}
		}
		bal := p.GetReserveTokenBalance(t)
		if bal.IsPositive() {
			out, err := b.RedeemMature(p.cfg.Address, t, bal)
			if err != nil {
				return err
			}
			perpLogger.Debug().Str("tranche", t.String()).Str("redeemed", bal.String()).Str("underlying", out.String()).Msg("Redeemed mature reserve tranche")
		}
		p.reserve.SyncAndRemove(t)
		if err := p.reserve.Sync(p.cfg.Underlying); err != nil {
			return err
		}
	}
	return nil
}

func (p *Perp) isValidDepositBond(b bond.Bond) bool {
	if b == nil || b.IsMature() || b.CollateralToken() != p.cfg.Underlying {
		return false
	}
	secs := b.SecondsToMaturity()
	return secs >= uint64(p.cfg.MinTrancheMaturity/time.Second) && secs <= uint64(p.cfg.MaxTrancheMaturity/time.Second)
}

func (p *Perp) isDepositTranche(token types.Address) bool {
	t, err := p.GetDepositTranche()
	return err == nil && t == token
}

func (p *Perp) emitSync(tokens ...types.Address) error {
	for _, t := range tokens {
		if err := p.reserve.Sync(t); err != nil {
			return err
		}
	}
	return nil
}
