// Package vault implements the rollover vault: it holds underlying, tranches the perp deposit bond,
// rolls fresh seniors into perp, redeems tranches back into underlying and mints notes to depositors.
package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/assetset"
	"github.com/elys-network/perpvault/internal/bond"
	"github.com/elys-network/perpvault/internal/guard"
	"github.com/elys-network/perpvault/internal/ledger"
	"github.com/elys-network/perpvault/internal/logger"
	"github.com/elys-network/perpvault/internal/perp"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

var vaultLogger = logger.GetForComponent("vault")

// Phase is where the vault is in its deploy/recover lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDeploying
	PhaseDeployed
	PhaseRecovering
)

func (p Phase) String() string {
	switch p {
	case PhaseDeploying:
		return "deploying"
	case PhaseDeployed:
		return "deployed"
	case PhaseRecovering:
		return "recovering"
	}
	return "idle"
}

type Config struct {
	// Address is both the vault note denom and the account holding the vault's assets.
	Address types.Address

	// MinDeploymentAmt is the least underlying a deploy may tranche.
	MinDeploymentAmt sdkmath.Int
	// MinUnderlyingBal is kept liquid for swaps and redemptions.
	MinUnderlyingBal sdkmath.Int
	// TrancheDustAmt: immature tranche balances at or below it are not worth a proportional redemption,
	// and redemption shares below it are not transferred.
	TrancheDustAmt sdkmath.Int
	// MinSwapAmt is the least a swap or meld may bring in.
	MinSwapAmt sdkmath.Int

	MaxDeployedCount int
	// MaxRefinements bounds the deploy amount refinement loop.
	MaxRefinements int

	// FeeCollector receives the fixed deployment fee.
	FeeCollector types.Address
}

func (c Config) Validate() error {
	if c.Address == "" || c.FeeCollector == "" {
		return fmt.Errorf("%w: vault address and fee collector must be set", types.ErrInvalidConfig)
	}
	for name, v := range map[string]sdkmath.Int{
		"min_deployment_amt": c.MinDeploymentAmt,
		"min_underlying_bal": c.MinUnderlyingBal,
		"tranche_dust_amt":   c.TrancheDustAmt,
		"min_swap_amt":       c.MinSwapAmt,
	} {
		if v.IsNil() || v.IsNegative() {
			return fmt.Errorf("%w: %s must be non-negative", types.ErrInvalidConfig, name)
		}
	}
	if c.MaxDeployedCount <= 0 || c.MaxDeployedCount > types.MaxDeployedCount {
		return fmt.Errorf("%w: max deployed count %d", types.ErrInvalidConfig, c.MaxDeployedCount)
	}
	if c.MaxRefinements <= 0 {
		return fmt.Errorf("%w: max refinements must be positive", types.ErrInvalidConfig)
	}
	return nil
}

type Vault struct {
	cfg    Config
	ledger *ledger.Ledger
	bonds  bond.Registry
	perp   *perp.Perp

	deployed *assetset.Set
	phase    Phase
	guard    guard.Guard
}

type vaultSnapshot struct {
	phase    Phase
	deployed any
}

// New registers the note denom, authorizes the vault with perp and journals the vault's own state.
func New(cfg Config, l *ledger.Ledger, bonds bond.Registry, p *perp.Perp) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := l.RegisterToken(cfg.Address, false); err != nil {
		return nil, err
	}
	v := &Vault{
		cfg:      cfg,
		ledger:   l,
		bonds:    bonds,
		perp:     p,
		deployed: assetset.New(cfg.Address, cfg.MaxDeployedCount, l, p.Underlying(), p.Address()),
	}
	p.SetVault(v)
	l.Register(v)
	vaultLogger.Info().
		Str("address", cfg.Address.String()).
		Str("underlying", p.Underlying().String()).
		Int("maxDeployedCount", cfg.MaxDeployedCount).
		Msg("Vault initialized")
	return v, nil
}

func (v *Vault) Snapshot() any {
	return vaultSnapshot{phase: v.phase, deployed: v.deployed.Snapshot()}
}

func (v *Vault) Restore(snapshot any) {
	s := snapshot.(vaultSnapshot)
	v.phase = s.phase
	v.deployed.Restore(s.deployed)
}

func (v *Vault) Address() types.Address { return v.cfg.Address }
func (v *Vault) Config() Config         { return v.cfg }
func (v *Vault) Phase() Phase           { return v.phase }
func (v *Vault) Perp() *perp.Perp       { return v.perp }

func (v *Vault) Pause()       { v.guard.Pause() }
func (v *Vault) Unpause()     { v.guard.Unpause() }
func (v *Vault) Paused() bool { return v.guard.Paused() }

func (v *Vault) mutate(fn func() error) error {
	release, err := v.guard.Enter()
	if err != nil {
		return err
	}
	defer release()
	return v.ledger.Atomic(fn)
}

func (v *Vault) underlying() types.Address { return v.perp.Underlying() }

func (v *Vault) balance(token types.Address) sdkmath.Int {
	return v.ledger.BalanceOf(token, v.cfg.Address)
}

func (v *Vault) TotalSupply() sdkmath.Int {
	return v.ledger.TotalSupply(v.cfg.Address)
}

// DeployedAssets returns the tranches the vault currently holds.
func (v *Vault) DeployedAssets() []types.Address {
	return v.deployed.Members()
}

func (v *Vault) IsDeployed(token types.Address) bool {
	return v.deployed.Contains(token)
}

// Holdings lists every non-zero vault balance: underlying, deployed tranches and perps.
func (v *Vault) Holdings() sdk.Coins {
	coins := sdk.NewCoins()
	for _, t := range v.assets() {
		if bal := v.balance(t); bal.IsPositive() {
			coins = coins.Add(sdk.NewCoin(t.String(), bal))
		}
	}
	return coins
}

func (v *Vault) assets() []types.Address {
	out := []types.Address{v.underlying()}
	out = append(out, v.deployed.Members()...)
	return append(out, v.perp.Address())
}

// trancheValue is a tranche balance's claim on its bond's collateral.
func (v *Vault) trancheValue(token types.Address, amt sdkmath.Int) (sdkmath.Int, error) {
	b, ok := v.bonds.BondOf(token)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", types.ErrUnexpectedReserveAsset, token)
	}
	claim, supply, err := b.TrancheCollateralization(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return utils.MulDiv(amt, claim, supply), nil
}

// GetTVL values underlying at par, tranches at their collateral claim and perps at perp's price.
func (v *Vault) GetTVL() (sdkmath.Int, error) {
	tvl := v.balance(v.underlying())
	for _, t := range v.deployed.Members() {
		val, err := v.trancheValue(t, v.balance(t))
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		tvl = tvl.Add(val)
	}
	if perpBal := v.balance(v.perp.Address()); perpBal.IsPositive() {
		perpTVL, err := v.perp.GetTVL()
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		tvl = tvl.Add(utils.MulDiv(perpBal, perpTVL, v.perp.TotalSupply()))
	}
	return tvl, nil
}

func (v *Vault) SubscriptionState() (types.SubscriptionState, error) {
	return v.perp.SubscriptionState()
}

func (v *Vault) DeviationRatio() (sdkmath.Int, error) {
	return v.perp.DeviationRatio()
}

func (v *Vault) RolloverFeePerc() (sdkmath.Int, error) {
	return v.perp.ComputeRolloverFeePerc()
}

func (v *Vault) PerpPrice() (sdkmath.Int, error) {
	return v.perp.GetPrice()
}

func (v *Vault) UpdatePerpState() error {
	return v.perp.UpdateState()
}

func (v *Vault) EventsSince(n int) sdk.Events { return v.ledger.EventsSince(n) }
func (v *Vault) EventCount() int              { return v.ledger.EventCount() }

// sync records the vault's balance of each token in the deployed set.
func (v *Vault) sync(tokens ...types.Address) error {
	for _, t := range tokens {
		if err := v.deployed.Sync(t); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vault) syncBond(b bond.Bond) error {
	for _, t := range b.Tranches() {
		if err := v.sync(t.Token); err != nil {
			return err
		}
	}
	return nil
}

// checkTVL fails the surrounding transaction when the vault ended up worth less than before.
func (v *Vault) checkTVL(before sdkmath.Int) error {
	after, err := v.GetTVL()
	if err != nil {
		return err
	}
	if after.LT(before) {
		return fmt.Errorf("%w: %s -> %s", types.ErrTVLDecreased, before, after)
	}
	return nil
}
