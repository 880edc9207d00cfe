// Package simulations wires a complete in-memory engine (ledger, bond issuer, perp, vault) around a
// manual clock, and scripts a market against it for keeper dry runs and tests.
package simulations

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/perpvault/internal/bond"
	"github.com/elys-network/perpvault/internal/config"
	"github.com/elys-network/perpvault/internal/discount"
	"github.com/elys-network/perpvault/internal/feepolicy"
	"github.com/elys-network/perpvault/internal/ledger"
	"github.com/elys-network/perpvault/internal/logger"
	"github.com/elys-network/perpvault/internal/perp"
	"github.com/elys-network/perpvault/internal/pricing"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/vault"
)

var envLogger = logger.GetForComponent("simulation_env")

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// EnvironmentConfig is everything needed to stand up an engine.
type EnvironmentConfig struct {
	Underlying   types.Address
	PerpDenom    types.Address
	VaultDenom   types.Address
	FeeCollector types.Address

	Pricing  pricing.Kind
	Discount discount.Kind

	Engine    config.EngineParameters
	FeePolicy types.FeePolicyParams
	Start     time.Time
}

// DefaultEnvironmentConfig uses the configured default parameters with CDR pricing and unit discounts.
func DefaultEnvironmentConfig() EnvironmentConfig {
	return EnvironmentConfig{
		Underlying:   "ampl",
		PerpDenom:    "spot",
		VaultDenom:   "vault",
		FeeCollector: "feecollector",
		Pricing:      pricing.KindCDR,
		Discount:     discount.KindUnit,
		Engine:       config.DefaultEngineParameters(),
		FeePolicy:    config.DefaultFeePolicy(),
		Start:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type Environment struct {
	Config   EnvironmentConfig
	Clock    *ManualClock
	Ledger   *ledger.Ledger
	Issuer   *bond.Issuer
	Pricing  *pricing.Strategy
	Discount *discount.Strategy
	Policy   *feepolicy.Policy
	Perp     *perp.Perp
	Vault    *vault.Vault
}

// NewEnvironment builds the engine and issues the first bond. With class defined discounts the senior
// class of the configured ratios is weighted at one, so perp accepts deposits from the start.
func NewEnvironment(cfg EnvironmentConfig) (*Environment, error) {
	env := &Environment{
		Config: cfg,
		Clock:  NewManualClock(cfg.Start),
		Ledger: ledger.New(),
	}
	if err := env.Ledger.RegisterToken(cfg.Underlying, true); err != nil {
		return nil, err
	}

	var err error
	env.Issuer, err = bond.NewIssuer(env.Ledger, env.Clock, cfg.Underlying, bond.IssuerParams{
		TrancheRatios:        cfg.Engine.TrancheRatios,
		MinIssueTimeInterval: cfg.Engine.BondIssueInterval,
		Duration:             cfg.Engine.BondDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bond issuer: %w", err)
	}
	env.Pricing = pricing.New(cfg.Pricing, env.Issuer, cfg.Underlying)
	env.Discount = discount.New(cfg.Discount, env.Issuer, cfg.Underlying, env.Ledger)

	env.Policy, err = feepolicy.New(cfg.FeePolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid fee policy: %w", err)
	}

	env.Perp, err = perp.New(perp.Config{
		Address:            cfg.PerpDenom,
		Underlying:         cfg.Underlying,
		MinTrancheMaturity: cfg.Engine.MinTrancheMaturity,
		MaxTrancheMaturity: cfg.Engine.MaxTrancheMaturity,
		MaxReserveCount:    cfg.Engine.MaxReserveCount,
	}, env.Ledger, env.Issuer, env.Pricing, env.Discount, env.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to create perp: %w", err)
	}

	env.Vault, err = vault.New(vault.Config{
		Address:          cfg.VaultDenom,
		MinDeploymentAmt: cfg.Engine.MinDeploymentAmt,
		MinUnderlyingBal: cfg.Engine.MinUnderlyingBal,
		TrancheDustAmt:   cfg.Engine.TrancheDustAmt,
		MinSwapAmt:       cfg.Engine.MinSwapAmt,
		MaxDeployedCount: cfg.Engine.MaxDeployedCount,
		MaxRefinements:   cfg.Engine.MaxRefinements,
		FeeCollector:     cfg.FeeCollector,
	}, env.Ledger, env.Issuer, env.Perp)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault: %w", err)
	}

	if err := env.Perp.UpdateState(); err != nil {
		return nil, err
	}
	if cfg.Discount == discount.KindClassDefined {
		b := env.Perp.GetDepositBond()
		if b == nil {
			return nil, fmt.Errorf("%w: first bond is not a valid deposit bond", types.ErrInvalidConfig)
		}
		if err := env.Discount.UpdateDefinedDiscount(discount.TrancheClass(b, 0), types.DiscountOne); err != nil {
			return nil, err
		}
	}

	envLogger.Info().
		Str("underlying", cfg.Underlying.String()).
		Str("perp", cfg.PerpDenom.String()).
		Str("vault", cfg.VaultDenom.String()).
		Str("pricing", cfg.Pricing.String()).
		Str("discount", cfg.Discount.String()).
		Msg("Simulation environment ready")
	return env, nil
}

// Faucet mints amt of underlying to addr.
func (e *Environment) Faucet(addr types.Address, amt sdkmath.Int) error {
	return e.Ledger.Mint(e.Config.Underlying, addr, amt)
}

// Rebase scales every underlying balance by 1+perc.
func (e *Environment) Rebase(perc sdkmath.LegacyDec) error {
	return e.Ledger.RebaseByPerc(e.Config.Underlying, perc)
}

// Advance moves the clock forward.
func (e *Environment) Advance(d time.Duration) {
	e.Clock.Advance(d)
}

// Balance is addr's balance of token.
func (e *Environment) Balance(token, addr types.Address) sdkmath.Int {
	return e.Ledger.BalanceOf(token, addr)
}

// MintPerps tranches underlyingAmt of user's underlying in the deposit bond and deposits the senior
// tranche into perp. The junior tranches stay with user.
func (e *Environment) MintPerps(user types.Address, underlyingAmt sdkmath.Int) (sdkmath.Int, error) {
	b := e.Perp.GetDepositBond()
	if b == nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: perp has no deposit bond", types.ErrUnacceptableDeposit)
	}
	var minted sdkmath.Int
	err := e.Ledger.Atomic(func() error {
		amounts, err := b.Deposit(user, underlyingAmt)
		if err != nil {
			return err
		}
		minted, err = e.Perp.Deposit(user, b.Tranches()[0].Token, amounts[0])
		return err
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return minted, nil
}
