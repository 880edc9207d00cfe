package simulations

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/perpvault/internal/config"
	"github.com/elys-network/perpvault/internal/logger"
	"github.com/elys-network/perpvault/internal/types"
)

// MarketParams shapes the scripted market.
type MarketParams struct {
	Users        int
	StepInterval time.Duration
	// Daily rebases are drawn uniformly from [MinRebase, MaxRebase].
	MinRebase sdkmath.LegacyDec
	MaxRebase sdkmath.LegacyDec
	// Each user starts with InitialBalance of underlying.
	InitialBalance sdkmath.Int
	// ActionsPerStep user actions are drawn per step.
	ActionsPerStep int
}

func DefaultMarketParams() MarketParams {
	return MarketParams{
		Users:          5,
		StepInterval:   24 * time.Hour,
		MinRebase:      sdkmath.LegacyNewDecWithPrec(-2, 2),
		MaxRebase:      sdkmath.LegacyNewDecWithPrec(3, 2),
		InitialBalance: sdkmath.NewIntWithDecimal(100_000, config.UnderlyingDecimals),
		ActionsPerStep: 3,
	}
}

// Market drives seeded user flows and rebases against an Environment. It is not safe for concurrent use.
type Market struct {
	env    *Environment
	params MarketParams
	rng    *rand.Rand
	users  []types.Address
	steps  int
	logger zerolog.Logger
}

// NewMarket funds params.Users users. Two of them seed perp and the vault so the keeper has work.
func NewMarket(env *Environment, params MarketParams, seed int64) (*Market, error) {
	m := &Market{
		env:    env,
		params: params,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger.GetForComponent("simulation_market"),
	}
	for i := 0; i < params.Users; i++ {
		u := types.Address(fmt.Sprintf("user%d", i+1))
		if err := env.Faucet(u, params.InitialBalance); err != nil {
			return nil, err
		}
		m.users = append(m.users, u)
	}
	if len(m.users) >= 2 {
		seedAmt := params.InitialBalance.QuoRaw(4)
		if _, err := env.MintPerps(m.users[0], seedAmt); err != nil {
			return nil, fmt.Errorf("failed to seed perp: %w", err)
		}
		if _, err := env.Vault.Deposit(m.users[1], seedAmt); err != nil {
			return nil, fmt.Errorf("failed to seed vault: %w", err)
		}
	}
	return m, nil
}

func (m *Market) Users() []types.Address { return m.users }
func (m *Market) Steps() int             { return m.steps }

// Step advances the clock one interval, rebases and runs a few random user actions. Caller errors and
// policy rejections of individual actions are expected and only logged.
func (m *Market) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.steps++
	m.env.Advance(m.params.StepInterval)

	perc := m.drawRebase()
	if err := m.env.Rebase(perc); err != nil {
		return fmt.Errorf("rebase failed: %w", err)
	}
	m.logger.Debug().Int("step", m.steps).Str("rebase", perc.String()).Msg("Market rebased")

	for i := 0; i < m.params.ActionsPerStep; i++ {
		if err := m.randomAction(); err != nil {
			class := types.ClassOf(err)
			if class == types.ClassInvariant || class == types.ClassUnknown {
				return err
			}
			m.logger.Debug().Err(err).Str("class", class.String()).Msg("Market action rejected")
		}
	}
	return nil
}

func (m *Market) drawRebase() sdkmath.LegacyDec {
	span := m.params.MaxRebase.Sub(m.params.MinRebase)
	r := sdkmath.LegacyNewDecWithPrec(m.rng.Int63n(1_000_000), 6)
	return m.params.MinRebase.Add(span.Mul(r))
}

// fraction returns between 1% and 10% of bal.
func (m *Market) fraction(bal sdkmath.Int) sdkmath.Int {
	return bal.MulRaw(int64(m.rng.Intn(10) + 1)).QuoRaw(100)
}

func (m *Market) randomAction() error {
	if len(m.users) == 0 {
		return nil
	}
	user := m.users[m.rng.Intn(len(m.users))]
	underlyingBal := m.env.Balance(m.env.Config.Underlying, user)
	perpBal := m.env.Balance(m.env.Config.PerpDenom, user)
	noteBal := m.env.Balance(m.env.Config.VaultDenom, user)

	var err error
	action := m.rng.Intn(6)
	switch action {
	case 0:
		_, err = m.env.MintPerps(user, m.fraction(underlyingBal))
	case 1:
		_, err = m.env.Perp.Redeem(user, m.fraction(perpBal))
	case 2:
		_, err = m.env.Vault.Deposit(user, m.fraction(underlyingBal))
	case 3:
		_, err = m.env.Vault.Redeem(user, m.fraction(noteBal))
	case 4:
		_, err = m.env.Vault.SwapUnderlyingForPerps(user, m.fraction(underlyingBal))
	case 5:
		_, err = m.env.Vault.SwapPerpsForUnderlying(user, m.fraction(perpBal))
	}
	if err == nil {
		m.logger.Debug().Str("user", user.String()).Int("action", action).Msg("Market action executed")
	}
	return err
}
