// Package ledger keeps token balances, supplies and the event log for the engine, and executes
// state-mutating calls atomically.
package ledger

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/types"
)

// initialGonsPerFragment gives rebasing balances ample precision headroom.
var initialGonsPerFragment = sdkmath.NewIntWithDecimal(1, 24)

type token struct {
	denom    types.Address
	rebasing bool

	// balances are in gons for rebasing tokens, in plain units otherwise.
	balances        map[types.Address]sdkmath.Int
	totalSupply     sdkmath.Int
	totalGons       sdkmath.Int
	gonsPerFragment sdkmath.Int
}

func (t *token) clone() *token {
	c := *t
	c.balances = make(map[types.Address]sdkmath.Int, len(t.balances))
	for k, v := range t.balances {
		c.balances[k] = v
	}
	return &c
}

func (t *token) raw(holder types.Address) sdkmath.Int {
	if b, ok := t.balances[holder]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

func (t *token) balanceOf(holder types.Address) sdkmath.Int {
	raw := t.raw(holder)
	if !t.rebasing {
		return raw
	}
	return raw.Quo(t.gonsPerFragment)
}

func (t *token) toRaw(amt sdkmath.Int) sdkmath.Int {
	if !t.rebasing {
		return amt
	}
	return amt.Mul(t.gonsPerFragment)
}

func (t *token) setRaw(holder types.Address, v sdkmath.Int) {
	if v.IsZero() {
		delete(t.balances, holder)
		return
	}
	t.balances[holder] = v
}

// Journaled is implemented by collaborators whose in-memory state must roll back with the ledger.
type Journaled interface {
	Snapshot() any
	Restore(snapshot any)
}

// Ledger is the single source of truth for balances. It is not safe for concurrent use; callers
// serialize entry points (see internal/guard).
type Ledger struct {
	tokens   map[types.Address]*token
	events   sdk.Events
	journals []Journaled
}

func New() *Ledger {
	return &Ledger{
		tokens: make(map[types.Address]*token),
		events: sdk.EmptyEvents(),
	}
}

// RegisterToken creates a new token. Rebasing tokens track balances in gons.
func (l *Ledger) RegisterToken(denom types.Address, rebasing bool) error {
	if err := sdk.ValidateDenom(denom.String()); err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrInvalidConfig, denom, err)
	}
	if _, ok := l.tokens[denom]; ok {
		return fmt.Errorf("%w: %s", types.ErrTokenExists, denom)
	}
	t := &token{
		denom:       denom,
		rebasing:    rebasing,
		balances:    make(map[types.Address]sdkmath.Int),
		totalSupply: sdkmath.ZeroInt(),
		totalGons:   sdkmath.ZeroInt(),
	}
	if rebasing {
		t.gonsPerFragment = initialGonsPerFragment
	}
	l.tokens[denom] = t
	return nil
}

func (l *Ledger) HasToken(denom types.Address) bool {
	_, ok := l.tokens[denom]
	return ok
}

func (l *Ledger) token(denom types.Address) (*token, error) {
	t, ok := l.tokens[denom]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownToken, denom)
	}
	return t, nil
}

// BalanceOf returns holder's balance of denom; unknown tokens read as zero.
func (l *Ledger) BalanceOf(denom, holder types.Address) sdkmath.Int {
	t, ok := l.tokens[denom]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return t.balanceOf(holder)
}

func (l *Ledger) TotalSupply(denom types.Address) sdkmath.Int {
	t, ok := l.tokens[denom]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return t.totalSupply
}

// Balances lists every non-zero balance held by holder as coins.
func (l *Ledger) Balances(holder types.Address) sdk.Coins {
	denoms := make([]string, 0, len(l.tokens))
	for d := range l.tokens {
		denoms = append(denoms, d.String())
	}
	sort.Strings(denoms)
	coins := sdk.NewCoins()
	for _, d := range denoms {
		bal := l.tokens[types.Address(d)].balanceOf(holder)
		if bal.IsPositive() {
			coins = coins.Add(sdk.NewCoin(d, bal))
		}
	}
	return coins
}

func (l *Ledger) Transfer(denom, from, to types.Address, amt sdkmath.Int) error {
	if amt.IsNegative() {
		return fmt.Errorf("%w: negative transfer of %s", types.ErrInvalidAmount, denom)
	}
	if amt.IsZero() || from == to {
		return nil
	}
	t, err := l.token(denom)
	if err != nil {
		return err
	}
	raw := t.toRaw(amt)
	fromRaw := t.raw(from)
	if fromRaw.LT(raw) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", types.ErrInsufficientBalance, from, t.balanceOf(from), denom, amt)
	}
	t.setRaw(from, fromRaw.Sub(raw))
	t.setRaw(to, t.raw(to).Add(raw))
	return nil
}

func (l *Ledger) Mint(denom, to types.Address, amt sdkmath.Int) error {
	if amt.IsNegative() {
		return fmt.Errorf("%w: negative mint of %s", types.ErrInvalidAmount, denom)
	}
	if amt.IsZero() {
		return nil
	}
	t, err := l.token(denom)
	if err != nil {
		return err
	}
	raw := t.toRaw(amt)
	t.setRaw(to, t.raw(to).Add(raw))
	t.totalSupply = t.totalSupply.Add(amt)
	t.totalGons = t.totalGons.Add(raw)
	return nil
}

func (l *Ledger) Burn(denom, from types.Address, amt sdkmath.Int) error {
	if amt.IsNegative() {
		return fmt.Errorf("%w: negative burn of %s", types.ErrInvalidAmount, denom)
	}
	if amt.IsZero() {
		return nil
	}
	t, err := l.token(denom)
	if err != nil {
		return err
	}
	raw := t.toRaw(amt)
	fromRaw := t.raw(from)
	if fromRaw.LT(raw) {
		return fmt.Errorf("%w: cannot burn %s %s from %s", types.ErrInsufficientBalance, amt, denom, from)
	}
	t.setRaw(from, fromRaw.Sub(raw))
	t.totalSupply = t.totalSupply.Sub(amt)
	if t.totalSupply.IsNegative() {
		t.totalSupply = sdkmath.ZeroInt()
	}
	t.totalGons = t.totalGons.Sub(raw)
	return nil
}

// Rebase sets a rebasing token's total supply; every holder's balance scales proportionally.
func (l *Ledger) Rebase(denom types.Address, newSupply sdkmath.Int) error {
	t, err := l.token(denom)
	if err != nil {
		return err
	}
	if !t.rebasing {
		return fmt.Errorf("%w: %s is not rebasing", types.ErrUnexpectedAsset, denom)
	}
	if !newSupply.IsPositive() {
		return fmt.Errorf("%w: rebase to non-positive supply", types.ErrInvalidAmount)
	}
	if t.totalGons.IsZero() {
		return nil
	}
	gpf := t.totalGons.Quo(newSupply)
	if gpf.IsZero() {
		return fmt.Errorf("%w: rebase exceeds precision", types.ErrInvalidAmount)
	}
	t.gonsPerFragment = gpf
	t.totalSupply = newSupply
	l.EmitEvent(sdk.NewEvent(types.EventTypeRebase,
		sdk.NewAttribute(types.AttributeKeyToken, denom.String()),
		sdk.NewAttribute(types.AttributeKeySupply, newSupply.String()),
	))
	return nil
}

// RebaseByPerc applies a relative rebase, e.g. 0.1 for +10%.
func (l *Ledger) RebaseByPerc(denom types.Address, perc sdkmath.LegacyDec) error {
	supply := l.TotalSupply(denom)
	newSupply := sdkmath.LegacyOneDec().Add(perc).MulInt(supply).TruncateInt()
	return l.Rebase(denom, newSupply)
}

func (l *Ledger) EmitEvent(e sdk.Event) {
	l.events = append(l.events, e)
}

func (l *Ledger) EventCount() int {
	return len(l.events)
}

// EventsSince returns a copy of the events emitted after the first n.
func (l *Ledger) EventsSince(n int) sdk.Events {
	if n < 0 {
		n = 0
	}
	if n >= len(l.events) {
		return sdk.EmptyEvents()
	}
	out := make(sdk.Events, len(l.events)-n)
	copy(out, l.events[n:])
	return out
}

func (l *Ledger) Events() sdk.Events {
	return l.EventsSince(0)
}
