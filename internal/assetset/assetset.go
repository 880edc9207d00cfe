// Package assetset tracks the tokens a holder currently has a non-zero balance of.
package assetset

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/perpvault/internal/types"
)

// Ledger is the balance source and event sink a Set syncs against.
type Ledger interface {
	BalanceOf(token, holder types.Address) sdkmath.Int
	EmitEvent(e sdk.Event)
}

// Set is a bounded, insertion-ordered set of token addresses. A token is a member iff its balance was
// non-zero at the last sync. Removal keeps the order of the remaining members.
type Set struct {
	owner    types.Address
	max      int
	ledger   Ledger
	excluded map[types.Address]struct{}

	members []types.Address
	index   map[types.Address]int
}

// New creates a set for owner. Excluded tokens (the underlying, the perp) are synced for events but
// never become members.
func New(owner types.Address, max int, l Ledger, excluded ...types.Address) *Set {
	s := &Set{
		owner:    owner,
		max:      max,
		ledger:   l,
		excluded: make(map[types.Address]struct{}, len(excluded)),
		index:    make(map[types.Address]int),
	}
	for _, e := range excluded {
		s.excluded[e] = struct{}{}
	}
	return s
}

func (s *Set) Owner() types.Address { return s.owner }
func (s *Set) Len() int             { return len(s.members) }
func (s *Set) Max() int             { return s.max }

func (s *Set) Contains(token types.Address) bool {
	_, ok := s.index[token]
	return ok
}

func (s *Set) At(i int) types.Address { return s.members[i] }

// Members returns a copy; callers may sync while iterating it.
func (s *Set) Members() []types.Address {
	out := make([]types.Address, len(s.members))
	copy(out, s.members)
	return out
}

func (s *Set) balance(token types.Address) sdkmath.Int {
	bal := s.ledger.BalanceOf(token, s.owner)
	s.ledger.EmitEvent(sdk.NewEvent(types.EventTypeAssetSynced,
		sdk.NewAttribute(types.AttributeKeyOwner, s.owner.String()),
		sdk.NewAttribute(types.AttributeKeyToken, token.String()),
		sdk.NewAttribute(types.AttributeKeyBalance, bal.String()),
	))
	return bal
}

// SyncAndAdd inserts token if its balance is positive and it is not yet a member.
func (s *Set) SyncAndAdd(token types.Address) error {
	bal := s.balance(token)
	if _, ok := s.excluded[token]; ok {
		return nil
	}
	if !bal.IsPositive() || s.Contains(token) {
		return nil
	}
	if len(s.members) >= s.max {
		return fmt.Errorf("%w: %s already holds %d assets", types.ErrDeployedCountOverLimit, s.owner, s.max)
	}
	s.index[token] = len(s.members)
	s.members = append(s.members, token)
	return nil
}

// SyncAndRemove removes token if its balance is zero and it is a member.
func (s *Set) SyncAndRemove(token types.Address) {
	bal := s.balance(token)
	if !bal.IsZero() {
		return
	}
	i, ok := s.index[token]
	if !ok {
		return
	}
	s.members = append(s.members[:i], s.members[i+1:]...)
	delete(s.index, token)
	for j := i; j < len(s.members); j++ {
		s.index[s.members[j]] = j
	}
}

// Sync adds or removes token depending on its current balance.
func (s *Set) Sync(token types.Address) error {
	if s.ledger.BalanceOf(token, s.owner).IsZero() {
		s.SyncAndRemove(token)
		return nil
	}
	return s.SyncAndAdd(token)
}

func (s *Set) Snapshot() any {
	return s.Members()
}

func (s *Set) Restore(snapshot any) {
	members := snapshot.([]types.Address)
	s.members = make([]types.Address, len(members))
	copy(s.members, members)
	s.index = make(map[types.Address]int, len(members))
	for i, m := range members {
		s.index[m] = i
	}
}
