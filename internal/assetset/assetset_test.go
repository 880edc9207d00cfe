package assetset

import (
	"math/rand"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/perpvault/internal/ledger"
	"github.com/elys-network/perpvault/internal/types"
)

const (
	vault types.Address = "vault"
	other types.Address = "other"
	ampl  types.Address = "ampl"
)

var tokens = []types.Address{"tra", "trb", "trc", "trd", "tre"}

func newSet(t *testing.T, max int) (*ledger.Ledger, *Set) {
	t.Helper()
	l := ledger.New()
	require.NoError(t, l.RegisterToken(ampl, true))
	for _, tok := range tokens {
		require.NoError(t, l.RegisterToken(tok, false))
	}
	return l, New(vault, max, l, ampl)
}

func TestSyncAddRemove(t *testing.T) {
	l, s := newSet(t, 10)

	require.NoError(t, s.SyncAndAdd(tokens[0]))
	assert.False(t, s.Contains(tokens[0]), "zero balance is never added")

	require.NoError(t, l.Mint(tokens[0], vault, sdkmath.NewInt(5)))
	require.NoError(t, l.Mint(tokens[1], vault, sdkmath.NewInt(5)))
	require.NoError(t, l.Mint(tokens[2], vault, sdkmath.NewInt(5)))
	for _, tok := range tokens[:3] {
		require.NoError(t, s.SyncAndAdd(tok))
	}
	require.NoError(t, s.SyncAndAdd(tokens[0]))
	assert.Equal(t, tokens[:3], s.Members())

	s.SyncAndRemove(tokens[1])
	assert.True(t, s.Contains(tokens[1]), "non-zero balance is never removed")

	require.NoError(t, l.Transfer(tokens[1], vault, other, sdkmath.NewInt(5)))
	s.SyncAndRemove(tokens[1])
	assert.Equal(t, []types.Address{tokens[0], tokens[2]}, s.Members(), "removal keeps order")
	assert.Equal(t, tokens[2], s.At(1))
}

func TestExcludedTokensNeverJoin(t *testing.T) {
	l, s := newSet(t, 10)
	require.NoError(t, l.Mint(ampl, vault, sdkmath.NewInt(100)))
	before := l.EventCount()
	require.NoError(t, s.SyncAndAdd(ampl))
	assert.False(t, s.Contains(ampl))
	assert.Equal(t, before+1, l.EventCount(), "asset synced event still fires")
}

func TestCapacity(t *testing.T) {
	l, s := newSet(t, 2)
	for _, tok := range tokens[:3] {
		require.NoError(t, l.Mint(tok, vault, sdkmath.NewInt(1)))
	}
	require.NoError(t, s.SyncAndAdd(tokens[0]))
	require.NoError(t, s.SyncAndAdd(tokens[1]))
	err := s.SyncAndAdd(tokens[2])
	assert.ErrorIs(t, err, types.ErrDeployedCountOverLimit)
	assert.Equal(t, types.ClassCapacity, types.ClassOf(err))
	assert.Equal(t, 2, s.Len())
}

func TestMembersIsACopy(t *testing.T) {
	l, s := newSet(t, 10)
	for _, tok := range tokens {
		require.NoError(t, l.Mint(tok, vault, sdkmath.NewInt(1)))
		require.NoError(t, s.SyncAndAdd(tok))
	}
	// drain and remove every member while iterating a snapshot
	for _, tok := range s.Members() {
		require.NoError(t, l.Burn(tok, vault, sdkmath.NewInt(1)))
		s.SyncAndRemove(tok)
	}
	assert.Zero(t, s.Len())
}

// A token is a member iff its last observed balance was non-zero.
func TestMembershipInvariant(t *testing.T) {
	l, s := newSet(t, len(tokens))
	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 2000; step++ {
		tok := tokens[rng.Intn(len(tokens))]
		if rng.Intn(2) == 0 {
			require.NoError(t, l.Mint(tok, vault, sdkmath.NewInt(rng.Int63n(3))))
		} else {
			bal := l.BalanceOf(tok, vault)
			require.NoError(t, l.Transfer(tok, vault, other, bal))
		}
		require.NoError(t, s.Sync(tok))
		assert.Equal(t, l.BalanceOf(tok, vault).IsPositive(), s.Contains(tok))
	}
	for i, m := range s.Members() {
		assert.Equal(t, m, s.At(i))
	}
}

func TestSnapshotRestore(t *testing.T) {
	l, s := newSet(t, 10)
	require.NoError(t, l.Mint(tokens[0], vault, sdkmath.NewInt(1)))
	require.NoError(t, s.SyncAndAdd(tokens[0]))
	snap := s.Snapshot()

	require.NoError(t, l.Mint(tokens[1], vault, sdkmath.NewInt(1)))
	require.NoError(t, s.SyncAndAdd(tokens[1]))
	s.Restore(snap)

	assert.Equal(t, []types.Address{tokens[0]}, s.Members())
	assert.False(t, s.Contains(tokens[1]))
}
