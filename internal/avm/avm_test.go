package avm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/perpvault/internal/avm"
	"github.com/elys-network/perpvault/internal/config"
	"github.com/elys-network/perpvault/internal/metrics"
	"github.com/elys-network/perpvault/internal/simulations"
	"github.com/elys-network/perpvault/internal/types"
)

type fakeRecorder struct {
	next      int
	failCount bool
	snapshots []types.CycleSnapshot
}

func (r *fakeRecorder) IncrementCycleNumber() (int, error) {
	if r.failCount {
		return 0, errors.New("counter unavailable")
	}
	r.next++
	return r.next, nil
}

func (r *fakeRecorder) SaveCycleSnapshot(s types.CycleSnapshot) (int64, error) {
	r.snapshots = append(r.snapshots, s)
	return int64(len(r.snapshots)), nil
}

func units(n int64) sdkmath.Int {
	return sdkmath.NewIntWithDecimal(n, config.UnderlyingDecimals)
}

func newKeeper(t *testing.T, env *simulations.Environment, hook func(context.Context) error) (*avm.AVM, *fakeRecorder) {
	t.Helper()
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	rec := &fakeRecorder{}
	keeper, err := avm.NewAVM(avm.Config{
		VaultManager: env.Vault,
		Recorder:     rec,
		Metrics:      m,
		BeforeCycle:  hook,
	})
	require.NoError(t, err)
	return keeper, rec
}

func newEnv(t *testing.T) *simulations.Environment {
	t.Helper()
	env, err := simulations.NewEnvironment(simulations.DefaultEnvironmentConfig())
	require.NoError(t, err)
	require.NoError(t, env.Faucet("alice", units(10_000)))
	require.NoError(t, env.Faucet("bob", units(10_000)))
	return env
}

func TestNewAVMValidatesConfig(t *testing.T) {
	_, err := avm.NewAVM(avm.Config{})
	assert.ErrorContains(t, err, "vault manager")

	env := newEnv(t)
	_, err = avm.NewAVM(avm.Config{VaultManager: env.Vault})
	assert.ErrorContains(t, err, "recorder")

	_, err = avm.NewAVM(avm.Config{VaultManager: env.Vault, Recorder: &fakeRecorder{}})
	assert.ErrorContains(t, err, "metrics")
}

func TestCycleSkipsDeployWithoutRolloverCapacity(t *testing.T) {
	env := newEnv(t)
	_, err := env.Vault.Deposit("bob", units(1_000))
	require.NoError(t, err)
	keeper, rec := newKeeper(t, env, nil)

	snap := keeper.RunCycle(context.Background())

	assert.True(t, snap.Success)
	assert.Equal(t, 1, snap.CycleNumber)
	assert.NotEmpty(t, snap.CycleID)
	require.Len(t, snap.ActionReceipts, 3)
	assert.Equal(t, avm.StepUpdatePerpState, snap.ActionReceipts[0].Step)
	assert.True(t, snap.ActionReceipts[0].Success)
	assert.True(t, snap.ActionReceipts[1].Success)

	deploy := snap.ActionReceipts[2]
	assert.Equal(t, avm.StepDeploy, deploy.Step)
	assert.True(t, deploy.Skipped)
	assert.Equal(t, types.ClassPolicy.String(), deploy.ErrorClass)
	assert.Nil(t, snap.Deploy)

	assert.Equal(t, units(1_000), snap.FinalState.VaultTVL)
	assert.Equal(t, types.PriceOne, snap.PerpPrice)
	require.Len(t, rec.snapshots, 1)
	assert.Equal(t, snap.CycleID, rec.snapshots[0].CycleID)
}

func TestCycleDeploysAndRecordsEvents(t *testing.T) {
	env := newEnv(t)
	_, err := env.Vault.Deposit("bob", units(1_000))
	require.NoError(t, err)
	_, err = env.MintPerps("alice", units(300))
	require.NoError(t, err)
	env.Advance(21 * 24 * time.Hour)

	keeper, rec := newKeeper(t, env, nil)
	snap := keeper.RunCycle(context.Background())

	require.True(t, snap.Success)
	require.NotNil(t, snap.Deploy)
	assert.True(t, snap.Deploy.Rollover.TotalPerpRolledOver.IsPositive())
	assert.NotEmpty(t, snap.Events)
	assert.True(t, snap.FinalState.PerpTVL.IsPositive())
	for _, r := range snap.ActionReceipts {
		assert.True(t, r.Success, r.Step)
	}
	require.Len(t, rec.snapshots, 1)
}

func TestBeforeCycleFailureEndsCycle(t *testing.T) {
	env := newEnv(t)
	keeper, rec := newKeeper(t, env, func(context.Context) error {
		return errors.New("market closed")
	})

	snap := keeper.RunCycle(context.Background())

	assert.False(t, snap.Success)
	assert.Empty(t, snap.ActionReceipts)
	assert.False(t, snap.FinalDeviationRatio.IsNil())
	require.Len(t, rec.snapshots, 1)
}

func TestCancelledContextFailsFirstStep(t *testing.T) {
	env := newEnv(t)
	keeper, _ := newKeeper(t, env, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := keeper.RunCycle(ctx)

	assert.False(t, snap.Success)
	require.Len(t, snap.ActionReceipts, 1)
	assert.Equal(t, avm.StepUpdatePerpState, snap.ActionReceipts[0].Step)
	assert.False(t, snap.ActionReceipts[0].Success)
}

func TestCycleNumberFallsBackToInMemoryCount(t *testing.T) {
	env := newEnv(t)
	keeper, rec := newKeeper(t, env, nil)
	rec.failCount = true

	snap := keeper.RunCycle(context.Background())
	assert.Equal(t, 0, snap.CycleNumber)
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	env := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	var ran int
	keeper, rec := newKeeper(t, env, func(context.Context) error {
		ran++
		cancel()
		return nil
	})

	done := make(chan struct{})
	go func() {
		keeper.RunLoop(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunLoop did not return after cancel")
	}
	assert.Equal(t, 1, ran)
	require.Len(t, rec.snapshots, 1)
}
