package avm

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/perpvault/internal/logger"
	"github.com/elys-network/perpvault/internal/metrics"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/vault"
)

const (
	StepUpdatePerpState = "update_perp_state"
	StepRecover         = "recover"
	StepDeploy          = "deploy"
)

// Recorder persists cycle numbers and snapshots. internal/state implements it against postgres.
type Recorder interface {
	IncrementCycleNumber() (int, error)
	SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error)
}

// AVM is the keeper: every cycle it updates perp, recovers what the vault can redeem and redeploys.
type AVM struct {
	logger      zerolog.Logger
	vault       vault.VaultManager
	recorder    Recorder
	metrics     metrics.Metrics
	beforeCycle func(ctx context.Context) error

	// Runtime state
	cycleCount int
}

// Config holds the configuration for creating a new AVM instance
type Config struct {
	VaultManager vault.VaultManager
	Recorder     Recorder
	Metrics      metrics.Metrics
	// BeforeCycle runs first in every cycle. The simulated market steps here.
	BeforeCycle func(ctx context.Context) error
}

// NewAVM creates a new AVM instance with dependency injection
func NewAVM(cfg Config) (*AVM, error) {
	if err := validateAVMConfig(cfg); err != nil {
		return nil, fmt.Errorf("AVM configuration validation failed: %w", err)
	}

	avm := &AVM{
		logger:      logger.GetForComponent("avm_core"),
		vault:       cfg.VaultManager,
		recorder:    cfg.Recorder,
		metrics:     cfg.Metrics,
		beforeCycle: cfg.BeforeCycle,
	}

	avm.logger.Info().
		Bool("hasBeforeCycleHook", cfg.BeforeCycle != nil).
		Msg("AVM instance created successfully with dependency injection")

	return avm, nil
}

// validateAVMConfig validates the AVM configuration
func validateAVMConfig(cfg Config) error {
	if cfg.VaultManager == nil {
		return fmt.Errorf("vault manager cannot be nil")
	}
	if cfg.Recorder == nil {
		return fmt.Errorf("recorder cannot be nil")
	}
	if cfg.Metrics == nil {
		return fmt.Errorf("metrics cannot be nil")
	}
	return nil
}

// RunLoop starts the main AVM loop with the specified interval
func (a *AVM) RunLoop(ctx context.Context, interval time.Duration) {
	a.logger.Info().
		Dur("interval", interval).
		Msg("Starting AVM main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	a.runCounted(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("AVM loop stopped due to context cancellation")
			return
		case <-ticker.C:
			a.runCounted(ctx)
		}
	}
}

func (a *AVM) runCounted(ctx context.Context) {
	a.cycleCount++
	a.logger.Info().Int("cycle", a.cycleCount).Msg("Initiating AVM cycle")
	a.RunCycle(ctx)
	a.logger.Info().Int("cycle", a.cycleCount).Msg("AVM cycle completed")
}

// RunCycle executes one keeper cycle and returns its snapshot. Steps that fail on a policy threshold
// are skipped; any other failure ends the cycle early.
func (a *AVM) RunCycle(ctx context.Context) types.CycleSnapshot {
	cycleStartTime := time.Now()

	// Generate unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleNumber := a.getCycleNumber()
	cycleLogger := a.logger.With().Str("cycle_id", cycleID).Int("cycle_number", cycleNumber).Logger()

	cycleLogger.Info().Msg("--- Starting AVM Cycle ---")

	snapshot := types.CycleSnapshot{
		CycleID:        cycleID,
		CycleNumber:    cycleNumber,
		Timestamp:      cycleStartTime.UTC(),
		ActionReceipts: make([]types.ActionReceipt, 0, 3),
		Events:         make([]types.EventRecord, 0),
		Success:        true,
	}
	eventMark := a.vault.EventCount()

	if a.beforeCycle != nil {
		if err := a.beforeCycle(ctx); err != nil {
			cycleLogger.Error().Err(err).Msg("Cycle aborted: before-cycle hook failed.")
			snapshot.Success = false
			return a.finishCycle(ctx, &snapshot, cycleStartTime, eventMark, cycleLogger)
		}
	}

	// --- Step 1: Initial state ---
	cycleLogger.Info().Msg("Step 1: Reading subscription state...")
	initial, dr, err := a.readState()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to read subscription state.")
		snapshot.Success = false
		return a.finishCycle(ctx, &snapshot, cycleStartTime, eventMark, cycleLogger)
	}
	snapshot.InitialState = initial
	snapshot.InitialDeviationRatio = dr
	cycleLogger.Info().
		Str("perpTVL", initial.PerpTVL.String()).
		Str("vaultTVL", initial.VaultTVL.String()).
		Str("deviationRatio", dr.String()).
		Msg("Step 1: Subscription state read.")

	// --- Step 2: Perp maintenance ---
	cycleLogger.Info().Msg("Step 2: Updating perp state...")
	if !a.runStep(ctx, &snapshot, StepUpdatePerpState, cycleLogger, a.vault.UpdatePerpState) {
		return a.finishCycle(ctx, &snapshot, cycleStartTime, eventMark, cycleLogger)
	}

	// --- Step 3: Recover ---
	cycleLogger.Info().Msg("Step 3: Recovering deployed tranches...")
	ok := a.runStep(ctx, &snapshot, StepRecover, cycleLogger, func() error {
		n, err := a.vault.Recover()
		snapshot.RecoveredCount = n
		return err
	})
	if !ok {
		return a.finishCycle(ctx, &snapshot, cycleStartTime, eventMark, cycleLogger)
	}

	// --- Step 4: Deploy ---
	cycleLogger.Info().Msg("Step 4: Deploying underlying...")
	a.runStep(ctx, &snapshot, StepDeploy, cycleLogger, func() error {
		receipt, err := a.vault.Deploy()
		if err != nil {
			return err
		}
		snapshot.Deploy = receipt
		a.metrics.AddRolledOver(receipt.Rollover.TotalPerpRolledOver)
		return nil
	})

	return a.finishCycle(ctx, &snapshot, cycleStartTime, eventMark, cycleLogger)
}

// runStep records a receipt for fn. It reports whether the cycle should continue.
func (a *AVM) runStep(ctx context.Context, snapshot *types.CycleSnapshot, step string, cycleLogger zerolog.Logger, fn func() error) bool {
	if err := ctx.Err(); err != nil {
		snapshot.ActionReceipts = append(snapshot.ActionReceipts, types.ActionReceipt{Step: step, Error: err.Error()})
		snapshot.Success = false
		a.metrics.MarkStep(step, metrics.OutcomeFailed)
		return false
	}

	err := fn()
	receipt := types.ActionReceipt{Step: step, Success: err == nil}
	switch {
	case err == nil:
		a.metrics.MarkStep(step, metrics.OutcomeSuccess)
		cycleLogger.Info().Str("step", step).Msg("Step completed.")
	case types.IsRetryable(err):
		receipt.Skipped = true
		receipt.ErrorClass = types.ClassOf(err).String()
		receipt.Error = err.Error()
		a.metrics.MarkStep(step, metrics.OutcomeSkipped)
		cycleLogger.Info().Str("step", step).Str("reason", err.Error()).Msg("Step skipped.")
	default:
		receipt.ErrorClass = types.ClassOf(err).String()
		receipt.Error = err.Error()
		snapshot.Success = false
		a.metrics.MarkStep(step, metrics.OutcomeFailed)
		cycleLogger.Error().Err(err).Str("step", step).Str("class", receipt.ErrorClass).Msg("Step failed.")
	}
	snapshot.ActionReceipts = append(snapshot.ActionReceipts, receipt)
	return err == nil || receipt.Skipped
}

func (a *AVM) readState() (types.SubscriptionState, sdkmath.Int, error) {
	s, err := a.vault.SubscriptionState()
	if err != nil {
		return types.SubscriptionState{}, sdkmath.ZeroInt(), fmt.Errorf("failed to get subscription state: %w", err)
	}
	dr, err := a.vault.DeviationRatio()
	if err != nil {
		return types.SubscriptionState{}, sdkmath.ZeroInt(), fmt.Errorf("failed to get deviation ratio: %w", err)
	}
	return s, dr, nil
}

// finishCycle captures the final state, publishes metrics and saves the snapshot.
func (a *AVM) finishCycle(ctx context.Context, snapshot *types.CycleSnapshot, cycleStartTime time.Time, eventMark int, cycleLogger zerolog.Logger) types.CycleSnapshot {
	cycleLogger.Info().Msg("Step 5: Capturing final state...")

	final, dr, err := a.readState()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to read final subscription state.")
		final, dr = snapshot.InitialState, snapshot.InitialDeviationRatio
	}
	snapshot.FinalState = final
	snapshot.FinalDeviationRatio = dr
	if snapshot.InitialDeviationRatio.IsNil() {
		snapshot.InitialState = final
		snapshot.InitialDeviationRatio = dr
	}

	snapshot.RolloverFeePerc, err = a.vault.RolloverFeePerc()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to compute rollover fee.")
		snapshot.RolloverFeePerc = sdkmath.ZeroInt()
	}
	snapshot.PerpPrice, err = a.vault.PerpPrice()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to compute perp price.")
		snapshot.PerpPrice = sdkmath.ZeroInt()
	}

	snapshot.Events = append(snapshot.Events, toEventRecords(a.vault.EventsSince(eventMark))...)
	snapshot.Duration = time.Since(cycleStartTime)

	if !final.PerpTVL.IsNil() {
		a.metrics.ObserveState(final, dr, snapshot.RolloverFeePerc, snapshot.PerpPrice)
	}
	a.metrics.MarkCycle(snapshot.Success, snapshot.Duration)
	a.saveCycleSnapshot(*snapshot)

	cycleLogger.Info().
		Str("finalPerpTVL", final.PerpTVL.String()).
		Str("finalVaultTVL", final.VaultTVL.String()).
		Str("finalDeviationRatio", dr.String()).
		Int("recovered", snapshot.RecoveredCount).
		Bool("deployed", snapshot.Deploy != nil).
		Int("events", len(snapshot.Events)).
		Msg("End of Cycle State")
	cycleLogger.Info().Str("cycleDuration", snapshot.Duration.String()).Msg("AVM Cycle Duration")

	if snapshot.Success {
		cycleLogger.Info().Msg("--- AVM Cycle Completed Successfully ---")
	} else {
		cycleLogger.Warn().Msg("--- AVM Cycle Completed With Errors ---")
	}
	return *snapshot
}

// getCycleNumber increments and returns the persistent cycle counter
func (a *AVM) getCycleNumber() int {
	cycleNumber, err := a.recorder.IncrementCycleNumber()
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to increment cycle number, using in-memory count")
		return a.cycleCount
	}
	return cycleNumber
}

// saveCycleSnapshot saves the cycle snapshot to database
func (a *AVM) saveCycleSnapshot(snapshot types.CycleSnapshot) {
	snapshotID, err := a.recorder.SaveCycleSnapshot(snapshot)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to save cycle snapshot to database")
		return
	}
	a.logger.Info().Int64("snapshot_id", snapshotID).Msg("Cycle snapshot saved successfully")
}

func toEventRecords(events sdk.Events) []types.EventRecord {
	out := make([]types.EventRecord, 0, len(events))
	for _, e := range events {
		attrs := make(map[string]string, len(e.Attributes))
		for _, attr := range e.Attributes {
			attrs[attr.Key] = attr.Value
		}
		out = append(out, types.EventRecord{Type: e.Type, Attributes: attrs})
	}
	return out
}
