// Package metrics exposes the keeper's view of perp and the vault as prometheus collectors.
package metrics

import (
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elys-network/perpvault/internal/config"
	"github.com/elys-network/perpvault/internal/types"
	"github.com/elys-network/perpvault/internal/utils"
)

const namespace = "perpvault"

const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var _ Metrics = (*metricsImpl)(nil)

type Metrics interface {
	// ObserveState records the subscription state and the quantities derived from it.
	ObserveState(s types.SubscriptionState, deviationRatio, rolloverFeePerc, perpPrice sdkmath.Int)
	// MarkStep counts one keeper step by outcome.
	MarkStep(step, outcome string)
	// MarkCycle counts a finished cycle and its duration.
	MarkCycle(success bool, duration time.Duration)
	// AddRolledOver accumulates perps rolled over by deploys.
	AddRolledOver(perpAmt sdkmath.Int)
}

type metricsImpl struct {
	perpTVL         prometheus.Gauge
	vaultTVL        prometheus.Gauge
	deviationRatio  prometheus.Gauge
	rolloverFeePerc prometheus.Gauge
	perpPrice       prometheus.Gauge

	steps         *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	rolledOver    prometheus.Counter
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (Metrics, error) {
	m := &metricsImpl{
		perpTVL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "perp_tvl",
			Help:      "Value of perp's reserve in underlying units",
		}),
		vaultTVL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vault_tvl",
			Help:      "Value of the vault's holdings in underlying units",
		}),
		deviationRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deviation_ratio",
			Help:      "Vault subscription relative to target, 1.0 is at target",
		}),
		rolloverFeePerc: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rollover_fee_perc",
			Help:      "Signed rollover fee, negative is a rebate to the vault",
		}),
		perpPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "perp_price",
			Help:      "Perp TVL per perp in underlying units",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_steps_total",
			Help:      "Keeper steps by step name and outcome",
		}, []string{"step", "outcome"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Keeper cycles by outcome",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a keeper cycle",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		rolledOver: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "perp_rolled_over_total",
			Help:      "Perps rolled over by vault deploys",
		}),
	}

	err := errors.Join(
		registerer.Register(m.perpTVL),
		registerer.Register(m.vaultTVL),
		registerer.Register(m.deviationRatio),
		registerer.Register(m.rolloverFeePerc),
		registerer.Register(m.perpPrice),
		registerer.Register(m.steps),
		registerer.Register(m.cycles),
		registerer.Register(m.cycleDuration),
		registerer.Register(m.rolledOver),
	)
	return m, err
}

func (m *metricsImpl) ObserveState(s types.SubscriptionState, deviationRatio, rolloverFeePerc, perpPrice sdkmath.Int) {
	m.perpTVL.Set(utils.MustScaledFloat(s.PerpTVL, config.UnderlyingDecimals))
	m.vaultTVL.Set(utils.MustScaledFloat(s.VaultTVL, config.UnderlyingDecimals))
	m.deviationRatio.Set(utils.MustScaledFloat(deviationRatio, types.FeeDecimals))
	m.rolloverFeePerc.Set(utils.MustScaledFloat(rolloverFeePerc, types.FeeDecimals))
	m.perpPrice.Set(utils.MustScaledFloat(perpPrice, types.PriceDecimals))
}

func (m *metricsImpl) MarkStep(step, outcome string) {
	m.steps.WithLabelValues(step, outcome).Inc()
}

func (m *metricsImpl) MarkCycle(success bool, duration time.Duration) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailed
	}
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

func (m *metricsImpl) AddRolledOver(perpAmt sdkmath.Int) {
	if !perpAmt.IsPositive() {
		return
	}
	m.rolledOver.Add(utils.MustScaledFloat(perpAmt, config.UnderlyingDecimals))
}
