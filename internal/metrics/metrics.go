// Package metrics exposes the prometheus collectors updated by the core.
// A nil *ProtocolMetrics is valid and records nothing.
package metrics

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type ProtocolMetrics struct {
	swaps           *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	liquidity       *prometheus.CounterVec
	reserves        *prometheus.GaugeVec
	exchangeRate    prometheus.Gauge
	totalStaked     prometheus.Gauge
	vaultDeposited  *prometheus.GaugeVec
	compounds       *prometheus.CounterVec
	globalCompounds prometheus.Counter
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

// Protocol returns the process-wide collectors, registering them on first use.
func Protocol() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_swaps_total",
				Help: "Count of executed swaps by pair.",
			}, []string{"pair"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "protocol_rejected_operations_total",
				Help: "Count of rejected operations by component and reason.",
			}, []string{"component", "reason"}),
			liquidity: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "amm_liquidity_events_total",
				Help: "Count of liquidity mints and burns by pair.",
			}, []string{"pair", "kind"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "amm_pair_reserve",
				Help: "Current pair reserve by side, in token base units.",
			}, []string{"pair", "side"}),
			exchangeRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_exchange_rate",
				Help: "Base-token units per share unit.",
			}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_total_staked",
				Help: "Base tokens currently staked.",
			}),
			vaultDeposited: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "vault_total_deposited",
				Help: "Total principal held by each vault.",
			}, []string{"vault"}),
			compounds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_compounds_total",
				Help: "Count of user-triggered compounds by vault.",
			}, []string{"vault"}),
			globalCompounds: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_global_compounds_total",
				Help: "Count of keeper-triggered global compounds.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.swaps,
			protocolRegistry.rejected,
			protocolRegistry.liquidity,
			protocolRegistry.reserves,
			protocolRegistry.exchangeRate,
			protocolRegistry.totalStaked,
			protocolRegistry.vaultDeposited,
			protocolRegistry.compounds,
			protocolRegistry.globalCompounds,
		)
	})
	return protocolRegistry
}

func (m *ProtocolMetrics) ObserveSwap(pair string) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(pair).Inc()
}

func (m *ProtocolMetrics) ObserveRejected(component, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejected.WithLabelValues(component, reason).Inc()
}

func (m *ProtocolMetrics) ObserveLiquidity(pair, kind string) {
	if m == nil {
		return
	}
	m.liquidity.WithLabelValues(pair, kind).Inc()
}

func (m *ProtocolMetrics) SetReserves(pair string, reserve0, reserve1 *uint256.Int) {
	if m == nil {
		return
	}
	m.reserves.WithLabelValues(pair, "0").Set(toFloat(reserve0))
	m.reserves.WithLabelValues(pair, "1").Set(toFloat(reserve1))
}

// SetExchangeRate records a Wad-scaled rate as a plain ratio.
func (m *ProtocolMetrics) SetExchangeRate(rateWad *uint256.Int) {
	if m == nil {
		return
	}
	m.exchangeRate.Set(toFloat(rateWad) / 1e18)
}

func (m *ProtocolMetrics) SetTotalStaked(v *uint256.Int) {
	if m == nil {
		return
	}
	m.totalStaked.Set(toFloat(v))
}

func (m *ProtocolMetrics) SetVaultDeposited(vault string, v *uint256.Int) {
	if m == nil {
		return
	}
	m.vaultDeposited.WithLabelValues(vault).Set(toFloat(v))
}

func (m *ProtocolMetrics) ObserveCompound(vault string) {
	if m == nil {
		return
	}
	m.compounds.WithLabelValues(vault).Inc()
}

func (m *ProtocolMetrics) ObserveGlobalCompound() {
	if m == nil {
		return
	}
	m.globalCompounds.Inc()
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
