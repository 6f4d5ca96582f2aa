package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// LockMetrics tracks command outcomes and the reward ledger of a tokenlock node.
type LockMetrics struct {
	commands       *prometheus.CounterVec
	transferAmount *prometheus.CounterVec
	accumulator    prometheus.Gauge
	totalWeight    prometheus.Gauge
	undistributed  prometheus.Gauge
	outboxPending  prometheus.Gauge
}

var (
	lockOnce     sync.Once
	lockRegistry *LockMetrics
)

// Lock returns the process wide tokenlock metrics registry.
func Lock() *LockMetrics {
	lockOnce.Do(func() {
		lockRegistry = &LockMetrics{
			commands: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokenlock",
				Name:      "commands_total",
				Help:      "Count of processed commands segmented by kind and result code.",
			}, []string{"command", "result"}),
			transferAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokenlock",
				Name:      "transfer_amount_total",
				Help:      "Sum of token amounts moved by successful commands.",
			}, []string{"command"}),
			accumulator: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tokenlock",
				Name:      "reward_accumulator",
				Help:      "Reward points per unit of weight, scaled by 1e18.",
			}),
			totalWeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tokenlock",
				Name:      "total_weight",
				Help:      "Sum of reward weight across all bond entries.",
			}),
			undistributed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tokenlock",
				Name:      "reward_undistributed",
				Help:      "Rewards notified to the pool but not yet withdrawn.",
			}),
			outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tokenlock",
				Name:      "outbox_pending",
				Help:      "Transfers waiting to be forwarded to the token ledger.",
			}),
		}
		prometheus.MustRegister(
			lockRegistry.commands,
			lockRegistry.transferAmount,
			lockRegistry.accumulator,
			lockRegistry.totalWeight,
			lockRegistry.undistributed,
			lockRegistry.outboxPending,
		)
	})
	return lockRegistry
}

// RecordCommand increments the command counter for the supplied kind and result.
func (m *LockMetrics) RecordCommand(command, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(label(command), label(result)).Inc()
}

// AddTransferred adds amount to the per-command transfer total.
func (m *LockMetrics) AddTransferred(command string, amount *uint256.Int) {
	if m == nil || amount == nil || amount.IsZero() {
		return
	}
	m.transferAmount.WithLabelValues(label(command)).Add(toFloat(amount))
}

// SetLedger publishes the reward ledger figures.
func (m *LockMetrics) SetLedger(accumulator, totalWeight, undistributed *uint256.Int) {
	if m == nil {
		return
	}
	m.accumulator.Set(toFloat(accumulator))
	m.totalWeight.Set(toFloat(totalWeight))
	m.undistributed.Set(toFloat(undistributed))
}

// SetOutboxPending records the number of transfers awaiting acknowledgement.
func (m *LockMetrics) SetOutboxPending(count int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(count))
}

func label(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
