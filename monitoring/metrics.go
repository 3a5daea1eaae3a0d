package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"campus-ledger/internal/store"
)

var (
	settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_settlements_total",
			Help: "Event settlements by strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	settlementAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_settlement_amount",
			Help:    "Total amount moved per settlement",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	weightMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_weight_mutations_total",
			Help: "Weight registry mutations by operation",
		},
		[]string{"operation"},
	)

	transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Journal rows written by kind",
		},
		[]string{"kind"},
	)

	openEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_open_events",
			Help: "Events not yet settled",
		},
	)
)

// TrackSettlement records one settlement attempt.
func TrackSettlement(strategy, status string, total decimal.Decimal) {
	settlements.WithLabelValues(strategy, status).Inc()
	if status == "ok" {
		amount, _ := total.Float64()
		settlementAmount.Observe(amount)
	}
}

// TrackWeightMutation records one registry mutation.
func TrackWeightMutation(operation string) {
	weightMutations.WithLabelValues(operation).Inc()
}

// TrackTransaction records one journal row.
func TrackTransaction(kind string) {
	transactions.WithLabelValues(kind).Inc()
}

// Monitor periodically samples store-level gauges.
type Monitor struct {
	store    store.Store
	interval time.Duration
}

func NewMonitor(st store.Store, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{store: st, interval: interval}
}

// Run samples until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	open := false
	events, err := m.store.Events().List(ctx, store.EventFilter{Done: &open})
	if err != nil {
		return
	}
	openEvents.Set(float64(len(events)))
}
