package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// LedgerMetrics counts money movements by kind. Amounts are exported as
// floats for dashboards only; the ledger itself never uses them.
type LedgerMetrics struct {
	entries     *prometheus.CounterVec
	amount      *prometheus.CounterVec
	withdrawals *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	entries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_entries_total",
		Help:      "Ledger entries written, by kind and status.",
	}, []string{"kind", "status"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_amount_total",
		Help:      "Settlement amount moved, by kind.",
	}, []string{"kind"})
	withdrawals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "withdrawal_resolutions_total",
		Help:      "Withdrawal resolutions by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(entries, amount, withdrawals)
	return &LedgerMetrics{entries: entries, amount: amount, withdrawals: withdrawals}
}

// RecordEntry counts one entry and adds its amount.
func (m *LedgerMetrics) RecordEntry(kind, status string, amount decimal.Decimal) {
	if m == nil || m.entries == nil {
		return
	}
	m.entries.WithLabelValues(normalizeLabel(kind), normalizeLabel(status)).Inc()
	if amount.IsPositive() {
		m.amount.WithLabelValues(normalizeLabel(kind)).Add(amount.InexactFloat64())
	}
}

// RecordResolution counts a withdrawal approval, failure or rejection.
func (m *LedgerMetrics) RecordResolution(outcome string) {
	if m == nil || m.withdrawals == nil {
		return
	}
	m.withdrawals.WithLabelValues(normalizeLabel(outcome)).Inc()
}
