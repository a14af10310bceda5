package aggregate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/tally/internal/ir"
)

type aggregateMetrics struct {
	eventsApplied   *prometheus.CounterVec
	duplicateEvents prometheus.Counter
	settlementNoops prometheus.Counter
}

func (m *aggregateMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.eventsApplied = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_events_applied_total",
			Help: "Ledger events applied to derived state, by kind",
		},
		[]string{"kind"},
	)
	m.duplicateEvents = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_duplicate_events_total",
			Help: "Donation events rejected because their event key was already applied",
		},
	)
	m.settlementNoops = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_milestone_settlement_noop_total",
			Help: "Milestone settlements ignored because the milestone was never provisioned",
		},
	)
}

// The helpers below tolerate a nil receiver so an Aggregator built without a
// registerer skips metrics entirely.

func (m *aggregateMetrics) applied(kind ir.EventKind) {
	if m != nil {
		m.eventsApplied.WithLabelValues(string(kind)).Inc()
	}
}

func (m *aggregateMetrics) duplicate() {
	if m != nil {
		m.duplicateEvents.Inc()
	}
}

func (m *aggregateMetrics) settlementNoop() {
	if m != nil {
		m.settlementNoops.Inc()
	}
}
