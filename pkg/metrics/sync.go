package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics tracks the pool engine's event and write activity.
type SyncMetrics struct {
	events *prometheus.CounterVec
	writes *prometheus.CounterVec
	groups prometheus.Counter
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_events_total",
		Help: "Inventory change notifications by processing outcome.",
	}, []string{"outcome"})
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "external_writes_total",
		Help: "External inventory writes by result.",
	}, []string{"source", "result"})
	groups := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groups_reconciled_total",
		Help: "Groups repaired by the periodic reconcile pass.",
	})
	reg.MustRegister(events, writes, groups)
	return &SyncMetrics{events: events, writes: writes, groups: groups}
}

// IncEvent counts one processed notification by outcome.
func (s *SyncMetrics) IncEvent(outcome string) {
	if s == nil || s.events == nil {
		return
	}
	s.events.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncWrite counts one dispatched external write.
func (s *SyncMetrics) IncWrite(source, result string) {
	if s == nil || s.writes == nil {
		return
	}
	s.writes.WithLabelValues(normalizeLabel(source), normalizeLabel(result)).Inc()
}

// IncGroupReconciled counts one group repaired by the reconcile pass.
func (s *SyncMetrics) IncGroupReconciled() {
	if s == nil || s.groups == nil {
		return
	}
	s.groups.Inc()
}
