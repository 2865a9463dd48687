package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set holds the indexer's counters. Both drivers share the same names so
// dashboards can compare live and backfill throughput by the driver label.
type Set struct {
	EventsProcessed *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	CursorBlock     *prometheus.GaugeVec
}

// NewSet registers the indexer metrics on the given registerer.
func NewSet(reg prometheus.Registerer) *Set {
	s := &Set{
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predictscope_events_processed_total",
			Help: "events applied successfully",
		}, []string{"driver", "event"}),
		EventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predictscope_events_failed_total",
			Help: "events that exhausted their apply retries",
		}, []string{"driver", "event"}),
		EventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "predictscope_events_skipped_total",
			Help: "malformed events skipped without retry",
		}, []string{"driver", "event"}),
		CursorBlock: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "predictscope_cursor_block",
			Help: "last processed block per driver",
		}, []string{"driver"}),
	}
	reg.MustRegister(s.EventsProcessed, s.EventsFailed, s.EventsSkipped, s.CursorBlock)
	return s
}
