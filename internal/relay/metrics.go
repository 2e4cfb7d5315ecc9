package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay's Prometheus instruments.
type Metrics struct {
	ConnectionsActive  prometheus.Gauge
	AdmissionsRejected prometheus.Counter
	Broadcasts         prometheus.Counter
	DeliveriesDropped  prometheus.Counter
	PersistFailures    prometheus.Counter
	PayloadsDropped    prometheus.Counter
}

// NewMetrics constructs and registers the relay instruments.
// Pass a fresh prometheus.NewRegistry() in tests to avoid duplicate
// registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Subsystem: "relay",
			Name:      "connections_active",
			Help:      "Connections currently admitted into the room.",
		}),
		AdmissionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "relay",
			Name:      "admissions_rejected_total",
			Help:      "Connection attempts refused at session validation.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "relay",
			Name:      "broadcasts_total",
			Help:      "Messages fanned out to the room.",
		}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "relay",
			Name:      "deliveries_dropped_total",
			Help:      "Per-recipient deliveries skipped (closing client or full queue).",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "relay",
			Name:      "persist_failures_total",
			Help:      "Message store writes that failed (delivery proceeded).",
		}),
		PayloadsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Subsystem: "relay",
			Name:      "payloads_dropped_total",
			Help:      "Inbound payloads dropped as malformed.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectionsActive,
			m.AdmissionsRejected,
			m.Broadcasts,
			m.DeliveriesDropped,
			m.PersistFailures,
			m.PayloadsDropped,
		)
	}
	return m
}
