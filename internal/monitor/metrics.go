package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the engine's prometheus collectors. Collectors are
// registered on the registry passed to NewMetrics, never the global one.
type Metrics struct {
	ScanPasses    *prometheus.CounterVec
	ScanDuration  prometheus.Histogram
	Sites         *prometheus.GaugeVec
	Events        *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScanPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_scan_passes_total",
				Help: "Monitoring passes by result",
			},
			[]string{"result"},
		),
		ScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitewatch_scan_duration_seconds",
				Help:    "Duration of monitoring passes in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		Sites: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitewatch_sites",
				Help: "Sites per health tier as of the last pass",
			},
			[]string{"tier"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_events_total",
				Help: "Incident lifecycle actions",
			},
			[]string{"action"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitewatch_notifications_total",
				Help: "Notification deliveries by channel, message type and final status",
			},
			[]string{"channel", "message_type", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.ScanPasses, m.ScanDuration, m.Sites, m.Events, m.Notifications)
	}
	return m
}
