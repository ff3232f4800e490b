// Package metrics defines gistd's Prometheus collectors: routing-table
// size, MA refcount/lifecycle, retransmission counts, and handshake
// latency, served over a chi-routed /metrics endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector gistd registers. All methods
// are nil-safe so callers can pass a nil *Metrics in tests without
// special-casing every call site, matching the teacher's
// SessionMetrics idiom.
type Metrics struct {
	RoutingTableSize prometheus.Gauge
	MARefCount       *prometheus.GaugeVec
	MACount          prometheus.Gauge

	RetransmissionsTotal *prometheus.CounterVec
	HandshakeFailures    *prometheus.CounterVec

	HandshakeLatency prometheus.Histogram
	CookieValidation *prometheus.CounterVec
}

// New creates and, if reg is non-nil, registers gistd's metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoutingTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gist",
			Subsystem: "routing",
			Name:      "entries",
			Help:      "Current number of routing-table entries",
		}),
		MARefCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gist",
			Subsystem: "ma",
			Name:      "refcount",
			Help:      "Reference count of a messaging association",
		}, []string{"ma_id"}),
		MACount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gist",
			Subsystem: "ma",
			Name:      "active",
			Help:      "Current number of live messaging associations",
		}),
		RetransmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gist",
			Subsystem: "handshake",
			Name:      "retransmissions_total",
			Help:      "Total Query retransmissions, labeled by NSLP-ID",
		}, []string{"nslp_id"}),
		HandshakeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gist",
			Subsystem: "handshake",
			Name:      "failures_total",
			Help:      "Total handshakes that failed to establish routing state, labeled by reason",
		}, []string{"reason"}),
		HandshakeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gist",
			Subsystem: "handshake",
			Name:      "latency_seconds",
			Help:      "Time from Query send to Established transition",
			Buckets:   prometheus.DefBuckets,
		}),
		CookieValidation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gist",
			Subsystem: "cookie",
			Name:      "validations_total",
			Help:      "Responder Cookie validation outcomes",
		}, []string{"result"}),
	}

	if reg != nil {
		collectors := []prometheus.Collector{
			m.RoutingTableSize, m.MARefCount, m.MACount,
			m.RetransmissionsTotal, m.HandshakeFailures,
			m.HandshakeLatency, m.CookieValidation,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	}
	return m
}

func (m *Metrics) SetRoutingTableSize(n int) {
	if m == nil {
		return
	}
	m.RoutingTableSize.Set(float64(n))
}

func (m *Metrics) SetMACount(n int) {
	if m == nil {
		return
	}
	m.MACount.Set(float64(n))
}

func (m *Metrics) ObserveHandshakeLatencySeconds(s float64) {
	if m == nil {
		return
	}
	m.HandshakeLatency.Observe(s)
}

func (m *Metrics) IncRetransmission(nslpID string) {
	if m == nil {
		return
	}
	m.RetransmissionsTotal.WithLabelValues(nslpID).Inc()
}

func (m *Metrics) IncHandshakeFailure(reason string) {
	if m == nil {
		return
	}
	m.HandshakeFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncCookieValidation(result string) {
	if m == nil {
		return
	}
	m.CookieValidation.WithLabelValues(result).Inc()
}
