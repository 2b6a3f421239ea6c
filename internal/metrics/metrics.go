// Package metrics holds the Prometheus collectors of a d1lod process.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "d1lod"

// Metrics holds Prometheus metrics for repository traffic, entity writes and
// harvest progress.
type Metrics struct {
	// Repository client
	requestsTotal   *prometheus.CounterVec   // By op and status code
	requestDuration *prometheus.HistogramVec // By op

	// Coordinator
	entitiesTotal      *prometheus.CounterVec // By graph and status (created/existing/failed)
	ambiguousTotal     *prometheus.CounterVec // By graph
	namespaceConflicts prometheus.Counter

	// Harvest
	documentsTotal *prometheus.CounterVec // By status (processed/skipped/failed)
	lastRun        prometheus.Gauge
}

// New creates and registers the collectors with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sesame",
			Name:      "requests_total",
			Help:      "Total number of repository requests",
		}, []string{"op", "code"}), // code: HTTP status, or "error" for transport failures

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sesame",
			Name:      "request_duration_seconds",
			Help:      "Repository request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"op"}),

		entitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "entities_total",
			Help:      "Total number of entity upserts by outcome",
		}, []string{"graph", "status"}),

		ambiguousTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "ambiguous_resolutions_total",
			Help:      "Total number of resolutions that matched more than one entity",
		}, []string{"graph"}),

		namespaceConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "namespace_conflicts_total",
			Help:      "Total number of rejected namespace rebindings",
		}),

		documentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "documents_total",
			Help:      "Total number of harvested documents by outcome",
		}, []string{"status"}),

		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "last_run_timestamp_seconds",
			Help:      "Upper bound of the last completed harvest window",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.requestsTotal, m.requestDuration,
		m.entitiesTotal, m.ambiguousTotal, m.namespaceConflicts,
		m.documentsTotal, m.lastRun,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordRequest records one repository round trip. A zero code means the
// request failed before a response arrived.
func (m *Metrics) RecordRequest(op string, code int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code != 0 {
		label = strconv.Itoa(code)
	}
	m.requestsTotal.WithLabelValues(op, label).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordEntity records the outcome of one entity upsert.
func (m *Metrics) RecordEntity(graph, status string, ambiguous bool) {
	if m == nil {
		return
	}
	m.entitiesTotal.WithLabelValues(graph, status).Inc()
	if ambiguous {
		m.ambiguousTotal.WithLabelValues(graph).Inc()
	}
}

// RecordConflicts adds namespace conflicts.
func (m *Metrics) RecordConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.namespaceConflicts.Add(float64(n))
}

// RecordDocument records the outcome of one harvested document.
func (m *Metrics) RecordDocument(status string) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(status).Inc()
}

// SetLastRun records the upper bound of a completed harvest window.
func (m *Metrics) SetLastRun(t time.Time) {
	if m == nil {
		return
	}
	m.lastRun.Set(float64(t.Unix()))
}
