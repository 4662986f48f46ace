package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run results recorded in the runs counter.
const (
	ResultSuccess      = "success"
	ResultFetchError   = "fetch_error"
	ResultStoreError   = "store_error"
	ResultEnqueueError = "enqueue_error"
)

// Metrics records run outcomes. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics creates the sync collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gemsync",
				Subsystem: "entry_sync",
				Name:      "runs_total",
				Help:      "Entry sync runs by result",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gemsync",
				Subsystem: "entry_sync",
				Name:      "duration_seconds",
				Help:      "Duration of entry sync runs",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.runs, m.duration)
	return m
}

func (m *Metrics) observe(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
}
