package analysisclient

import "github.com/prometheus/client_golang/prometheus"

// Metrics are shared by all the buffers of a process
type Metrics struct {
	Admitted      prometheus.Counter
	RateLimited   prometheus.Counter
	Evicted       prometheus.Counter
	Pending       prometheus.Gauge
	Flushes       *prometheus.CounterVec
	FlushDuration prometheus.Histogram
}

// Flush results
const (
	FlushOK      = "ok"
	FlushError   = "error"
	FlushSkipped = "skipped"
)

// NewMetrics creates the upload metrics, and registers them with reg, if reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formtrack",
			Subsystem: "upload",
			Name:      "frames_admitted_total",
			Help:      "Frames admitted into the upload buffer",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formtrack",
			Subsystem: "upload",
			Name:      "frames_rate_limited_total",
			Help:      "Frames not buffered because the token bucket was empty",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formtrack",
			Subsystem: "upload",
			Name:      "frames_evicted_total",
			Help:      "Frames dropped from the front of a full upload buffer",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "formtrack",
			Subsystem: "upload",
			Name:      "frames_pending",
			Help:      "Frames waiting to be uploaded",
		}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formtrack",
			Subsystem: "upload",
			Name:      "flushes_total",
			Help:      "Flush attempts, by result",
		}, []string{"result"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "formtrack",
			Subsystem: "upload",
			Name:      "flush_duration_seconds",
			Help:      "Duration of upload requests",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Admitted, m.RateLimited, m.Evicted, m.Pending, m.Flushes, m.FlushDuration)
	}
	return m
}
