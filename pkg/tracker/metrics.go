package tracker

import "github.com/prometheus/client_golang/prometheus"

// Metrics are shared by all the sessions of a process
type Metrics struct {
	Submitted         prometheus.Counter
	Repeats           prometheus.Counter
	InferenceErrors   prometheus.Counter
	InferenceDuration prometheus.Histogram
	RemoteErrors      prometheus.Counter
}

// NewMetrics creates the tracking metrics, and registers them with reg, if reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formtrack",
			Subsystem: "tracker",
			Name:      "frames_submitted_total",
			Help:      "Camera frames submitted to tracking sessions",
		}),
		Repeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formtrack",
			Subsystem: "tracker",
			Name:      "frames_repeated_total",
			Help:      "Frames answered with the previous pose because the estimator was busy",
		}),
		InferenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formtrack",
			Subsystem: "tracker",
			Name:      "inference_errors_total",
			Help:      "Estimator failures",
		}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "formtrack",
			Subsystem: "tracker",
			Name:      "inference_duration_seconds",
			Help:      "Time spent in the estimator and smoother",
			Buckets:   prometheus.ExponentialBuckets(0.002, 2, 10),
		}),
		RemoteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formtrack",
			Subsystem: "tracker",
			Name:      "remote_session_errors_total",
			Help:      "Failures to create a remote analysis session",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Repeats, m.InferenceErrors, m.InferenceDuration, m.RemoteErrors)
	}
	return m
}
