package gateway

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "slurmweb"

// Outcome labels of request metrics.
const (
	outcomeSuccess = "success"
	outcomeAborted = "aborted"
	outcomeCached  = "cached"
)

// metrics of gateway requests. A nil metrics is valid and records nothing.
type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil //nolint:nilnil
	}

	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of gateway requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of gateway requests by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// outcome returns the label of a request result.
func outcome(err error) string {
	if err == nil {
		return outcomeSuccess
	}

	if errors.Is(err, ErrAborted) {
		return outcomeAborted
	}

	if kind, ok := KindOf(err); ok {
		return kind.String()
	}

	return "unknown"
}

func (m *metrics) observe(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(operation, outcome).Inc()

	if outcome != outcomeCached {
		m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
}
