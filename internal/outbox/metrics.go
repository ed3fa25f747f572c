package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay.
type Metrics struct {
	Published           prometheus.Counter
	PublishFailures     prometheus.Counter
	Pending             prometheus.Gauge
	CircuitBreakerState prometheus.Gauge
	PublishDuration     prometheus.Histogram
}

// NewMetrics registers relay metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "lexbounty_outbox_published_total",
			Help: "Total number of outbox entries delivered to the event stream",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "lexbounty_outbox_publish_failures_total",
			Help: "Total number of failed relay batches",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "lexbounty_outbox_pending",
			Help: "Outbox entries waiting to be published",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "lexbounty_outbox_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		PublishDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexbounty_outbox_publish_duration_seconds",
			Help:    "Time to publish one relay batch",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
