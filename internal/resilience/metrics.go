package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerTransitions counts breaker state transitions per target.
	BreakerTransitions *prometheus.CounterVec
	// BreakerOpenedTotal counts how often a breaker opened per target.
	BreakerOpenedTotal *prometheus.CounterVec
	// OutboundRequestDuration observes outbound call latency per target.
	OutboundRequestDuration *prometheus.HistogramVec
)

// MustRegisterMetrics initialises and registers resilience collectors.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Count of circuit breaker state transitions.",
		}, []string{"target", "from", "to"})
		BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_opened_total",
			Help:      "Count of circuit breaker open events.",
		}, []string{"target"})
		OutboundRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbound_request_duration_ms",
			Help:      "Latency of outbound dependency calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"target"})

		for _, c := range []prometheus.Collector{BreakerTransitions, BreakerOpenedTotal, OutboundRequestDuration} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	})
}
