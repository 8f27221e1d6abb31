package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BasketOpsTotal counts basket mutations by operation and outcome.
	BasketOpsTotal *prometheus.CounterVec
	// PromoApplyTotal counts promo code applications by outcome.
	PromoApplyTotal *prometheus.CounterVec
	// CheckoutTransitionsTotal counts checkout state machine transitions.
	CheckoutTransitionsTotal *prometheus.CounterVec
	// PaymentConfirmTotal counts gateway confirmation outcomes.
	PaymentConfirmTotal *prometheus.CounterVec
	// CatalogRequestTotal counts outbound catalog collaborator calls.
	CatalogRequestTotal *prometheus.CounterVec
	// BasketChargeTotal observes charge amounts at checkout start in pence.
	BasketChargeTotal prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BasketOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basket_operations_total",
			Help:      "Count of basket mutations by operation and result.",
		}, []string{"op", "result"})
		PromoApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_apply_total",
			Help:      "Count of promo code applications by result.",
		}, []string{"result"})
		CheckoutTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_transitions_total",
			Help:      "Count of checkout state machine transitions.",
		}, []string{"from", "to"})
		PaymentConfirmTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirm_total",
			Help:      "Count of payment confirmation outcomes by gateway status.",
		}, []string{"provider", "status"})
		CatalogRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_request_total",
			Help:      "Count of outbound catalog requests by operation and result.",
		}, []string{"op", "result"})
		BasketChargeTotal = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "basket_charge_pence",
			Help:      "Distribution of basket charge totals at checkout start.",
			Buckets:   []float64{500, 1000, 2500, 5000, 10000, 25000, 50000, 100000},
		})

		registerCounterVec(reg, &BasketOpsTotal)
		registerCounterVec(reg, &PromoApplyTotal)
		registerCounterVec(reg, &CheckoutTransitionsTotal)
		registerCounterVec(reg, &PaymentConfirmTotal)
		registerCounterVec(reg, &CatalogRequestTotal)
		registerHistogram(reg, &BasketChargeTotal)
	})
}

// The Observe helpers are nil-safe so services can run without metrics
// registered, as in unit tests.

func ObserveBasketOp(op, result string) {
	if BasketOpsTotal != nil {
		BasketOpsTotal.WithLabelValues(op, result).Inc()
	}
}

func ObservePromoApply(result string) {
	if PromoApplyTotal != nil {
		PromoApplyTotal.WithLabelValues(result).Inc()
	}
}

func ObserveCheckoutTransition(from, to string) {
	if CheckoutTransitionsTotal != nil {
		CheckoutTransitionsTotal.WithLabelValues(from, to).Inc()
	}
}

func ObservePaymentConfirm(provider, status string) {
	if PaymentConfirmTotal != nil {
		PaymentConfirmTotal.WithLabelValues(provider, status).Inc()
	}
}

func ObserveCatalogRequest(op, result string) {
	if CatalogRequestTotal != nil {
		CatalogRequestTotal.WithLabelValues(op, result).Inc()
	}
}

func ObserveBasketCharge(pence int64) {
	if BasketChargeTotal != nil {
		BasketChargeTotal.Observe(float64(pence))
	}
}

func registerCounterVec(reg prometheus.Registerer, c **prometheus.CounterVec) {
	if err := reg.Register(*c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				*c = existing
				return
			}
		}
		panic(err)
	}
}

func registerHistogram(reg prometheus.Registerer, h *prometheus.Histogram) {
	if err := reg.Register(*h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				*h = existing
				return
			}
		}
		panic(err)
	}
}
