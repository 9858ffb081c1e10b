package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CouponEvaluationsTotal counts coupon eligibility checks by call site and outcome.
	CouponEvaluationsTotal *prometheus.CounterVec
	// CartMergesTotal counts guest-to-user cart merges by outcome.
	CartMergesTotal *prometheus.CounterVec
	// CheckoutTotal counts order submission outcomes.
	CheckoutTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentCallbackTotal counts inbound payment callback processing outcomes.
	PaymentCallbackTotal *prometheus.CounterVec
	// NotificationsTotal counts order notification enqueue and delivery outcomes.
	NotificationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CouponEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_evaluations_total",
			Help:      "Count of coupon eligibility evaluations by source and result.",
		}, []string{"source", "result"})
		CartMergesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_merges_total",
			Help:      "Count of guest cart merges by outcome.",
		}, []string{"result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of order submissions by outcome.",
		}, []string{"result"})
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent processing outcomes.",
		}, []string{"provider", "result"})
		PaymentCallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callback_total",
			Help:      "Count of processed payment callbacks by outcome.",
		}, []string{"provider", "result"})
		NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of order notification outcomes.",
		}, []string{"kind", "result"})

		CouponEvaluationsTotal = register(reg, CouponEvaluationsTotal)
		CartMergesTotal = register(reg, CartMergesTotal)
		CheckoutTotal = register(reg, CheckoutTotal)
		PaymentIntentTotal = register(reg, PaymentIntentTotal)
		PaymentCallbackTotal = register(reg, PaymentCallbackTotal)
		NotificationsTotal = register(reg, NotificationsTotal)
	})
}

// Inc increments the counter for the given labels when the vector has been registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
