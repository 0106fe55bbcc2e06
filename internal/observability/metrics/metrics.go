package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconciliationMetrics exposes counters/histograms for the payment
// reconciliation flow.
type ReconciliationMetrics struct {
	tokenRequests  *prometheus.CounterVec
	webhookTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	sweepRuns      prometheus.Counter
	sweepCancelled prometheus.Counter
}

func NewReconciliationMetrics(reg prometheus.Registerer) *ReconciliationMetrics {
	m := &ReconciliationMetrics{
		tokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coworkhub",
			Subsystem: "vietqr",
			Name:      "token_requests_total",
			Help:      "Total partner token issuance requests",
		}, []string{"status"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coworkhub",
			Subsystem: "vietqr",
			Name:      "webhook_total",
			Help:      "Total transaction notifications by outcome",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coworkhub",
			Subsystem: "vietqr",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of transaction notification processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coworkhub",
			Subsystem: "reservations",
			Name:      "sweep_runs_total",
			Help:      "Total expiry sweep invocations",
		}),
		sweepCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coworkhub",
			Subsystem: "reservations",
			Name:      "sweep_cancelled_total",
			Help:      "Total reservations cancelled by the expiry sweep",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.tokenRequests, m.webhookTotal, m.webhookLatency, m.sweepRuns, m.sweepCancelled)
	return m
}

func (m *ReconciliationMetrics) ObserveTokenRequest(status string) {
	if m == nil {
		return
	}
	m.tokenRequests.WithLabelValues(status).Inc()
}

func (m *ReconciliationMetrics) ObserveWebhook(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(outcome).Inc()
	m.webhookLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *ReconciliationMetrics) ObserveSweep(cancelled int) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepCancelled.Add(float64(cancelled))
}
