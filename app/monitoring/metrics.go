package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhooks_received_total",
			Help: "Webhook deliveries received per gateway and outcome",
		},
		[]string{"gateway", "outcome"},
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Reconciled gateway events per gateway and whether they changed the payment",
		},
		[]string{"gateway", "result"},
	)

	pollChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_poll_checks_total",
			Help: "Active status checks issued to gateways",
		},
		[]string{"gateway", "result"},
	)

	activePollTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "poll_timers_active_total",
			Help: "Current number of payments with a live poll timer",
		},
	)
)

// ObserveWebhook counts one webhook delivery. Outcome is one of
// "processed", "duplicate", "rejected".
func ObserveWebhook(gateway, outcome string) {
	webhooksReceived.WithLabelValues(gateway, outcome).Inc()
}

func ObserveReconciliation(gateway string, applied bool) {
	result := "ignored"
	if applied {
		result = "applied"
	}
	reconciliations.WithLabelValues(gateway, result).Inc()
}

func ObservePollCheck(gateway string, ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	pollChecks.WithLabelValues(gateway, result).Inc()
}

func SetActivePollTimers(count int) {
	activePollTimers.Set(float64(count))
}
