package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_webhook_events_total",
		Help: "Inbound chain webhooks by outcome (accepted, duplicate, rejected, malformed)",
	}, []string{"outcome"})

	Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_transfers_total",
		Help: "Transfer intents reaching a result, by kind and result",
	}, []string{"kind", "result"})

	SettlementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_settlement_duration_seconds",
		Help:    "Time from submission to a known settlement outcome",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"kind"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_notifications_total",
		Help: "Notification job deliveries by result",
	}, []string{"result"})

	WalletsProvisioned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_wallets_provisioned_total",
		Help: "Custody wallets created",
	})
)
