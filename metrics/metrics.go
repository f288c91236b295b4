// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"})
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Connected WebSocket clients",
		})
	WSBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_broadcasts_total",
			Help: "Messages fanned out to WebSocket clients",
		})
	WSDroppedClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_dropped_clients_total",
			Help: "Clients removed because their send buffer was full",
		})

	WebhookAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_alerts_total",
			Help: "Inbound webhook alerts by result",
		}, []string{"result"})

	ExchangeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_requests_total",
			Help: "Exchange API calls by operation and result",
		}, []string{"op", "result"})
)
