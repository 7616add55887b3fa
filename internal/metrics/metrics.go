// Package metrics holds the Prometheus collectors of the chat client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	APIRequests   *prometheus.CounterVec
	StaleDropped  *prometheus.CounterVec
	SendsRejected *prometheus.CounterVec
	LiveEvents    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketchat",
			Name:      "api_requests_total",
			Help:      "Messaging API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		StaleDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketchat",
			Name:      "stale_responses_dropped_total",
			Help:      "Responses discarded because a newer request superseded them.",
		}, []string{"store"}),
		SendsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketchat",
			Name:      "sends_rejected_total",
			Help:      "Composer submissions rejected before any network call.",
		}, []string{"reason"}),
		LiveEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketchat",
			Name:      "live_events_total",
			Help:      "Events received on the live feed by type.",
		}, []string{"type"}),
		gatherer: reg,
	}

	reg.MustRegister(m.APIRequests, m.StaleDropped, m.SendsRejected, m.LiveEvents)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// The helpers below accept a nil receiver so callers can run uninstrumented.

func (m *Metrics) Request(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) Stale(store string) {
	if m == nil {
		return
	}
	m.StaleDropped.WithLabelValues(store).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.SendsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Live(eventType string) {
	if m == nil {
		return
	}
	m.LiveEvents.WithLabelValues(eventType).Inc()
}
