package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	relayRequests    *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	interestMerges   *prometheus.CounterVec
	requests         *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)
	return &metrics{
		relayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_relay_requests_total",
			Help: "Relay route requests by route and response status.",
		}, []string{"route", "code"}),
		upstreamFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_upstream_failures_total",
			Help: "Exchanges with the Hyle node that could not complete.",
		}, []string{"route"}),
		interestMerges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_interest_merges_total",
			Help: "Hashed interest submissions by outcome.",
		}, []string{"result"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Inbound HTTP requests by method and status.",
		}, []string{"method", "code"}),
	}
}
