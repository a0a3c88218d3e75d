// Package metrics exposes Prometheus instrumentation for source refreshes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelsIngested = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "opentv_channels_ingested",
		Help: "Channels ingested per source in the last refresh",
	}, []string{"source", "kind"})

	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opentv_refresh_total",
		Help: "Source refresh attempts by outcome",
	}, []string{"kind", "outcome"}) // outcome=success|failure

	refreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opentv_refresh_duration_seconds",
		Help:    "Wall time of one source refresh",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"kind"})

	endpointFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opentv_endpoint_failures_total",
		Help: "Upstream endpoint failures by pipeline",
	}, []string{"kind", "pipeline"}) // pipeline=live|vod|series

	epgRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opentv_epg_requests_total",
		Help: "Short-EPG requests by outcome",
	}, []string{"outcome"})
)

func RecordChannelsIngested(source, kind string, n int) {
	channelsIngested.WithLabelValues(source, kind).Set(float64(n))
}

func IncRefresh(kind string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	refreshTotal.WithLabelValues(kind, outcome).Inc()
}

func ObserveRefreshDuration(kind string, seconds float64) {
	refreshDuration.WithLabelValues(kind).Observe(seconds)
}

func IncEndpointFailure(kind, pipeline string) {
	endpointFailures.WithLabelValues(kind, pipeline).Inc()
}

func IncEPGRequest(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	epgRequests.WithLabelValues(outcome).Inc()
}
