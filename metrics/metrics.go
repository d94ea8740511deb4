// Package metrics defines the prometheus counters and gauges exposed
// by the radclient, radserver, and radproxy packages.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ClientMetrics instruments a radclient.Socket.
type ClientMetrics struct {
	RequestsSent      *prometheus.CounterVec
	ResponsesReceived *prometheus.CounterVec
	Timeouts          *prometheus.CounterVec
	Stalled           *prometheus.CounterVec
}

// NewClientMetrics builds and registers a ClientMetrics against reg.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	m := &ClientMetrics{
		RequestsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_client_requests", Help: "Radius client requests sent"},
			[]string{"endpoint", "code"}),

		ResponsesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_client_responses", Help: "Radius client responses received"},
			[]string{"endpoint", "code"}),

		Timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_client_timeouts", Help: "Radius client requests exhausted without a response"},
			[]string{"endpoint", "code"}),

		Stalled: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_client_responses_stalled", Help: "Radius client responses with no matching outstanding request"},
			[]string{"endpoint"}),
	}

	reg.MustRegister(m.RequestsSent, m.ResponsesReceived, m.Timeouts, m.Stalled)
	return m
}

// ServerMetrics instruments a radserver.Server.
type ServerMetrics struct {
	RequestsReceived *prometheus.CounterVec
	ResponsesSent    *prometheus.CounterVec
	Drops            *prometheus.CounterVec
	DedupHits        *prometheus.CounterVec
	DedupMisses      *prometheus.CounterVec
	DedupCacheSize   prometheus.Gauge
}

// NewServerMetrics builds and registers a ServerMetrics against reg.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		RequestsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_server_requests", Help: "Radius server requests received"},
			[]string{"endpoint", "code"}),

		ResponsesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_server_responses", Help: "Radius server responses sent"},
			[]string{"endpoint", "code"}),

		Drops: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_server_drops", Help: "Radius server dropped packets"},
			[]string{"endpoint", "reason"}),

		DedupHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_server_dedup_hits", Help: "Radius server retransmits answered from the dedup cache"},
			[]string{"endpoint"}),

		DedupMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_server_dedup_misses", Help: "Radius server requests not found in the dedup cache"},
			[]string{"endpoint"}),

		DedupCacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "radius_server_dedup_cache_size", Help: "Current number of entries held in the dedup cache"}),
	}

	reg.MustRegister(m.RequestsReceived, m.ResponsesSent, m.Drops, m.DedupHits, m.DedupMisses, m.DedupCacheSize)
	return m
}

// ProxyMetrics instruments a radproxy.Handler.
type ProxyMetrics struct {
	Forwarded *prometheus.CounterVec
	Failed    *prometheus.CounterVec
}

// NewProxyMetrics builds and registers a ProxyMetrics against reg.
func NewProxyMetrics(reg prometheus.Registerer) *ProxyMetrics {
	m := &ProxyMetrics{
		Forwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_proxy_forwarded", Help: "Radius requests forwarded upstream by the proxy"},
			[]string{"upstream", "code"}),

		Failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_proxy_failed", Help: "Radius proxy forwards that did not get an upstream response"},
			[]string{"upstream", "reason"}),
	}

	reg.MustRegister(m.Forwarded, m.Failed)
	return m
}
