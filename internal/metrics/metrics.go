package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giffly_gateway_requests_total",
			Help: "Total number of handled requests.",
		},
		[]string{"method", "rule", "code"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "giffly_gateway_request_duration_seconds",
			Help:    "Request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "rule"},
	)

	BytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giffly_gateway_bytes_sent_total",
			Help: "Total bytes sent to clients.",
		},
		[]string{"rule"},
	)

	BytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giffly_gateway_bytes_received_total",
			Help: "Total request body bytes received from clients.",
		},
		[]string{"rule"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "giffly_gateway_active_connections",
			Help: "Number of requests currently being handled.",
		},
	)

	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giffly_gateway_upstream_errors_total",
			Help: "Count of failed upstream round trips.",
		},
		[]string{"upstream", "kind"},
	)

	PreflightTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giffly_gateway_preflight_total",
			Help: "CORS preflight requests answered without contacting an upstream.",
		},
	)

	CORSDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giffly_gateway_cors_denied_total",
			Help: "Requests whose Origin was not on the allowlist.",
		},
	)

	UpstreamUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "giffly_gateway_upstream_up",
			Help: "Whether the last upstream health check succeeded (1) or not (0).",
		},
		[]string{"upstream"},
	)
)

// All collects all metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		BytesSent,
		BytesReceived,
		ActiveConnections,
		UpstreamErrors,
		PreflightTotal,
		CORSDenied,
		UpstreamUp,
	}
}

// RegisterOn registers all metrics on the given registry.
func RegisterOn(reg prometheus.Registerer) {
	for _, c := range All() {
		reg.MustRegister(c)
	}
}

// Register registers all metrics on the default registry.
func Register() {
	RegisterOn(prometheus.DefaultRegisterer)
}
