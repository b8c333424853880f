package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// OperationTransitions counts lifecycle transition attempts by transition and result
	OperationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "operation_transitions_total", Help: "Operation lifecycle transitions by transition and result."},
		[]string{"transition", "result"},
	)
	// SideEffectFailures counts completion side effects that ended as warnings
	SideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "side_effect_failures_total", Help: "Completion side effects that failed or were skipped."},
		[]string{"effect"},
	)
	// MaintenanceAlerts counts alert requests forwarded to the sink
	MaintenanceAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "maintenance_alerts_total", Help: "Maintenance alert requests by result."},
		[]string{"result"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(OperationTransitions)
		Registry.MustRegister(SideEffectFailures)
		Registry.MustRegister(MaintenanceAlerts)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// ObserveTransition records the outcome of one lifecycle transition attempt.
func ObserveTransition(transition, result string) {
	OperationTransitions.WithLabelValues(transition, result).Inc()
}
