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

	// BoardFetches counts provider fetch outcomes by provider and status
	BoardFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "board_fetch_total", Help: "Load-board provider fetches by provider and status."},
		[]string{"provider", "status"},
	)
	// BoardFetchLatency tracks provider fetch latencies in seconds
	BoardFetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "board_fetch_duration_seconds", Help: "Load-board provider fetch duration in seconds.", Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30}},
		[]string{"provider"},
	)

	// AlertDeliveries counts alert webhook delivery outcomes by event type and status
	AlertDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alert_deliveries_total", Help: "Alert webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(BoardFetches)
		Registry.MustRegister(BoardFetchLatency)
		Registry.MustRegister(AlertDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
