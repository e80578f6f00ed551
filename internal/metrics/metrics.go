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

    // OptimizeRequests counts plan requests by algorithm and outcome
    OptimizeRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "optimize_requests_total", Help: "Optimization requests by algorithm and outcome."},
        []string{"algorithm", "outcome"},
    )
    // PlanDuration tracks end-to-end planning latency in seconds
    PlanDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "plan_duration_seconds", Help: "End-to-end planning duration in seconds.", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}},
        []string{"algorithm"},
    )
    // FallbackActivations counts primary-optimizer failures recovered locally
    FallbackActivations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "fallback_activations_total", Help: "Fallback engine activations by reason."},
        []string{"reason"},
    )
    // ComplianceViolations counts violations observed during evaluation
    ComplianceViolations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "compliance_violations_total", Help: "Compliance violations by type."},
        []string{"type"},
    )
    // StrippedRoutes counts routes removed by plan re-validation
    StrippedRoutes = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "stripped_routes_total", Help: "Routes stripped during plan validation."},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(OptimizeRequests)
        Registry.MustRegister(PlanDuration)
        Registry.MustRegister(FallbackActivations)
        Registry.MustRegister(ComplianceViolations)
        Registry.MustRegister(StrippedRoutes)
        Registry.MustRegister(WebhookDeliveries)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
