package main

import (
    "bufio"
    "fmt"
    "log"
    "net"
    "net/http"
    "os"
    "time"

    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "routeguard/internal/api"
    "routeguard/internal/buildinfo"
    "routeguard/internal/metrics"
)

func main() {
    _ = godotenv.Load()

    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Fleet data
    mux.HandleFunc("/v1/vehicles", srvDeps.VehiclesHandler)
    mux.HandleFunc("/v1/vehicles/", srvDeps.VehicleByIDHandler) // /{id}/location
    mux.HandleFunc("/v1/deliveries", srvDeps.DeliveriesHandler)
    mux.HandleFunc("/v1/zones", srvDeps.ZonesHandler)

    // Compliance and planning
    mux.HandleFunc("/v1/compliance/evaluate", srvDeps.ComplianceEvaluateHandler)
    mux.HandleFunc("/v1/optimize", srvDeps.OptimizeHandler)
    mux.HandleFunc("/v1/alternatives", srvDeps.AlternativesHandler)

    // Plans
    mux.HandleFunc("/v1/plans", srvDeps.PlansHandler)
    mux.HandleFunc("/v1/plans/events/ws", srvDeps.PlanEventsWSHandler)
    mux.HandleFunc("/v1/plans/", srvDeps.PlanByIDHandler) // includes /events/stream

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

    // Health
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveryRetryHandler)
    mux.HandleFunc("/v1/admin/plan-metrics", srvDeps.PlanMetricsHandler)

    // Prometheus
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    srv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(mux),
        ReadHeaderTimeout: 5 * time.Second,
    }

    log.Printf("API %s listening on %s", buildinfo.Version, addr)
    // Start webhook worker
    if srvDeps.Pub != nil {
        worker := srvDeps.NewWebhookWorker()
        worker.Start()
    }
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

type statusWriter struct {
    http.ResponseWriter
    status int
}

func (w *statusWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

// Pass-throughs so SSE streaming and WebSocket upgrades still work.
func (w *statusWriter) Flush() {
    if f, ok := w.ResponseWriter.(http.Flusher); ok {
        f.Flush()
    }
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    if h, ok := w.ResponseWriter.(http.Hijacker); ok {
        return h.Hijack()
    }
    return nil, nil, fmt.Errorf("hijack not supported")
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(sw, r)
        dur := time.Since(start)
        status := fmt.Sprintf("%d", sw.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
        log.Printf("%s %s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, status, dur)
    })
}
