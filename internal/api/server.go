package api

import (
    "context"
    "net/http"
    "os"
    "strconv"
    "strings"
    "time"

    "routeguard/internal/cache"
    "routeguard/internal/compliance"
    "routeguard/internal/opt"
    "routeguard/internal/solver"
    "routeguard/internal/store"
    "routeguard/internal/webhooks"
)

type Server struct {
    Store     store.Store
    Pub       *webhooks.Publisher
    Broker    EventBroker
    Eval      *compliance.Evaluator
    Primary   solver.Optimizer
    Cache     cache.PlanCache
    Locations *LocationCache
    Runs      *opt.RunMetricsStore
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory
// store; if REDIS_URL is unset, broker and plan cache are in-process.
func NewServer() (*Server, error) {
    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        if os.Getenv("AUTO_MIGRATE") == "1" {
            _ = sp.MigrateDir("db/migrations")
        }
        s = sp
    }

    rules, err := compliance.LoadRules(os.Getenv("COMPLIANCE_RULES_PATH"))
    if err != nil {
        return nil, err
    }

    var broker EventBroker
    var planCache cache.PlanCache
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil { broker = rb } else { broker = NewBroker() }
        if rc, err := cache.NewRedis(os.Getenv("REDIS_URL"), planCacheTTL()); err == nil {
            planCache = rc
        } else {
            planCache = cache.NewMemory(planCacheTTL())
        }
    } else {
        broker = NewBroker()
        planCache = cache.NewMemory(planCacheTTL())
    }

    var primary solver.Optimizer
    if url := os.Getenv("OPTIMIZER_URL"); url != "" {
        primary = solver.NewRemote(url)
    }

    return &Server{
        Store:     s,
        Pub:       webhooks.NewPublisher(s),
        Broker:    broker,
        Eval:      compliance.NewEvaluator(rules),
        Primary:   primary,
        Cache:     planCache,
        Locations: NewLocationCache(),
        Runs:      opt.NewRunMetricsStore(),
    }, nil
}

// optimizerDeadline resolves the primary solver budget: per-request value
// first, then OPTIMIZER_DEADLINE_MS, else zero so the orchestrator uses
// its own default.
func optimizerDeadline(requestMs int) time.Duration {
    if requestMs > 0 { return time.Duration(requestMs) * time.Millisecond }
    if v := os.Getenv("OPTIMIZER_DEADLINE_MS"); v != "" {
        if ms, err := strconv.Atoi(v); err == nil && ms > 0 { return time.Duration(ms) * time.Millisecond }
    }
    return 0
}

func planCacheTTL() time.Duration {
    if v := os.Getenv("PLAN_CACHE_TTL"); v != "" {
        if d, err := time.ParseDuration(v); err == nil && d > 0 { return d }
    }
    return cache.DefaultTTL
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
    // For now, get tenant from header; in production decode from JWT.
    tenant := r.Header.Get("X-Tenant-Id")
    if tenant == "" { tenant = "t_demo" }
    ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
    return ctx, tenant
}

type ctxKeyTenant struct{}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}
