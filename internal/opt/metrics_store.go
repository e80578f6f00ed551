package opt

import "sync"

// RunMetrics summarizes a single heuristic run for admin views.
type RunMetrics struct {
    Algorithm    string  `json:"algorithm"`
    Vehicles     int     `json:"vehicles"`
    Deliveries   int     `json:"deliveries"`
    Assigned     int     `json:"assigned"`
    Unassigned   int     `json:"unassigned"`
    DistanceKm   float64 `json:"distanceKm"`
    ProcessingMs int64   `json:"processingMs"`
    Feasible     bool    `json:"feasible"`
}

type runKey struct {
    Tenant   string
    PlanDate string
    Algo     string
}

// RunMetricsStore keeps the latest run per tenant, date and algorithm.
// The service injects one instance; the heuristics never touch it.
type RunMetricsStore struct {
    mu sync.Mutex
    m  map[runKey]RunMetrics
}

func NewRunMetricsStore() *RunMetricsStore {
    return &RunMetricsStore{m: map[runKey]RunMetrics{}}
}

func (s *RunMetricsStore) Record(tenant, planDate, algo string, m RunMetrics) {
    s.mu.Lock()
    s.m[runKey{Tenant: tenant, PlanDate: planDate, Algo: algo}] = m
    s.mu.Unlock()
}

// Latest returns the most recent run per algorithm for a tenant and date.
func (s *RunMetricsStore) Latest(tenant, planDate string) map[string]RunMetrics {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := map[string]RunMetrics{}
    for k, v := range s.m {
        if k.Tenant == tenant && k.PlanDate == planDate {
            out[k.Algo] = v
        }
    }
    return out
}
