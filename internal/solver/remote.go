// Package solver wraps the external primary optimizer behind a narrow
// interface so the orchestrator's primary/fallback decision is a plain
// strategy selection.
package solver

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "time"

    "golang.org/x/time/rate"

    "routeguard/internal/model"
)

// ErrUnavailable marks timeouts, transport failures and non-2xx answers.
// The orchestrator recovers from it by falling back; it is never surfaced
// to callers as a hard failure.
var ErrUnavailable = errors.New("optimizer unavailable")

type Request struct {
    Vehicles   []model.Vehicle      `json:"vehicles"`
    Deliveries []model.Delivery     `json:"deliveries"`
    Hubs       []model.GeoPoint     `json:"hubs,omitempty"`
    Window     model.TimeWindow     `json:"window"`
    Matrix     model.DistanceMatrix `json:"matrix,omitempty"`
    Constraints map[string]any      `json:"constraints,omitempty"`
}

type Response struct {
    Routes               []model.Route      `json:"routes"`
    UnassignedDeliveries []string           `json:"unassignedDeliveries,omitempty"`
    TotalDistanceKm      float64            `json:"totalDistanceKm"`
    TotalDurationMin     float64            `json:"totalDurationMin"`
    Metrics              map[string]float64 `json:"metrics,omitempty"`
}

// Optimizer is the primary large-scale solver, invoked as a remote call.
type Optimizer interface {
    Optimize(ctx context.Context, req Request) (*Response, error)
}

// Remote calls the solver over HTTP. A shared limiter keeps concurrent
// optimization requests from hammering the solver during incidents.
type Remote struct {
    URL     string
    HTTP    *http.Client
    Limiter *rate.Limiter
}

func NewRemote(url string) *Remote {
    return &Remote{
        URL:     url,
        HTTP:    &http.Client{Timeout: 30 * time.Second},
        Limiter: rate.NewLimiter(rate.Limit(10), 20),
    }
}

func (r *Remote) Optimize(ctx context.Context, req Request) (*Response, error) {
    if r.URL == "" {
        return nil, fmt.Errorf("%w: no optimizer endpoint configured", ErrUnavailable)
    }
    if err := r.Limiter.Wait(ctx); err != nil {
        return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    body, err := json.Marshal(req)
    if err != nil {
        return nil, err
    }
    hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL+"/v1/solve", bytes.NewReader(body))
    if err != nil {
        return nil, err
    }
    hreq.Header.Set("Content-Type", "application/json")
    resp, err := r.HTTP.Do(hreq)
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    defer func() { _ = resp.Body.Close() }()
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
    }
    var out Response
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
        return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
    }
    return &out, nil
}
