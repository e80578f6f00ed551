package api

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    "routeguard/internal/cache"
    "routeguard/internal/compliance"
    "routeguard/internal/metrics"
    "routeguard/internal/model"
    "routeguard/internal/opt"
    "routeguard/internal/orchestrator"
    "routeguard/internal/store"
    "routeguard/internal/webhooks"
)

// VehiclesHandler handles POST/GET /v1/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            TenantID string          `json:"tenantId"`
            Vehicles []model.Vehicle `json:"vehicles"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        n, err := s.Store.UpsertVehicles(r.Context(), req.TenantID, req.Vehicles)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Upsert vehicles failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]any{"upserted": n})
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        items, err := s.Store.ListVehicles(r.Context(), tenant, nil)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List vehicles failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// VehicleByIDHandler handles POST/GET /v1/vehicles/{id}/location
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[0] == "" || parts[1] != "location" {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    id := parts[0]
    _, tenant := s.withTenant(r)
    switch r.Method {
    case http.MethodPost:
        var body struct {
            Lat float64 `json:"lat"`
            Lng float64 `json:"lng"`
            TS  string  `json:"ts"`
        }
        if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if body.TS == "" { body.TS = time.Now().UTC().Format(time.RFC3339) }
        s.Locations.Upsert(tenant, id, body.Lat, body.Lng, body.TS)
        writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
    case http.MethodGet:
        loc, ok := s.Locations.Get(tenant, id)
        if !ok {
            writeProblem(w, http.StatusNotFound, "No location reported", "", r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, loc)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// DeliveriesHandler handles POST/GET /v1/deliveries
func (s *Server) DeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            TenantID   string           `json:"tenantId"`
            Deliveries []model.Delivery `json:"deliveries"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        n, err := s.Store.UpsertDeliveries(r.Context(), req.TenantID, req.Deliveries)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Upsert deliveries failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]any{"upserted": n})
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        items, err := s.Store.ListDeliveries(r.Context(), tenant, nil)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ZonesHandler handles POST/GET /v1/zones
func (s *Server) ZonesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            TenantID string       `json:"tenantId"`
            Zones    []model.Zone `json:"zones"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        n, err := s.Store.UpsertZones(r.Context(), req.TenantID, req.Zones)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Upsert zones failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]any{"upserted": n})
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        items, err := s.Store.ListZones(r.Context(), tenant)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List zones failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// ComplianceEvaluateHandler handles POST /v1/compliance/evaluate
func (s *Server) ComplianceEvaluateHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        TenantID   string         `json:"tenantId"`
        VehicleIDs []string       `json:"vehicleIds,omitempty"`
        Delivery   model.Delivery `json:"delivery"`
        At         time.Time      `json:"at,omitempty"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
    at := req.At
    if at.IsZero() { at = req.Delivery.Window.Start }
    if at.IsZero() { at = time.Now() }

    vehicles, err := s.Store.ListVehicles(r.Context(), req.TenantID, req.VehicleIDs)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List vehicles failed", err.Error(), r.URL.Path)
        return
    }
    zones, err := s.zoneMap(r, req.TenantID)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List zones failed", err.Error(), r.URL.Path)
        return
    }

    engine := opt.NewEngine(s.Eval, zones)
    stops := engine.StopsForDelivery(req.Delivery)
    analyzer := compliance.NewAnalyzer(s.Eval)
    analysis := analyzer.Analyze(vehicles, stops, at)

    verdicts := map[string]model.ComplianceVerdict{}
    for _, v := range vehicles {
        verdict := s.Eval.Evaluate(v, stops, at)
        for _, viol := range verdict.Violations {
            metrics.ComplianceViolations.WithLabelValues(string(viol.Type)).Inc()
        }
        verdicts[v.ID] = verdict
    }
    writeJSON(w, http.StatusOK, map[string]any{"verdicts": verdicts, "analysis": analysis})
}

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p := s.getPrincipal(r)
    if !p.CanPlan() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    var req model.OptimizeRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateOptimizeRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }

    key := cache.Key(req.TenantID, req)
    if cached, ok := s.Cache.Get(r.Context(), key); ok {
        writeJSON(w, http.StatusOK, map[string]any{"result": cached, "cached": true})
        return
    }

    vehicles, err := s.Store.ListVehicles(r.Context(), req.TenantID, req.VehicleIDs)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List vehicles failed", err.Error(), r.URL.Path)
        return
    }
    deliveries, err := s.Store.ListDeliveries(r.Context(), req.TenantID, req.DeliveryIDs)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
        return
    }
    zones, err := s.zoneMap(r, req.TenantID)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List zones failed", err.Error(), r.URL.Path)
        return
    }

    // Fresher reported positions override stored snapshots.
    for i := range vehicles {
        if loc, ok := s.Locations.Get(req.TenantID, vehicles[i].ID); ok {
            vehicles[i].Location = model.GeoPoint{Lat: loc.Lat, Lng: loc.Lng}
        }
    }

    locations := []model.GeoPoint{}
    for _, v := range vehicles { locations = append(locations, v.Location) }
    for _, d := range deliveries {
        locations = append(locations, d.Pickup, d.Dropoff)
    }
    matrix := opt.HaversineMatrix(locations)

    engine := opt.NewEngine(s.Eval, zones)
    orch := orchestrator.New(s.Eval, engine, s.Primary)
    orch.Notify = func(event string, data map[string]any) {
        switch event {
        case "fallback.engaged":
            metrics.FallbackActivations.WithLabelValues("primary_unavailable").Inc()
        case "route.stripped":
            metrics.StrippedRoutes.Inc()
        }
        s.Pub.Emit(r.Context(), req.TenantID, event, data)
    }

    started := time.Now()
    res, err := orch.OptimizeRoutes(r.Context(), orchestrator.Input{
        Vehicles:   vehicles,
        Deliveries: deliveries,
        Window:     req.Window,
        Matrix:     matrix,
        Algorithm:  opt.Algorithm(req.Algorithm),
        Deadline:   optimizerDeadline(req.DeadlineMs),
        Options: opt.Options{
            At:                      req.Window.Start,
            ConsiderComplianceRules: req.ConsiderComplianceRules,
            PrioritizeByCapacity:    req.PrioritizeByCapacity,
            AllowPartialAssignment:  req.AllowPartialAssignment,
        },
    })
    if err != nil {
        var verr *orchestrator.ValidationError
        if errors.As(err, &verr) {
            metrics.OptimizeRequests.WithLabelValues(req.Algorithm, "invalid").Inc()
            writeProblem(w, http.StatusBadRequest, "Invalid plan input", verr.Error(), r.URL.Path)
            return
        }
        metrics.OptimizeRequests.WithLabelValues(req.Algorithm, "error").Inc()
        writeProblem(w, http.StatusInternalServerError, "Plan failed", err.Error(), r.URL.Path)
        return
    }
    metrics.PlanDuration.WithLabelValues(res.AlgorithmUsed).Observe(time.Since(started).Seconds())
    outcome := "infeasible"
    if res.Feasible { outcome = "feasible" }
    metrics.OptimizeRequests.WithLabelValues(res.AlgorithmUsed, outcome).Inc()

    planDate := req.PlanDate
    if planDate == "" { planDate = time.Now().UTC().Format("2006-01-02") }
    planID, err := s.Store.SavePlan(r.Context(), store.Plan{TenantID: req.TenantID, PlanDate: planDate, Result: res})
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "Save plan failed", err.Error(), r.URL.Path)
        return
    }

    s.Runs.Record(req.TenantID, planDate, res.AlgorithmUsed, opt.RunMetrics{
        Algorithm:    res.AlgorithmUsed,
        Vehicles:     len(vehicles),
        Deliveries:   len(deliveries),
        Assigned:     len(deliveries) - len(res.UnassignedDeliveries),
        Unassigned:   len(res.UnassignedDeliveries),
        DistanceKm:   res.TotalDistanceKm,
        ProcessingMs: res.ProcessingMs,
        Feasible:     res.Feasible,
    })
    _ = s.Store.SavePlanMetrics(r.Context(), req.TenantID, planDate, res.AlgorithmUsed, map[string]any{
        "vehicles":              len(vehicles),
        "deliveries":            len(deliveries),
        "unassigned":            len(res.UnassignedDeliveries),
        "distanceKm":            res.TotalDistanceKm,
        "processingMs":          res.ProcessingMs,
        "feasible":              res.Feasible,
        "efficiencyImprovement": res.EfficiencyImprovement,
    })

    evt := SSEEvent{Type: webhooks.EventPlanCompleted, Data: map[string]any{
        "planId": planID, "feasible": res.Feasible, "routes": len(res.Routes), "unassigned": len(res.UnassignedDeliveries),
    }}
    s.Broker.Publish(planID, evt)
    s.Pub.Emit(r.Context(), req.TenantID, webhooks.EventPlanCompleted, evt.Data)

    s.Cache.Set(r.Context(), key, res)

    body := map[string]any{"planId": planID, "result": res}
    // No compliant assignment at all: explain what would unblock it.
    if len(res.Routes) == 0 && len(deliveries) > 0 {
        se := orchestrator.NewSuggestionEngine(s.Eval, zones)
        d := deliveries[0]
        body["alternatives"] = se.Suggest(vehicles, model.SuggestCriteria{
            Pickup:      d.Pickup,
            Dropoff:     d.Dropoff,
            Window:      d.Window,
            WeightKg:    d.Shipment.WeightKg,
            VolumeM3:    d.Shipment.VolumeM3,
            ServiceType: d.ServiceType,
            ZoneID:      d.DropoffZoneID,
        })
    }
    writeJSON(w, http.StatusOK, body)
}

// AlternativesHandler handles POST /v1/alternatives
func (s *Server) AlternativesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        TenantID   string               `json:"tenantId"`
        VehicleIDs []string             `json:"vehicleIds,omitempty"`
        Criteria   model.SuggestCriteria `json:"criteria"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
    vehicles, err := s.Store.ListVehicles(r.Context(), req.TenantID, req.VehicleIDs)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List vehicles failed", err.Error(), r.URL.Path)
        return
    }
    zones, err := s.zoneMap(r, req.TenantID)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List zones failed", err.Error(), r.URL.Path)
        return
    }
    se := orchestrator.NewSuggestionEngine(s.Eval, zones)
    writeJSON(w, http.StatusOK, map[string]any{"alternatives": se.Suggest(vehicles, req.Criteria)})
}

// PlansHandler handles GET /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    _, tenant := s.withTenant(r)
    planDate := r.URL.Query().Get("planDate")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListPlans(r.Context(), tenant, planDate, cursor, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List plans failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// PlanByIDHandler handles GET /v1/plans/{id} and /v1/plans/{id}/events/stream
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
        s.streamPlanEvents(w, r, id)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    _, tenant := s.withTenant(r)
    plan, err := s.Store.GetPlan(r.Context(), tenant, id)
    if err != nil {
        if errors.Is(err, store.ErrNotFound) {
            writeProblem(w, http.StatusNotFound, "Plan not found", "", r.URL.Path)
            return
        }
        writeProblem(w, http.StatusInternalServerError, "Get plan failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, plan)
}

// streamPlanEvents serves SSE for plan lifecycle events.
func (s *Server) streamPlanEvents(w http.ResponseWriter, r *http.Request, planID string) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(planID)
    defer s.Broker.Unsubscribe(planID, ch)
    // initial heartbeat
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", planID, time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"planId\":\"%s\",\"ts\":\"%s\"}\n\n", planID, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.TenantID == "" { _, req.TenantID = s.withTenant(r) }
        if req.URL == "" || len(req.Events) == 0 {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events required", r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        cursor := r.URL.Query().Get("cursor")
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, next, err := s.Store.ListSubscriptions(r.Context(), tenant, cursor, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if id == "" || strings.Contains(id, "/") {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if r.Method != http.MethodDelete {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    _, tenant := s.withTenant(r)
    if err := s.Store.DeleteSubscription(r.Context(), tenant, id); err != nil {
        writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// HealthHandler handles GET /healthz
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler handles GET /readyz
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Store reachability is the only hard dependency.
    if _, err := s.Store.ListZones(r.Context(), "t_ready_probe"); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    status := r.URL.Query().Get("status")
    cursor := r.URL.Query().Get("cursor")
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/")
    parts := strings.Split(rest, "/")
    if len(parts) != 2 || parts[1] != "retry" || r.Method != http.MethodPost {
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
        return
    }
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, parts[0]); err != nil {
        writeProblem(w, http.StatusInternalServerError, "Retry failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// PlanMetricsHandler handles GET /v1/admin/plan-metrics
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    planDate := r.URL.Query().Get("planDate")
    if planDate == "" { planDate = time.Now().UTC().Format("2006-01-02") }
    algo := r.URL.Query().Get("algo")
    items, err := s.Store.ListPlanMetrics(r.Context(), p.Tenant, planDate, algo)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List plan metrics failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "latest": s.Runs.Latest(p.Tenant, planDate)})
}

func (s *Server) zoneMap(r *http.Request, tenantID string) (map[string]model.Zone, error) {
    zones, err := s.Store.ListZones(r.Context(), tenantID)
    if err != nil {
        return nil, err
    }
    out := make(map[string]model.Zone, len(zones))
    for _, z := range zones { out[z.ID] = z }
    return out, nil
}
