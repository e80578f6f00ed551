package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"
    "routeguard/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu        sync.Mutex
    vehicles  map[string]map[string]model.Vehicle  // tenant -> id -> vehicle
    vehOrder  map[string][]string                  // tenant -> insertion order
    delivs    map[string]map[string]model.Delivery // tenant -> id -> delivery
    delOrder  map[string][]string
    zones     map[string]map[string]model.Zone
    zoneOrder map[string][]string
    plans     map[string]Plan     // id -> plan
    planTen   map[string][]string // tenant -> plan ids
    subs      map[string][]model.Subscription
    // Webhooks queue state
    deliveries         map[string]*memDelivery
    deliveriesByTenant map[string][]string
    planMx             map[string]map[string][]map[string]any // tenant -> planDate -> items
}

func NewMemory() *Memory {
    return &Memory{
        vehicles:  map[string]map[string]model.Vehicle{},
        vehOrder:  map[string][]string{},
        delivs:    map[string]map[string]model.Delivery{},
        delOrder:  map[string][]string{},
        zones:     map[string]map[string]model.Zone{},
        zoneOrder: map[string][]string{},
        plans:     map[string]Plan{},
        planTen:   map[string][]string{},
        subs:      map[string][]model.Subscription{},
        deliveries:         map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        planMx:             map[string]map[string][]map[string]any{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) UpsertVehicles(ctx context.Context, tenantID string, vehicles []model.Vehicle) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.vehicles[tenantID] == nil { m.vehicles[tenantID] = map[string]model.Vehicle{} }
    n := 0
    for _, v := range vehicles {
        if v.ID == "" { v.ID = uuid.New().String() }
        if _, ok := m.vehicles[tenantID][v.ID]; !ok {
            m.vehOrder[tenantID] = append(m.vehOrder[tenantID], v.ID)
        }
        m.vehicles[tenantID][v.ID] = v
        n++
    }
    return n, nil
}

func (m *Memory) ListVehicles(ctx context.Context, tenantID string, ids []string) ([]model.Vehicle, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Vehicle{}
    if len(ids) > 0 {
        for _, id := range ids {
            if v, ok := m.vehicles[tenantID][id]; ok { out = append(out, v) }
        }
        return out, nil
    }
    for _, id := range m.vehOrder[tenantID] {
        out = append(out, m.vehicles[tenantID][id])
    }
    return out, nil
}

func (m *Memory) UpsertDeliveries(ctx context.Context, tenantID string, deliveries []model.Delivery) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.delivs[tenantID] == nil { m.delivs[tenantID] = map[string]model.Delivery{} }
    n := 0
    for _, d := range deliveries {
        if d.ID == "" { d.ID = uuid.New().String() }
        if _, ok := m.delivs[tenantID][d.ID]; !ok {
            m.delOrder[tenantID] = append(m.delOrder[tenantID], d.ID)
        }
        m.delivs[tenantID][d.ID] = d
        n++
    }
    return n, nil
}

func (m *Memory) ListDeliveries(ctx context.Context, tenantID string, ids []string) ([]model.Delivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Delivery{}
    if len(ids) > 0 {
        for _, id := range ids {
            if d, ok := m.delivs[tenantID][id]; ok { out = append(out, d) }
        }
        return out, nil
    }
    for _, id := range m.delOrder[tenantID] {
        out = append(out, m.delivs[tenantID][id])
    }
    return out, nil
}

func (m *Memory) UpsertZones(ctx context.Context, tenantID string, zones []model.Zone) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.zones[tenantID] == nil { m.zones[tenantID] = map[string]model.Zone{} }
    n := 0
    for _, z := range zones {
        if z.ID == "" { z.ID = uuid.New().String() }
        if _, ok := m.zones[tenantID][z.ID]; !ok {
            m.zoneOrder[tenantID] = append(m.zoneOrder[tenantID], z.ID)
        }
        m.zones[tenantID][z.ID] = z
        n++
    }
    return n, nil
}

func (m *Memory) ListZones(ctx context.Context, tenantID string) ([]model.Zone, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Zone{}
    for _, id := range m.zoneOrder[tenantID] {
        out = append(out, m.zones[tenantID][id])
    }
    return out, nil
}

func (m *Memory) SavePlan(ctx context.Context, plan Plan) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if plan.ID == "" { plan.ID = uuid.New().String() }
    if plan.CreatedAt.IsZero() { plan.CreatedAt = time.Now().UTC() }
    m.plans[plan.ID] = plan
    m.planTen[plan.TenantID] = append(m.planTen[plan.TenantID], plan.ID)
    return plan.ID, nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, planID string) (Plan, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    p, ok := m.plans[planID]
    if !ok || p.TenantID != tenantID { return Plan{}, ErrNotFound }
    return p, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, planDate, cursor string, limit int) ([]Plan, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.planTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    if limit <= 0 { limit = 100 }
    out := []Plan{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        p := m.plans[ids[i]]
        if planDate == "" || p.PlanDate == planDate { out = append(out, p) }
        next = ids[i]
    }
    if len(out) < limit { next = "" }
    return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i + 1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription(nil), list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[tenantID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr { if s.ID != id { out = append(out, s) } }
    m.subs[tenantID] = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.iterDeliveryIDs() {
        d := m.deliveries[id]
        if d == nil { continue }
        if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return nil }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = "delivered"
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = "retry"
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil {
        d.Status = "failed"
        d.LastError = lastError
        d.ResponseCode = responseCode
        d.LatencyMs = latencyMs
    }
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []map[string]any{}
    ids := m.deliveriesByTenant[tenantID]
    for _, id := range ids {
        d := m.deliveries[id]
        if d == nil { continue }
        if status == "" || d.Status == status {
            item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
            if !d.NextAttemptAt.IsZero() { item["nextAttemptAt"] = d.NextAttemptAt }
            if d.LastError != "" { item["lastError"] = d.LastError }
            out = append(out, item)
        }
    }
    return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d != nil && d.TenantID == tenantID {
        d.Status = "pending"
        d.NextAttemptAt = time.Now()
    }
    return nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID, planDate, algo string, metrics map[string]any) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if m.planMx[tenantID] == nil { m.planMx[tenantID] = map[string][]map[string]any{} }
    items := m.planMx[tenantID][planDate]
    found := false
    for i := range items { if items[i]["algo"] == algo { items[i] = metrics; items[i]["algo"] = algo; found = true; break } }
    if !found { metrics["algo"] = algo; items = append(items, metrics) }
    m.planMx[tenantID][planDate] = items
    return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, planDate, algo string) ([]map[string]any, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    items := m.planMx[tenantID][planDate]
    if algo == "" { return append([]map[string]any(nil), items...), nil }
    out := []map[string]any{}
    for _, it := range items { if it["algo"] == algo { out = append(out, it) } }
    return out, nil
}

// helper: iterate delivery IDs by tenant order
func (m *Memory) iterDeliveryIDs() []string {
    ids := []string{}
    for _, lst := range m.deliveriesByTenant {
        ids = append(ids, lst...)
    }
    return ids
}
