package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "routeguard/internal/model"
)

// Postgres persists fleet snapshots and plans. Entities are stored as
// JSONB documents keyed by (tenant_id, id); webhook deliveries use
// columns because the worker filters and updates them field by field.
type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

// MigrateDir applies every .sql file in dir in lexical order. Files are
// expected to be idempotent (CREATE TABLE IF NOT EXISTS and friends).
func (p *Postgres) MigrateDir(dir string) error {
    entries, err := os.ReadDir(dir)
    if err != nil { return err }
    names := []string{}
    for _, e := range entries {
        if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") { names = append(names, e.Name()) }
    }
    sort.Strings(names)
    for _, name := range names {
        sqlText, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return err }
        if _, err := p.db.Exec(string(sqlText)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
    }
    return nil
}

func (p *Postgres) upsertDocs(ctx context.Context, table, tenantID string, ids []string, docs []any) (int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, err }
    defer func() { _ = tx.Rollback() }()
    n := 0
    for i := range ids {
        doc, err := json.Marshal(docs[i])
        if err != nil { return 0, err }
        _, err = tx.ExecContext(ctx, `INSERT INTO `+table+` (tenant_id, id, doc, updated_at) VALUES ($1,$2,$3,now())
            ON CONFLICT (tenant_id, id) DO UPDATE SET doc=EXCLUDED.doc, updated_at=now()`, tenantID, ids[i], doc)
        if err != nil { return 0, err }
        n++
    }
    if err := tx.Commit(); err != nil { return 0, err }
    return n, nil
}

func (p *Postgres) listDocs(ctx context.Context, table, tenantID string, ids []string, scan func([]byte) error) error {
    var rows *sql.Rows
    var err error
    if len(ids) > 0 {
        rows, err = p.db.QueryContext(ctx, `SELECT doc FROM `+table+` WHERE tenant_id=$1 AND id=ANY($2) ORDER BY id`, tenantID, ids)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT doc FROM `+table+` WHERE tenant_id=$1 ORDER BY id`, tenantID)
    }
    if err != nil { return err }
    defer rows.Close()
    for rows.Next() {
        var doc []byte
        if err := rows.Scan(&doc); err != nil { return err }
        if err := scan(doc); err != nil { return err }
    }
    return rows.Err()
}

func (p *Postgres) UpsertVehicles(ctx context.Context, tenantID string, vehicles []model.Vehicle) (int, error) {
    ids := make([]string, len(vehicles))
    docs := make([]any, len(vehicles))
    for i := range vehicles {
        if vehicles[i].ID == "" { vehicles[i].ID = uuid.New().String() }
        ids[i] = vehicles[i].ID
        docs[i] = vehicles[i]
    }
    return p.upsertDocs(ctx, "vehicles", tenantID, ids, docs)
}

func (p *Postgres) ListVehicles(ctx context.Context, tenantID string, ids []string) ([]model.Vehicle, error) {
    out := []model.Vehicle{}
    err := p.listDocs(ctx, "vehicles", tenantID, ids, func(doc []byte) error {
        var v model.Vehicle
        if err := json.Unmarshal(doc, &v); err != nil { return err }
        out = append(out, v)
        return nil
    })
    return out, err
}

func (p *Postgres) UpsertDeliveries(ctx context.Context, tenantID string, deliveries []model.Delivery) (int, error) {
    ids := make([]string, len(deliveries))
    docs := make([]any, len(deliveries))
    for i := range deliveries {
        if deliveries[i].ID == "" { deliveries[i].ID = uuid.New().String() }
        ids[i] = deliveries[i].ID
        docs[i] = deliveries[i]
    }
    return p.upsertDocs(ctx, "deliveries", tenantID, ids, docs)
}

func (p *Postgres) ListDeliveries(ctx context.Context, tenantID string, ids []string) ([]model.Delivery, error) {
    out := []model.Delivery{}
    err := p.listDocs(ctx, "deliveries", tenantID, ids, func(doc []byte) error {
        var d model.Delivery
        if err := json.Unmarshal(doc, &d); err != nil { return err }
        out = append(out, d)
        return nil
    })
    return out, err
}

func (p *Postgres) UpsertZones(ctx context.Context, tenantID string, zones []model.Zone) (int, error) {
    ids := make([]string, len(zones))
    docs := make([]any, len(zones))
    for i := range zones {
        if zones[i].ID == "" { zones[i].ID = uuid.New().String() }
        ids[i] = zones[i].ID
        docs[i] = zones[i]
    }
    return p.upsertDocs(ctx, "zones", tenantID, ids, docs)
}

func (p *Postgres) ListZones(ctx context.Context, tenantID string) ([]model.Zone, error) {
    out := []model.Zone{}
    err := p.listDocs(ctx, "zones", tenantID, nil, func(doc []byte) error {
        var z model.Zone
        if err := json.Unmarshal(doc, &z); err != nil { return err }
        out = append(out, z)
        return nil
    })
    return out, err
}

func (p *Postgres) SavePlan(ctx context.Context, plan Plan) (string, error) {
    if plan.ID == "" { plan.ID = uuid.New().String() }
    if plan.CreatedAt.IsZero() { plan.CreatedAt = time.Now().UTC() }
    doc, err := json.Marshal(plan.Result)
    if err != nil { return "", err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO plans (id, tenant_id, plan_date, created_at, result) VALUES ($1,$2,$3,$4,$5)`,
        plan.ID, plan.TenantID, plan.PlanDate, plan.CreatedAt, doc)
    if err != nil { return "", err }
    return plan.ID, nil
}

func (p *Postgres) GetPlan(ctx context.Context, tenantID, planID string) (Plan, error) {
    var plan Plan
    var doc []byte
    err := p.db.QueryRowContext(ctx, `SELECT id, tenant_id, plan_date, created_at, result FROM plans WHERE tenant_id=$1 AND id=$2`,
        tenantID, planID).Scan(&plan.ID, &plan.TenantID, &plan.PlanDate, &plan.CreatedAt, &doc)
    if errors.Is(err, sql.ErrNoRows) { return Plan{}, ErrNotFound }
    if err != nil { return Plan{}, err }
    if err := json.Unmarshal(doc, &plan.Result); err != nil { return Plan{}, err }
    return plan, nil
}

func (p *Postgres) ListPlans(ctx context.Context, tenantID, planDate, cursor string, limit int) ([]Plan, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if planDate != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id, tenant_id, plan_date, created_at, result FROM plans
            WHERE tenant_id=$1 AND plan_date=$2 AND id::text > $3 ORDER BY id LIMIT $4`, tenantID, planDate, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id, tenant_id, plan_date, created_at, result FROM plans
            WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []Plan{}
    var last string
    for rows.Next() {
        var plan Plan
        var doc []byte
        if err := rows.Scan(&plan.ID, &plan.TenantID, &plan.PlanDate, &plan.CreatedAt, &doc); err != nil { return nil, "", err }
        if err := json.Unmarshal(doc, &plan.Result); err != nil { return nil, "", err }
        out = append(out, plan)
        last = plan.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    events, err := json.Marshal(req.Events)
    if err != nil { return model.Subscription{}, err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`,
        id, req.TenantID, req.URL, events, req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions WHERE tenant_id=$1 AND events @> to_jsonb(ARRAY[$2::text])`,
        tenantID, eventType)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil { return nil, err }
        if err := json.Unmarshal(events, &s.Events); err != nil { return nil, err }
        s.TenantID = tenantID
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT id, url, events, secret FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`,
        tenantID, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    var last string
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil { return nil, "", err }
        if err := json.Unmarshal(events, &s.Events); err != nil { return nil, "", err }
        s.TenantID = tenantID
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries
        (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now())`,
        id, tenantID, subscriptionID, eventType, url, secret, payload)
    if err != nil { return "", err }
    return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 { limit = 50 }
    rows, err := p.db.QueryContext(ctx, `SELECT id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now()
        ORDER BY next_attempt_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if success {
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='delivered', attempts=attempts+1,
            response_code=$2, latency_ms=$3, delivered_at=now() WHERE id=$1`, id, responseCode, latencyMs)
        return err
    }
    next := time.Now().Add(1 * time.Minute)
    if nextAttemptAt != nil { next = *nextAttemptAt }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='retry', attempts=attempts+1,
        last_error=$2, response_code=$3, latency_ms=$4, next_attempt_at=$5 WHERE id=$1`,
        id, lastError, responseCode, latencyMs, next)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, response_code=$3, latency_ms=$4 WHERE id=$1`,
        id, lastError, responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if status != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT id, event_type, status, attempts, url, next_attempt_at, last_error FROM webhook_deliveries
            WHERE tenant_id=$1 AND status=$2 AND id::text > $3 ORDER BY id LIMIT $4`, tenantID, status, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id, event_type, status, attempts, url, next_attempt_at, last_error FROM webhook_deliveries
            WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, eventType, st, url string
        var attempts int
        var nextAt sql.NullTime
        var lastErr sql.NullString
        if err := rows.Scan(&id, &eventType, &st, &attempts, &url, &nextAt, &lastErr); err != nil { return nil, "", err }
        item := map[string]any{"id": id, "eventType": eventType, "status": st, "attempts": attempts, "url": url}
        if nextAt.Valid { item["nextAttemptAt"] = nextAt.Time }
        if lastErr.Valid && lastErr.String != "" { item["lastError"] = lastErr.String }
        out = append(out, item)
        last = id
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, rows.Err()
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) SavePlanMetrics(ctx context.Context, tenantID, planDate, algo string, metrics map[string]any) error {
    doc, err := json.Marshal(metrics)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO plan_metrics (tenant_id, plan_date, algo, metrics, updated_at) VALUES ($1,$2,$3,$4,now())
        ON CONFLICT (tenant_id, plan_date, algo) DO UPDATE SET metrics=EXCLUDED.metrics, updated_at=now()`,
        tenantID, planDate, algo, doc)
    return err
}

func (p *Postgres) ListPlanMetrics(ctx context.Context, tenantID, planDate, algo string) ([]map[string]any, error) {
    var rows *sql.Rows
    var err error
    if algo != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT algo, metrics FROM plan_metrics WHERE tenant_id=$1 AND plan_date=$2 AND algo=$3`, tenantID, planDate, algo)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT algo, metrics FROM plan_metrics WHERE tenant_id=$1 AND plan_date=$2 ORDER BY algo`, tenantID, planDate)
    }
    if err != nil { return nil, err }
    defer rows.Close()
    out := []map[string]any{}
    for rows.Next() {
        var a string
        var doc []byte
        if err := rows.Scan(&a, &doc); err != nil { return nil, err }
        item := map[string]any{}
        if err := json.Unmarshal(doc, &item); err != nil { return nil, err }
        item["algo"] = a
        out = append(out, item)
    }
    return out, rows.Err()
}
