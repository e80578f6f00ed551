package store

import (
    "context"
    "errors"
    "time"

    "routeguard/internal/model"
)

// Plan is a persisted optimization result for audit and re-validation.
type Plan struct {
    ID        string                      `json:"id"`
    TenantID  string                      `json:"tenantId"`
    PlanDate  string                      `json:"planDate"`
    CreatedAt time.Time                   `json:"createdAt"`
    Result    model.RouteAssignmentResult `json:"result"`
}

// Store is the persistence interface used by the API server.
type Store interface {
    // Fleet snapshots
    UpsertVehicles(ctx context.Context, tenantID string, vehicles []model.Vehicle) (int, error)
    ListVehicles(ctx context.Context, tenantID string, ids []string) ([]model.Vehicle, error)
    UpsertDeliveries(ctx context.Context, tenantID string, deliveries []model.Delivery) (int, error)
    ListDeliveries(ctx context.Context, tenantID string, ids []string) ([]model.Delivery, error)
    UpsertZones(ctx context.Context, tenantID string, zones []model.Zone) (int, error)
    ListZones(ctx context.Context, tenantID string) ([]model.Zone, error)

    // Plans
    SavePlan(ctx context.Context, plan Plan) (string, error)
    GetPlan(ctx context.Context, tenantID, planID string) (Plan, error)
    ListPlans(ctx context.Context, tenantID, planDate, cursor string, limit int) ([]Plan, string, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

    // Plan metrics for admin views
    SavePlanMetrics(ctx context.Context, tenantID, planDate, algo string, metrics map[string]any) error
    ListPlanMetrics(ctx context.Context, tenantID, planDate, algo string) ([]map[string]any, error)
}

var ErrNotFound = errors.New("not found")
