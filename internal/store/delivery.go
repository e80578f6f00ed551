package store

// WebhookDelivery is one queued event notification attempt. The worker
// claims due rows, posts them and reschedules or dead-letters failures.
type WebhookDelivery struct {
    ID             string
    TenantID       string
    SubscriptionID string
    EventType      string
    URL            string
    Secret         string
    Payload        []byte
    Status         string
    Attempts       int
}
