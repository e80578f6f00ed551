// Package cache memoizes route plan results for identical requests over
// a short horizon. Entries are last-writer-wins; staleness is bounded by
// the TTL rather than by invalidation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"routeguard/internal/model"
)

const DefaultTTL = 30 * time.Second

// PlanCache stores assignment results keyed by a request fingerprint.
type PlanCache interface {
	Get(ctx context.Context, key string) (*model.RouteAssignmentResult, bool)
	Set(ctx context.Context, key string, res model.RouteAssignmentResult)
}

// Key fingerprints the parts of a request that determine the plan:
// vehicle pool, delivery set, window, algorithm and flags. Slices are
// sorted so ordering differences hash identically.
func Key(tenantID string, req model.OptimizeRequest) string {
	vids := append([]string{}, req.VehicleIDs...)
	dids := append([]string{}, req.DeliveryIDs...)
	sort.Strings(vids)
	sort.Strings(dids)
	payload, _ := json.Marshal(struct {
		Tenant     string           `json:"t"`
		PlanDate   string           `json:"pd"`
		Algorithm  string           `json:"a"`
		Window     model.TimeWindow `json:"w"`
		Vehicles   []string         `json:"v"`
		Deliveries []string         `json:"d"`
		Compliance bool             `json:"c"`
		Capacity   bool             `json:"cap"`
		Partial    bool             `json:"p"`
	}{tenantID, req.PlanDate, req.Algorithm, req.Window, vids, dids,
		req.ConsiderComplianceRules, req.PrioritizeByCapacity, req.AllowPartialAssignment})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	res     model.RouteAssignmentResult
	expires time.Time
}

// Memory is the single-process cache used when REDIS_URL is unset.
type Memory struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]memoryEntry
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, m: map[string]memoryEntry{}}
}

func (c *Memory) Get(_ context.Context, key string) (*model.RouteAssignmentResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || time.Now().After(e.expires) {
		delete(c.m, key)
		return nil, false
	}
	res := e.res
	return &res, true
}

func (c *Memory) Set(_ context.Context, key string, res model.RouteAssignmentResult) {
	c.mu.Lock()
	c.m[key] = memoryEntry{res: res, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
