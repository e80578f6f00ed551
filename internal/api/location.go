package api

import (
	"sync"
)

// LatestLocation holds the latest reported position for a vehicle.
type LatestLocation struct {
	Tenant    string  `json:"tenantId"`
	VehicleID string  `json:"vehicleId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	TS        string  `json:"ts"`
}

// LocationCache stores latest vehicle positions per tenant. Plans use
// these as route start points when fresher than the stored snapshot.
type LocationCache struct {
	mu sync.Mutex
	// key: tenant|vehicleId
	m map[string]LatestLocation
}

// NewLocationCache constructs a LocationCache.
func NewLocationCache() *LocationCache { return &LocationCache{m: map[string]LatestLocation{}} }

func (c *LocationCache) key(tenant, vehicleID string) string {
	return tenant + "|" + vehicleID
}

// Upsert stores or updates the latest position for a vehicle.
func (c *LocationCache) Upsert(tenant, vehicleID string, lat, lng float64, ts string) {
	if tenant == "" || vehicleID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[c.key(tenant, vehicleID)] = LatestLocation{Tenant: tenant, VehicleID: vehicleID, Lat: lat, Lng: lng, TS: ts}
}

// Get returns the latest position for a vehicle, if reported.
func (c *LocationCache) Get(tenant, vehicleID string) (LatestLocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.m[c.key(tenant, vehicleID)]
	return l, ok
}

// ListByTenant returns the latest positions for all reporting vehicles.
func (c *LocationCache) ListByTenant(tenant string) []LatestLocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []LatestLocation{}
	prefix := tenant + "|"
	for k, v := range c.m {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, v)
		}
	}
	return out
}
