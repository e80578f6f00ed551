package opt

import (
	"fmt"
	"math"

	"routeguard/internal/model"
)

// Urban average used when a provider duration is unavailable.
const fallbackSpeedKph = 30.0

// Matrix pairs a provider DistanceMatrix with its location ordering and
// falls back to haversine estimates for unindexed points, so a partial
// provider outage degrades the plan instead of aborting it.
type Matrix struct {
	data  model.DistanceMatrix
	index map[string]int
}

// NewMatrix wraps a provider matrix. locations must follow the same
// ordering the provider was called with.
func NewMatrix(locations []model.GeoPoint, data model.DistanceMatrix) *Matrix {
	idx := make(map[string]int, len(locations))
	for i, l := range locations {
		idx[pointKey(l)] = i
	}
	return &Matrix{data: data, index: idx}
}

// HaversineMatrix builds a matrix purely from great-circle estimates.
func HaversineMatrix(locations []model.GeoPoint) *Matrix {
	n := len(locations)
	dist := make([][]float64, n)
	dur := make([][]float64, n)
	for i := 0; i < n; i++ {
		dist[i] = make([]float64, n)
		dur[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			km := haversineKm(locations[i], locations[j])
			dist[i][j] = km
			dur[i][j] = km / fallbackSpeedKph * 60
		}
	}
	return NewMatrix(locations, model.DistanceMatrix{DistanceKm: dist, DurationMin: dur})
}

// Dist returns distance (km) and duration (minutes) from a to b.
func (m *Matrix) Dist(a, b model.GeoPoint) (float64, float64) {
	if m != nil {
		i, iok := m.index[pointKey(a)]
		j, jok := m.index[pointKey(b)]
		if iok && jok && i < len(m.data.DistanceKm) && j < len(m.data.DistanceKm[i]) {
			return m.data.DistanceKm[i][j], m.data.DurationMin[i][j]
		}
	}
	km := haversineKm(a, b)
	return km, km / fallbackSpeedKph * 60
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b model.GeoPoint) float64 { return haversineKm(a, b) }

func pointKey(p model.GeoPoint) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

func haversineKm(a, b model.GeoPoint) float64 {
	const R = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}
