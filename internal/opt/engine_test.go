package opt

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"routeguard/internal/compliance"
	"routeguard/internal/model"
)

func van(id string, lng float64) model.Vehicle {
	return model.Vehicle{
		ID:             id,
		PlateNumber:    "DL01" + id + "1357",
		Class:          model.ClassVan,
		Capacity:       model.Capacity{WeightKg: 1000, VolumeM3: 10},
		Location:       model.GeoPoint{Lat: 0, Lng: lng},
		Status:         model.StatusAvailable,
		FuelType:       model.FuelDiesel,
		PollutionClass: model.PollutionBS6,
		Access:         model.AccessPrivileges{Residential: true, Commercial: true, Industrial: true},
	}
}

func delivery(id string, pickupLng, dropLng, weight float64) model.Delivery {
	return model.Delivery{
		ID:       id,
		Pickup:   model.GeoPoint{Lat: 0, Lng: pickupLng},
		Dropoff:  model.GeoPoint{Lat: 0, Lng: dropLng},
		Shipment: model.Shipment{WeightKg: weight, VolumeM3: 1},
		Priority: model.PriorityMedium,
	}
}

func testEngine() *Engine {
	return NewEngine(compliance.NewEvaluator(compliance.DefaultRules()), nil)
}

func TestNearestNeighborVisitsClosestFirst(t *testing.T) {
	e := testEngine()
	vehicles := []model.Vehicle{van("v1", 0)}
	deliveries := []model.Delivery{
		delivery("d_far", 0.5, 0.6, 100),
		delivery("d_near", 0.1, 0.2, 100),
	}

	res := e.NearestNeighbor(vehicles, deliveries, nil, Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
	if len(res.Routes) != 1 {
		t.Fatalf("expected one route, got %d", len(res.Routes))
	}
	ids := res.Routes[0].DeliveryIDs
	if len(ids) != 2 || ids[0] != "d_near" || ids[1] != "d_far" {
		t.Fatalf("expected nearest pickup first, got %v", ids)
	}
	if !res.Feasible || len(res.UnassignedDeliveries) != 0 {
		t.Fatalf("full assignment should be feasible: %+v", res)
	}
	if res.TotalDistanceKm <= 0 || res.TotalDurationMin <= 0 {
		t.Fatalf("expected positive totals, got %+v", res)
	}
}

func TestNearestNeighborTieBreaksOnLowerID(t *testing.T) {
	e := testEngine()
	vehicles := []model.Vehicle{van("v1", 0)}
	// Identical pickups; the same distance twice must resolve to "a".
	deliveries := []model.Delivery{
		delivery("b", 0.2, 0.3, 100),
		delivery("a", 0.2, 0.3, 100),
	}
	res := e.NearestNeighbor(vehicles, deliveries, nil, Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
	if ids := res.Routes[0].DeliveryIDs; ids[0] != "a" {
		t.Fatalf("tie should break to the lower delivery id, got %v", ids)
	}
}

func TestNearestNeighborRespectsCapacity(t *testing.T) {
	e := testEngine()
	v := van("v1", 0)
	v.Capacity.WeightKg = 100
	deliveries := []model.Delivery{
		delivery("d1", 0.1, 0.2, 80),
		delivery("d2", 0.3, 0.4, 80),
	}

	res := e.NearestNeighbor([]model.Vehicle{v}, deliveries, nil, Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
	if len(res.Routes) != 1 || len(res.Routes[0].DeliveryIDs) != 1 {
		t.Fatalf("only one delivery fits, got %+v", res.Routes)
	}
	if len(res.UnassignedDeliveries) != 1 || res.UnassignedDeliveries[0] != "d2" {
		t.Fatalf("expected d2 unassigned, got %v", res.UnassignedDeliveries)
	}
	if res.Feasible {
		t.Fatal("partial assignment without the flag must not be feasible")
	}

	res = e.NearestNeighbor([]model.Vehicle{v}, deliveries, nil, Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), AllowPartialAssignment: true})
	if !res.Feasible {
		t.Fatal("partial assignment with the flag should be feasible")
	}
}

func TestNearestNeighborSkipsNonCompliantVehicle(t *testing.T) {
	e := testEngine()
	at := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC) // even day

	banned := van("v1", 0) // plate ends in 7, odd
	exempt := van("v2", 0)
	exempt.FuelType = model.FuelElectric
	deliveries := []model.Delivery{delivery("d1", 0.1, 0.2, 100)}

	res := e.NearestNeighbor([]model.Vehicle{banned, exempt}, deliveries, nil, Options{At: at, ConsiderComplianceRules: true})
	if len(res.Routes) != 1 || res.Routes[0].VehicleID != "v2" {
		t.Fatalf("delivery should land on the exempt vehicle, got %+v", res.Routes)
	}
}

func TestUnavailableVehiclesExcluded(t *testing.T) {
	e := testEngine()
	v := van("v1", 0)
	v.Status = model.StatusMaintenance
	res := e.NearestNeighbor([]model.Vehicle{v}, []model.Delivery{delivery("d1", 0.1, 0.2, 100)}, nil, Options{At: time.Now()})
	if len(res.Routes) != 0 || len(res.UnassignedDeliveries) != 1 {
		t.Fatalf("maintenance vehicle must not carry routes, got %+v", res)
	}
}

func TestGreedyOrdersUrgentAndHeavyFirst(t *testing.T) {
	e := testEngine()
	v := van("v1", 0)
	v.Capacity.WeightKg = 500
	// Only one fits. The urgent delivery appears last in input order but
	// must claim the capacity.
	deliveries := []model.Delivery{
		delivery("d_low", 0.1, 0.2, 400),
		delivery("d_urgent", 0.3, 0.4, 400),
	}
	deliveries[1].Priority = model.PriorityUrgent

	res := e.Greedy([]model.Vehicle{v}, deliveries, nil, Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
	if len(res.Routes) != 1 || res.Routes[0].DeliveryIDs[0] != "d_urgent" {
		t.Fatalf("urgent should be placed first, got %+v", res.Routes)
	}
	if len(res.UnassignedDeliveries) != 1 || res.UnassignedDeliveries[0] != "d_low" {
		t.Fatalf("expected d_low unassigned, got %v", res.UnassignedDeliveries)
	}
}

func TestGreedyHeavierFirstWithinPriority(t *testing.T) {
	e := testEngine()
	v := van("v1", 0)
	v.Capacity.WeightKg = 600
	deliveries := []model.Delivery{
		delivery("d_light", 0.1, 0.2, 200),
		delivery("d_heavy", 0.1, 0.2, 500),
	}
	res := e.Greedy([]model.Vehicle{v}, deliveries, nil, Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
	if res.Routes[0].DeliveryIDs[0] != "d_heavy" {
		t.Fatalf("heavier shipment should claim capacity first, got %+v", res.Routes)
	}
}

func TestGreedyPrioritizeByCapacityPicksTightestFit(t *testing.T) {
	e := testEngine()
	big := van("v_big", 0)
	big.Capacity.WeightKg = 2000
	small := van("v_small", 0)
	small.Capacity.WeightKg = 500

	deliveries := []model.Delivery{delivery("d1", 0.1, 0.2, 400)}
	res := e.Greedy([]model.Vehicle{big, small}, deliveries, nil, Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), PrioritizeByCapacity: true})
	if len(res.Routes) != 1 || res.Routes[0].VehicleID != "v_small" {
		t.Fatalf("tightest fitting vehicle should win, got %+v", res.Routes)
	}
}

func TestEmergencyPlacesUrgentBeforeLow(t *testing.T) {
	e := testEngine()
	v := van("v1", 0)
	v.Capacity.WeightKg = 500
	deliveries := []model.Delivery{
		delivery("d_low", 0.1, 0.2, 400),
		delivery("d_urgent", 2.0, 2.1, 400), // far away, still first
	}
	deliveries[1].Priority = model.PriorityUrgent

	res := e.Emergency([]model.Vehicle{v}, deliveries, nil, Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
	if len(res.Routes) != 1 || res.Routes[0].DeliveryIDs[0] != "d_urgent" {
		t.Fatalf("urgent must be placed regardless of distance, got %+v", res.Routes)
	}
	if res.AlgorithmUsed != string(AlgorithmEmergency) {
		t.Fatalf("unexpected algorithm label: %s", res.AlgorithmUsed)
	}
}

func TestConstructionIsDeterministic(t *testing.T) {
	e := testEngine()
	vehicles := []model.Vehicle{van("v1", 0), van("v2", 0.4)}
	deliveries := []model.Delivery{
		delivery("d1", 0.1, 0.2, 300),
		delivery("d2", 0.3, 0.4, 300),
		delivery("d3", 0.5, 0.6, 300),
		delivery("d4", 0.2, 0.1, 300),
	}
	deliveries[2].Priority = model.PriorityHigh
	opts := Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}

	for _, algo := range []Algorithm{AlgorithmNearestNeighbor, AlgorithmGreedy} {
		a, err := e.Run(algo, vehicles, deliveries, nil, opts)
		if err != nil {
			t.Fatal(err)
		}
		b, err := e.Run(algo, vehicles, deliveries, nil, opts)
		if err != nil {
			t.Fatal(err)
		}
		// Wall-clock fields aside, two runs over the same inputs must
		// agree exactly.
		a.ProcessingMs, b.ProcessingMs = 0, 0
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("%s produced different plans for identical inputs:\n%+v\n%+v", algo, a, b)
		}
	}
}

func TestEmergencyCompletesSubSecond(t *testing.T) {
	e := testEngine()
	vehicles := make([]model.Vehicle, 0, 20)
	for i := 0; i < 20; i++ {
		vehicles = append(vehicles, van(fmt.Sprintf("v%02d", i), float64(i)*0.05))
	}
	deliveries := make([]model.Delivery, 0, 200)
	for i := 0; i < 200; i++ {
		d := delivery(fmt.Sprintf("d%03d", i), float64(i%10)*0.1, float64(i%10)*0.1+0.05, 40)
		if i%4 == 0 {
			d.Priority = model.PriorityUrgent
		}
		deliveries = append(deliveries, d)
	}

	res := e.Emergency(vehicles, deliveries, nil, Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
	if res.ProcessingMs >= 1000 {
		t.Fatalf("emergency run took %dms, want under 1000ms", res.ProcessingMs)
	}
}

func TestRunDispatch(t *testing.T) {
	e := testEngine()
	vehicles := []model.Vehicle{van("v1", 0)}
	deliveries := []model.Delivery{delivery("d1", 0.1, 0.2, 100)}
	opts := Options{At: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}

	if res, err := e.Run("", vehicles, deliveries, nil, opts); err != nil || res.AlgorithmUsed != string(AlgorithmNearestNeighbor) {
		t.Fatalf("empty algorithm should run nearest-neighbor: %+v %v", res, err)
	}
	if _, err := e.Run("simulated_annealing", vehicles, deliveries, nil, opts); err == nil {
		t.Fatal("unknown algorithm should error")
	}
}

func TestRunEmptyInputsNotFeasible(t *testing.T) {
	e := testEngine()
	res, err := e.Run(AlgorithmNearestNeighbor, nil, nil, nil, Options{At: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Feasible || len(res.Routes) != 0 {
		t.Fatalf("empty inputs should yield an empty infeasible result, got %+v", res)
	}
}

func TestStopETAsAdvanceAlongRoute(t *testing.T) {
	e := testEngine()
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	res := e.NearestNeighbor([]model.Vehicle{van("v1", 0)}, []model.Delivery{delivery("d1", 0.1, 0.2, 100)}, nil, Options{At: at})
	stops := res.Routes[0].Stops
	if len(stops) != 2 {
		t.Fatalf("expected pickup and delivery stops, got %d", len(stops))
	}
	if !stops[0].ETA.After(at) || !stops[1].ETA.After(stops[0].ETA) {
		t.Fatalf("ETAs should advance monotonically: %v %v", stops[0].ETA, stops[1].ETA)
	}
}

func TestRunMetricsStoreLatestPerTenant(t *testing.T) {
	s := NewRunMetricsStore()
	s.Record("t1", "2024-01-15", "greedy", RunMetrics{Algorithm: "greedy", DistanceKm: 10})
	s.Record("t1", "2024-01-15", "greedy", RunMetrics{Algorithm: "greedy", DistanceKm: 12})
	s.Record("t1", "2024-01-15", "emergency", RunMetrics{Algorithm: "emergency"})
	s.Record("t2", "2024-01-15", "greedy", RunMetrics{Algorithm: "greedy"})

	got := s.Latest("t1", "2024-01-15")
	if len(got) != 2 {
		t.Fatalf("expected two algorithms for t1, got %+v", got)
	}
	if got["greedy"].DistanceKm != 12 {
		t.Fatalf("latest record should win, got %+v", got["greedy"])
	}
	if len(s.Latest("t2", "2024-01-16")) != 0 {
		t.Fatal("different date should be empty")
	}
}

func TestMatrixFallsBackToHaversine(t *testing.T) {
	a := model.GeoPoint{Lat: 0, Lng: 0}
	b := model.GeoPoint{Lat: 0, Lng: 1}
	m := HaversineMatrix([]model.GeoPoint{a, b})

	km, min := m.Dist(a, b)
	if km < 110 || km > 113 {
		t.Fatalf("one degree at the equator is ~111km, got %v", km)
	}
	if min <= 0 {
		t.Fatalf("duration should be positive, got %v", min)
	}

	// A point the provider never indexed estimates via haversine.
	c := model.GeoPoint{Lat: 0, Lng: 2}
	km2, _ := m.Dist(a, c)
	if km2 < 220 || km2 > 226 {
		t.Fatalf("unindexed pair should fall back to haversine, got %v", km2)
	}

	if km0, _ := m.Dist(a, a); km0 != 0 {
		t.Fatalf("self distance should be zero, got %v", km0)
	}
}
