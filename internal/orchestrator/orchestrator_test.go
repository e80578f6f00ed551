package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"routeguard/internal/compliance"
	"routeguard/internal/model"
	"routeguard/internal/opt"
	"routeguard/internal/solver"
)

type fakeOptimizer struct {
	resp  *solver.Response
	err   error
	delay time.Duration
}

func (f *fakeOptimizer) Optimize(ctx context.Context, _ solver.Request) (*solver.Response, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func electricVan(id string, lng float64) model.Vehicle {
	return model.Vehicle{
		ID:             id,
		PlateNumber:    "DL01EV1002",
		Class:          model.ClassElectric,
		Capacity:       model.Capacity{WeightKg: 1000, VolumeM3: 10},
		Location:       model.GeoPoint{Lat: 0, Lng: lng},
		Status:         model.StatusAvailable,
		FuelType:       model.FuelElectric,
		PollutionClass: model.PollutionElectric,
		Access:         model.AccessPrivileges{Residential: true, Commercial: true, Industrial: true},
	}
}

func testDelivery(id string, pickupLng, dropLng float64) model.Delivery {
	return model.Delivery{
		ID:       id,
		Pickup:   model.GeoPoint{Lat: 0, Lng: pickupLng},
		Dropoff:  model.GeoPoint{Lat: 0, Lng: dropLng},
		Shipment: model.Shipment{WeightKg: 100, VolumeM3: 1},
		Priority: model.PriorityMedium,
	}
}

func testWindow() model.TimeWindow {
	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	return model.TimeWindow{Start: start, End: start.Add(8 * time.Hour)}
}

func newTestOrchestrator(primary solver.Optimizer) *Orchestrator {
	eval := compliance.NewEvaluator(compliance.DefaultRules())
	return New(eval, opt.NewEngine(eval, nil), primary)
}

func TestFallbackWhenNoPrimaryConfigured(t *testing.T) {
	o := newTestOrchestrator(nil)
	var events []string
	o.Notify = func(event string, _ map[string]any) { events = append(events, event) }

	res, err := o.OptimizeRoutes(context.Background(), Input{
		Vehicles:   []model.Vehicle{electricVan("v1", 0)},
		Deliveries: []model.Delivery{testDelivery("d1", 0.1, 0.2)},
		Window:     testWindow(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.AlgorithmUsed != string(opt.AlgorithmNearestNeighbor) {
		t.Fatalf("expected nearest-neighbor fallback, got %s", res.AlgorithmUsed)
	}
	if !res.Feasible || len(res.UnassignedDeliveries) != 0 {
		t.Fatalf("expected a full plan, got %+v", res)
	}
	for _, e := range events {
		if e == "fallback.engaged" {
			t.Fatal("no fallback event without a configured primary")
		}
	}
	for _, rt := range res.Routes {
		if rt.ID == "" {
			t.Fatal("routes should be assigned ids")
		}
	}
}

func TestFallbackOnPrimaryError(t *testing.T) {
	o := newTestOrchestrator(&fakeOptimizer{err: errors.New("boom")})
	var events []string
	o.Notify = func(event string, _ map[string]any) { events = append(events, event) }

	res, err := o.OptimizeRoutes(context.Background(), Input{
		Vehicles:   []model.Vehicle{electricVan("v1", 0)},
		Deliveries: []model.Delivery{testDelivery("d1", 0.1, 0.2)},
		Window:     testWindow(),
		Algorithm:  opt.AlgorithmGreedy,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.AlgorithmUsed != string(opt.AlgorithmGreedy) {
		t.Fatalf("expected greedy fallback, got %s", res.AlgorithmUsed)
	}
	if len(events) == 0 || events[0] != "fallback.engaged" {
		t.Fatalf("expected fallback.engaged, got %v", events)
	}
}

func TestFallbackOnPrimaryTimeout(t *testing.T) {
	o := newTestOrchestrator(&fakeOptimizer{delay: 500 * time.Millisecond, resp: &solver.Response{}})

	start := time.Now()
	res, err := o.OptimizeRoutes(context.Background(), Input{
		Vehicles:   []model.Vehicle{electricVan("v1", 0)},
		Deliveries: []model.Delivery{testDelivery("d1", 0.1, 0.2)},
		Window:     testWindow(),
		Deadline:   20 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("deadline was not enforced, took %v", elapsed)
	}
	if res.AlgorithmUsed == AlgorithmPrimary {
		t.Fatal("timed-out primary must not win")
	}
}

func TestPrimaryResultUsed(t *testing.T) {
	w := testWindow()
	primary := &fakeOptimizer{resp: &solver.Response{
		Routes: []model.Route{{
			VehicleID:   "v1",
			Status:      model.RoutePlanned,
			Stops:       []model.Stop{{Location: model.GeoPoint{Lat: 0, Lng: 0.1}, Type: model.StopDelivery, DeliveryID: "d1"}},
			DeliveryIDs: []string{"d1"},
			DistanceKm:  12,
		}},
		TotalDistanceKm:  12,
		TotalDurationMin: 24,
	}}
	o := newTestOrchestrator(primary)

	res, err := o.OptimizeRoutes(context.Background(), Input{
		Vehicles:   []model.Vehicle{electricVan("v1", 0)},
		Deliveries: []model.Delivery{testDelivery("d1", 0.1, 0.2)},
		Window:     w,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.AlgorithmUsed != AlgorithmPrimary {
		t.Fatalf("expected the primary plan, got %s", res.AlgorithmUsed)
	}
	if !res.Feasible || len(res.Routes) != 1 || res.Routes[0].ID == "" {
		t.Fatalf("unexpected plan: %+v", res)
	}
}

func TestPrimaryPlanRejectedWhenValidatorEmptiesIt(t *testing.T) {
	// The primary assigns a diesel vehicle whose plate parity is illegal
	// on the plan date. The probe strips the only route, so the plan is
	// treated as a rejection and the heuristics take over.
	start := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC) // even day
	w := model.TimeWindow{Start: start, End: start.Add(8 * time.Hour)}
	banned := electricVan("v_banned", 0)
	banned.Class = model.ClassTruck
	banned.FuelType = model.FuelDiesel
	banned.PollutionClass = model.PollutionBS6
	banned.PlateNumber = "DL01AB1357" // odd plate

	clean := electricVan("v_clean", 0)

	primary := &fakeOptimizer{resp: &solver.Response{
		Routes: []model.Route{{
			VehicleID:   "v_banned",
			Stops:       []model.Stop{{Type: model.StopDelivery, DeliveryID: "d1"}},
			DeliveryIDs: []string{"d1"},
		}},
	}}
	o := newTestOrchestrator(primary)

	res, err := o.OptimizeRoutes(context.Background(), Input{
		Vehicles:   []model.Vehicle{banned, clean},
		Deliveries: []model.Delivery{testDelivery("d1", 0.1, 0.2)},
		Window:     w,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.AlgorithmUsed == AlgorithmPrimary {
		t.Fatal("an emptied primary plan must fall through to the heuristics")
	}
	if len(res.Routes) != 1 || res.Routes[0].VehicleID != "v_clean" {
		t.Fatalf("fallback should use the compliant vehicle, got %+v", res.Routes)
	}
}

func TestValidationStripsViolatingRoute(t *testing.T) {
	// Compliance checks disabled at assignment time, so the fallback
	// happily uses the illegal vehicle; re-validation must strip it.
	start := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC) // even day
	w := model.TimeWindow{Start: start, End: start.Add(8 * time.Hour)}
	banned := electricVan("v1", 0)
	banned.Class = model.ClassTruck
	banned.FuelType = model.FuelDiesel
	banned.PlateNumber = "DL01AB1357"

	o := newTestOrchestrator(nil)
	var stripped []map[string]any
	o.Notify = func(event string, data map[string]any) {
		if event == "route.stripped" {
			stripped = append(stripped, data)
		}
	}

	res, err := o.OptimizeRoutes(context.Background(), Input{
		Vehicles:   []model.Vehicle{banned},
		Deliveries: []model.Delivery{testDelivery("d1", 0.1, 0.2)},
		Window:     w,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Routes) != 0 {
		t.Fatalf("violating route should be stripped, got %+v", res.Routes)
	}
	if res.Feasible {
		t.Fatal("a stripped plan is not feasible")
	}
	if len(res.UnassignedDeliveries) != 1 || res.UnassignedDeliveries[0] != "d1" {
		t.Fatalf("stripped deliveries must move to unassigned, got %v", res.UnassignedDeliveries)
	}
	if res.TotalDistanceKm != 0 {
		t.Fatalf("totals should shrink with the stripped route, got %v", res.TotalDistanceKm)
	}
	if len(stripped) != 1 || stripped[0]["vehicleId"] != "v1" {
		t.Fatalf("expected one route.stripped event, got %v", stripped)
	}
}

func TestValidationErrors(t *testing.T) {
	o := newTestOrchestrator(nil)
	cases := []Input{
		{Window: model.TimeWindow{Start: time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}},
		{Vehicles: []model.Vehicle{{ID: "v1", Capacity: model.Capacity{WeightKg: -1}}}},
		{Deliveries: []model.Delivery{{ID: "d1"}}},
		{Deliveries: []model.Delivery{{ID: "d1", Pickup: model.GeoPoint{Lat: 1}, Shipment: model.Shipment{WeightKg: -5}}}},
	}
	for i, in := range cases {
		_, err := o.OptimizeRoutes(context.Background(), in)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("case %d: expected ValidationError, got %v", i, err)
		}
	}
}

func TestEfficiencyAgainstNaiveBaseline(t *testing.T) {
	// One vehicle chains two deliveries; the naive baseline dispatches a
	// fresh vehicle from the depot for each, so chaining must win.
	vehicles := []model.Vehicle{electricVan("v1", 0)}
	deliveries := []model.Delivery{
		testDelivery("d1", 1, 2),
		testDelivery("d2", 2, 3),
	}
	points := []model.GeoPoint{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 0, Lng: 2}, {Lat: 0, Lng: 3}}
	o := newTestOrchestrator(nil)

	res, err := o.OptimizeRoutes(context.Background(), Input{
		Vehicles:   vehicles,
		Deliveries: deliveries,
		Window:     testWindow(),
		Matrix:     opt.HaversineMatrix(points),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.EfficiencyImprovement <= 0.3 || res.EfficiencyImprovement >= 1 {
		t.Fatalf("expected ~0.4 improvement over the baseline, got %v", res.EfficiencyImprovement)
	}
}

func TestCompliantVehiclesOrderedFirst(t *testing.T) {
	start := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC) // even day
	w := model.TimeWindow{Start: start, End: start.Add(8 * time.Hour)}

	banned := electricVan("v_banned", 0)
	banned.Class = model.ClassTruck
	banned.FuelType = model.FuelDiesel
	banned.PlateNumber = "DL01AB1357"
	clean := electricVan("v_clean", 0.05)

	o := newTestOrchestrator(nil)
	res, err := o.OptimizeRoutes(context.Background(), Input{
		Vehicles:   []model.Vehicle{banned, clean}, // banned listed first
		Deliveries: []model.Delivery{testDelivery("d1", 0.1, 0.2)},
		Window:     w,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Routes) != 1 || res.Routes[0].VehicleID != "v_clean" {
		t.Fatalf("pre-filter should try the compliant vehicle first, got %+v", res.Routes)
	}
	if !res.Feasible {
		t.Fatalf("plan should survive validation, got %+v", res)
	}
}
