// Package orchestrator decides between the primary external optimizer and
// the local fallback heuristics, enforces the latency budget, and
// validates whatever plan comes back before it reaches the caller.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"routeguard/internal/compliance"
	"routeguard/internal/model"
	"routeguard/internal/opt"
	"routeguard/internal/solver"
)

const DefaultDeadline = 5 * time.Second

// AlgorithmPrimary labels results produced by the external solver.
const AlgorithmPrimary = "primary"

// ValidationError rejects malformed input before any algorithm runs.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

type Input struct {
	Vehicles   []model.Vehicle
	Deliveries []model.Delivery
	Hubs       []model.GeoPoint
	Window     model.TimeWindow
	Matrix     *opt.Matrix
	Algorithm  opt.Algorithm // fallback algorithm; empty means nearest-neighbor
	Deadline   time.Duration // primary optimizer budget; 0 means DefaultDeadline
	Options    opt.Options
}

type Orchestrator struct {
	Eval     *compliance.Evaluator
	Analyzer *compliance.Analyzer
	Engine   *opt.Engine
	Primary  solver.Optimizer

	// Notify, when set, receives pipeline events ("fallback.engaged",
	// "route.stripped") as they happen. Calls are synchronous.
	Notify func(event string, data map[string]any)
}

func (o *Orchestrator) notify(event string, data map[string]any) {
	if o.Notify != nil {
		o.Notify(event, data)
	}
}

func New(eval *compliance.Evaluator, engine *opt.Engine, primary solver.Optimizer) *Orchestrator {
	return &Orchestrator{
		Eval:     eval,
		Analyzer: compliance.NewAnalyzer(eval),
		Engine:   engine,
		Primary:  primary,
	}
}

// OptimizeRoutes runs the full request lifecycle: validate, pre-filter,
// primary attempt under deadline, fallback, re-validation. The result
// shape is uniform regardless of which path produced it.
func (o *Orchestrator) OptimizeRoutes(ctx context.Context, in Input) (model.RouteAssignmentResult, error) {
	if err := validate(in); err != nil {
		return model.RouteAssignmentResult{}, err
	}
	if in.Options.At.IsZero() {
		in.Options.At = in.Window.Start
	}

	// Pre-filter shapes fallback ordering only: compliance is per-route,
	// so fully violated vehicles still pass through the pool.
	vehicles := o.orderByCompliance(in)

	res, usedPrimary := o.tryPrimary(ctx, in)
	if !usedPrimary {
		if o.Primary != nil {
			o.notify("fallback.engaged", map[string]any{"algorithm": string(in.Algorithm)})
		}
		fb, err := o.Engine.Run(in.Algorithm, vehicles, in.Deliveries, in.Matrix, in.Options)
		if err != nil {
			return model.RouteAssignmentResult{}, err
		}
		res = fb
	}

	o.validatePlan(&res, in, true)
	for i := range res.Routes {
		if res.Routes[i].ID == "" {
			res.Routes[i].ID = uuid.New().String()
		}
	}
	res.EfficiencyImprovement = o.efficiency(res, in)
	return res, nil
}

// tryPrimary races the external optimizer against the deadline. On
// timeout the in-flight call is abandoned (the buffered channel lets the
// goroutine finish and be collected) and control returns immediately.
func (o *Orchestrator) tryPrimary(ctx context.Context, in Input) (model.RouteAssignmentResult, bool) {
	if o.Primary == nil {
		return model.RouteAssignmentResult{}, false
	}
	deadline := in.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		resp *solver.Response
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		resp, err := o.Primary.Optimize(cctx, solver.Request{
			Vehicles:   in.Vehicles,
			Deliveries: in.Deliveries,
			Hubs:       in.Hubs,
			Window:     in.Window,
		})
		ch <- outcome{resp: resp, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil || out.resp == nil {
			return model.RouteAssignmentResult{}, false
		}
		res := model.RouteAssignmentResult{
			Feasible:             len(out.resp.UnassignedDeliveries) == 0,
			Routes:               out.resp.Routes,
			UnassignedDeliveries: append([]string{}, out.resp.UnassignedDeliveries...),
			TotalDistanceKm:      out.resp.TotalDistanceKm,
			TotalDurationMin:     out.resp.TotalDurationMin,
			AlgorithmUsed:        AlgorithmPrimary,
		}
		if res.UnassignedDeliveries == nil {
			res.UnassignedDeliveries = []string{}
		}
		// A plan the validator empties out entirely counts as a rejected
		// response and falls through to the heuristics.
		probe := res
		o.validatePlan(&probe, in, false)
		if len(probe.Routes) == 0 && len(in.Deliveries) > 0 {
			return model.RouteAssignmentResult{}, false
		}
		return res, true
	case <-cctx.Done():
		return model.RouteAssignmentResult{}, false
	}
}

// validatePlan re-checks every route at its actual planned stop times.
// Routes that fail are stripped and their deliveries moved to the
// unassigned list, never silently kept.
func (o *Orchestrator) validatePlan(res *model.RouteAssignmentResult, in Input, announce bool) {
	byID := map[string]model.Vehicle{}
	for _, v := range in.Vehicles {
		byID[v.ID] = v
	}
	kept := res.Routes[:0]
	for _, rt := range res.Routes {
		v, ok := byID[rt.VehicleID]
		if ok && o.routeCompliant(v, rt, in.Options.At) {
			kept = append(kept, rt)
			continue
		}
		res.UnassignedDeliveries = append(res.UnassignedDeliveries, rt.DeliveryIDs...)
		res.TotalDistanceKm -= rt.DistanceKm
		res.TotalDurationMin -= rt.DurationMin
		res.Feasible = false
		if announce {
			o.notify("route.stripped", map[string]any{"vehicleId": rt.VehicleID, "deliveryIds": rt.DeliveryIDs})
		}
	}
	res.Routes = kept
	if res.Routes == nil {
		res.Routes = []model.Route{}
	}
}

func (o *Orchestrator) routeCompliant(v model.Vehicle, rt model.Route, fallback time.Time) bool {
	for _, s := range rt.Stops {
		at := s.ETA
		if at.IsZero() {
			at = fallback
		}
		if !o.Eval.Evaluate(v, []model.Stop{s}, at).IsCompliant {
			return false
		}
	}
	return true
}

// orderByCompliance counts compliant pickup/delivery pairs per vehicle and
// sorts the pool so cleaner vehicles are tried first by the heuristics.
func (o *Orchestrator) orderByCompliance(in Input) []model.Vehicle {
	scores := make(map[string]int, len(in.Vehicles))
	for _, d := range in.Deliveries {
		pair := deliveryStops(d, o.Engine.Zones)
		an := o.Analyzer.Analyze(in.Vehicles, pair, in.Options.At)
		for _, id := range an.CompliantVehicles {
			scores[id]++
		}
	}
	out := append([]model.Vehicle{}, in.Vehicles...)
	sort.SliceStable(out, func(a, b int) bool {
		return scores[out[a].ID] > scores[out[b].ID]
	})
	return out
}

func deliveryStops(d model.Delivery, zones map[string]model.Zone) []model.Stop {
	w := d.Window
	pickup := model.Stop{Location: d.Pickup, Type: model.StopPickup, DeliveryID: d.ID, Window: &w}
	drop := model.Stop{Location: d.Dropoff, Type: model.StopDelivery, DeliveryID: d.ID, Window: &w}
	if z, ok := zones[d.PickupZoneID]; ok {
		zc := z
		pickup.Zone = &zc
	}
	if z, ok := zones[d.DropoffZoneID]; ok {
		zc := z
		drop.Zone = &zc
	}
	return []model.Stop{pickup, drop}
}

// efficiency compares the plan against a naive one-vehicle-per-delivery
// baseline; positive values mean the plan saves distance.
func (o *Orchestrator) efficiency(res model.RouteAssignmentResult, in Input) float64 {
	if len(res.Routes) == 0 || in.Matrix == nil {
		return 0
	}
	baseline := 0.0
	for _, d := range in.Deliveries {
		best := -1.0
		for _, v := range in.Vehicles {
			toPickup, _ := in.Matrix.Dist(v.Location, d.Pickup)
			leg, _ := in.Matrix.Dist(d.Pickup, d.Dropoff)
			if best < 0 || toPickup+leg < best {
				best = toPickup + leg
			}
		}
		if best > 0 {
			baseline += best
		}
	}
	if baseline <= 0 {
		return 0
	}
	return (baseline - res.TotalDistanceKm) / baseline
}

func validate(in Input) error {
	if !in.Window.Start.IsZero() && !in.Window.End.IsZero() && in.Window.End.Before(in.Window.Start) {
		return &ValidationError{Msg: "time window end before start"}
	}
	for _, v := range in.Vehicles {
		if v.Capacity.WeightKg < 0 || v.Capacity.VolumeM3 < 0 {
			return &ValidationError{Msg: fmt.Sprintf("vehicle %s has negative capacity", v.ID)}
		}
	}
	for _, d := range in.Deliveries {
		if d.Pickup == (model.GeoPoint{}) && d.Dropoff == (model.GeoPoint{}) {
			return &ValidationError{Msg: fmt.Sprintf("delivery %s has no locations", d.ID)}
		}
		if d.Shipment.WeightKg < 0 || d.Shipment.VolumeM3 < 0 {
			return &ValidationError{Msg: fmt.Sprintf("delivery %s has negative shipment size", d.ID)}
		}
		if !d.Window.Start.IsZero() && !d.Window.End.IsZero() && d.Window.End.Before(d.Window.Start) {
			return &ValidationError{Msg: fmt.Sprintf("delivery %s window end before start", d.ID)}
		}
	}
	return nil
}
