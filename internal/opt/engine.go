// Package opt implements the fallback assignment heuristics used when the
// primary optimizer is unavailable or over budget. The algorithms are
// single-pass constructions: fast and feasible, never optimal.
package opt

import (
	"fmt"
	"time"

	"routeguard/internal/compliance"
	"routeguard/internal/model"
)

type Algorithm string

const (
	AlgorithmNearestNeighbor Algorithm = "nearest_neighbor"
	AlgorithmGreedy          Algorithm = "greedy"
	AlgorithmEmergency       Algorithm = "emergency"
)

type Options struct {
	At                      time.Time
	ConsiderComplianceRules bool
	PrioritizeByCapacity    bool
	AllowPartialAssignment  bool
}

// Engine runs a selected heuristic. Zones are read-only lookup data for
// compliance checks at assignment time; the engine never mutates inputs
// and independent calls share no state.
type Engine struct {
	Eval  *compliance.Evaluator
	Zones map[string]model.Zone
}

func NewEngine(eval *compliance.Evaluator, zones map[string]model.Zone) *Engine {
	return &Engine{Eval: eval, Zones: zones}
}

// Run dispatches to the named algorithm. Empty vehicle or delivery sets
// yield feasible=false with empty routes, not an error.
func (e *Engine) Run(algo Algorithm, vehicles []model.Vehicle, deliveries []model.Delivery, m *Matrix, opts Options) (model.RouteAssignmentResult, error) {
	switch algo {
	case AlgorithmNearestNeighbor, "":
		return e.NearestNeighbor(vehicles, deliveries, m, opts), nil
	case AlgorithmGreedy:
		return e.Greedy(vehicles, deliveries, m, opts), nil
	case AlgorithmEmergency:
		return e.Emergency(vehicles, deliveries, m, opts), nil
	}
	return model.RouteAssignmentResult{}, fmt.Errorf("unknown algorithm: %s", algo)
}

// vehicleState tracks a vehicle's route under construction.
type vehicleState struct {
	veh    model.Vehicle
	pos    model.GeoPoint
	remW   float64
	remV   float64
	etaMin float64
	route  model.Route
}

func newStates(vehicles []model.Vehicle) []*vehicleState {
	out := make([]*vehicleState, 0, len(vehicles))
	for _, v := range vehicles {
		if v.Status != model.StatusAvailable {
			continue
		}
		out = append(out, &vehicleState{
			veh:  v,
			pos:  v.Location,
			remW: v.Capacity.WeightKg,
			remV: v.Capacity.VolumeM3,
			route: model.Route{
				VehicleID:   v.ID,
				Status:      model.RoutePlanned,
				Stops:       []model.Stop{},
				DeliveryIDs: []string{},
			},
		})
	}
	return out
}

func (st *vehicleState) fits(d model.Delivery) bool {
	return d.Shipment.WeightKg <= st.remW && d.Shipment.VolumeM3 <= st.remV
}

// marginalCost is the added distance of serving d from the current position.
func (st *vehicleState) marginalCost(d model.Delivery, m *Matrix) float64 {
	toPickup, _ := m.Dist(st.pos, d.Pickup)
	leg, _ := m.Dist(d.Pickup, d.Dropoff)
	return toPickup + leg
}

// slack is the leftover capacity after taking d, used by capacity-first
// vehicle selection. Weight dominates; volume is a light tie-break.
func (st *vehicleState) slack(d model.Delivery) float64 {
	return (st.remW - d.Shipment.WeightKg) + 0.1*(st.remV-d.Shipment.VolumeM3)
}

// StopsForDelivery builds the pickup and delivery stops with zone
// snapshots attached, for standalone compliance evaluation.
func (e *Engine) StopsForDelivery(d model.Delivery) []model.Stop { return e.stopsFor(d) }

func (e *Engine) stopsFor(d model.Delivery) []model.Stop {
	pickup := model.Stop{Location: d.Pickup, Type: model.StopPickup, DeliveryID: d.ID, Window: &model.TimeWindow{Start: d.Window.Start, End: d.Window.End}}
	drop := model.Stop{Location: d.Dropoff, Type: model.StopDelivery, DeliveryID: d.ID, Window: &model.TimeWindow{Start: d.Window.Start, End: d.Window.End}}
	if z, ok := e.Zones[d.PickupZoneID]; ok {
		zc := z
		pickup.Zone = &zc
	}
	if z, ok := e.Zones[d.DropoffZoneID]; ok {
		zc := z
		drop.Zone = &zc
	}
	return []model.Stop{pickup, drop}
}

// compliantAssignment checks whether adding d keeps the vehicle's route
// legal at assignment time.
func (e *Engine) compliantAssignment(st *vehicleState, d model.Delivery, opts Options) bool {
	if !opts.ConsiderComplianceRules || e.Eval == nil {
		return true
	}
	stops := append(append([]model.Stop{}, st.route.Stops...), e.stopsFor(d)...)
	return e.Eval.Evaluate(st.veh, stops, opts.At).IsCompliant
}

// assign appends d's pickup and delivery stops and updates running totals.
func (e *Engine) assign(st *vehicleState, d model.Delivery, m *Matrix, opts Options) {
	toPickup, durPickup := m.Dist(st.pos, d.Pickup)
	leg, durLeg := m.Dist(d.Pickup, d.Dropoff)
	stops := e.stopsFor(d)

	st.etaMin += durPickup
	stops[0].ETA = opts.At.Add(time.Duration(st.etaMin * float64(time.Minute)))
	st.etaMin += durLeg
	stops[1].ETA = opts.At.Add(time.Duration(st.etaMin * float64(time.Minute)))

	st.route.Stops = append(st.route.Stops, stops...)
	st.route.DeliveryIDs = append(st.route.DeliveryIDs, d.ID)
	st.route.DistanceKm += toPickup + leg
	st.route.DurationMin += durPickup + durLeg
	st.remW -= d.Shipment.WeightKg
	st.remV -= d.Shipment.VolumeM3
	st.pos = d.Dropoff
}

// finalize assembles the uniform result shape shared by all heuristics.
func finalize(algo Algorithm, states []*vehicleState, unassigned []string, total int, opts Options, started time.Time) model.RouteAssignmentResult {
	res := model.RouteAssignmentResult{
		Routes:               []model.Route{},
		UnassignedDeliveries: unassigned,
		AlgorithmUsed:        string(algo),
	}
	for _, st := range states {
		if len(st.route.DeliveryIDs) == 0 {
			continue
		}
		res.Routes = append(res.Routes, st.route)
		res.TotalDistanceKm += st.route.DistanceKm
		res.TotalDurationMin += st.route.DurationMin
	}
	assigned := total - len(unassigned)
	res.Feasible = (total > 0 && assigned == total) ||
		(opts.AllowPartialAssignment && len(res.Routes) > 0)
	res.ProcessingMs = time.Since(started).Milliseconds()
	return res
}
