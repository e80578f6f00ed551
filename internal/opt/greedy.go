package opt

import (
	"math"
	"sort"
	"time"

	"routeguard/internal/model"
)

// Greedy assigns deliveries in priority order (urgent first), heaviest
// first within a priority so the hardest-to-place shipments claim
// capacity early. Each delivery goes to the feasible vehicle with the
// smallest marginal distance, or with PrioritizeByCapacity to the vehicle
// leaving the least capacity slack.
func (e *Engine) Greedy(vehicles []model.Vehicle, deliveries []model.Delivery, m *Matrix, opts Options) model.RouteAssignmentResult {
	started := time.Now()
	states := newStates(vehicles)

	order := make([]int, len(deliveries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := deliveries[order[a]], deliveries[order[b]]
		if da.Priority.Rank() != db.Priority.Rank() {
			return da.Priority.Rank() > db.Priority.Rank()
		}
		return da.Shipment.WeightKg > db.Shipment.WeightKg
	})

	unassigned := []string{}
	for _, di := range order {
		d := deliveries[di]
		var best *vehicleState
		bestScore := math.MaxFloat64
		for _, st := range states {
			if !st.fits(d) || !e.compliantAssignment(st, d, opts) {
				continue
			}
			score := st.marginalCost(d, m)
			if opts.PrioritizeByCapacity {
				score = st.slack(d)
			}
			if score < bestScore {
				bestScore = score
				best = st
			}
		}
		if best == nil {
			unassigned = append(unassigned, d.ID)
			continue
		}
		e.assign(best, d, m, opts)
	}
	return finalize(AlgorithmGreedy, states, unassigned, len(deliveries), opts, started)
}
