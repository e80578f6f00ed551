package opt

import (
	"math"
	"time"

	"routeguard/internal/model"
)

// NearestNeighbor builds routes vehicle by vehicle in array order: each
// vehicle repeatedly takes the closest unassigned, capacity-feasible
// delivery pickup from its current position until nothing fits, then the
// next vehicle starts. Ties on distance break toward the lower delivery
// id, which keeps repeated runs identical.
func (e *Engine) NearestNeighbor(vehicles []model.Vehicle, deliveries []model.Delivery, m *Matrix, opts Options) model.RouteAssignmentResult {
	started := time.Now()
	states := newStates(vehicles)
	assigned := make([]bool, len(deliveries))

	for _, st := range states {
		for {
			best := -1
			bestDist := math.MaxFloat64
			for i, d := range deliveries {
				if assigned[i] || !st.fits(d) {
					continue
				}
				dist, _ := m.Dist(st.pos, d.Pickup)
				if dist < bestDist || (dist == bestDist && (best < 0 || d.ID < deliveries[best].ID)) {
					if !e.compliantAssignment(st, d, opts) {
						continue
					}
					bestDist = dist
					best = i
				}
			}
			if best < 0 {
				break
			}
			e.assign(st, deliveries[best], m, opts)
			assigned[best] = true
		}
	}

	unassigned := []string{}
	for i, d := range deliveries {
		if !assigned[i] {
			unassigned = append(unassigned, d.ID)
		}
	}
	return finalize(AlgorithmNearestNeighbor, states, unassigned, len(deliveries), opts, started)
}
