package opt

import (
	"time"

	"routeguard/internal/model"
)

// Emergency is the breakdown-recovery path: urgent and high priority
// deliveries are placed first, each on the first capacity-feasible
// available vehicle found by linear scan. No distance optimization at
// all; the contract is sub-second completion, not route quality.
// Remaining priorities are placed only with whatever capacity is left.
func (e *Engine) Emergency(vehicles []model.Vehicle, deliveries []model.Delivery, m *Matrix, opts Options) model.RouteAssignmentResult {
	started := time.Now()
	states := newStates(vehicles)
	assigned := make([]bool, len(deliveries))

	place := func(i int, d model.Delivery) {
		for _, st := range states {
			if !st.fits(d) || !e.compliantAssignment(st, d, opts) {
				continue
			}
			e.assign(st, d, m, opts)
			assigned[i] = true
			return
		}
	}

	for i, d := range deliveries {
		if d.Priority == model.PriorityUrgent || d.Priority == model.PriorityHigh {
			place(i, d)
		}
	}
	for i, d := range deliveries {
		if !assigned[i] && d.Priority != model.PriorityUrgent && d.Priority != model.PriorityHigh {
			place(i, d)
		}
	}

	unassigned := []string{}
	for i, d := range deliveries {
		if !assigned[i] {
			unassigned = append(unassigned, d.ID)
		}
	}
	return finalize(AlgorithmEmergency, states, unassigned, len(deliveries), opts, started)
}
