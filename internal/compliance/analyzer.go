package compliance

import (
	"time"

	"routeguard/internal/model"
)

// Analyzer runs the evaluator over a vehicle pool and aggregates the
// outcome. Like the evaluator it is stateless per call.
type Analyzer struct {
	eval *Evaluator
}

func NewAnalyzer(eval *Evaluator) *Analyzer {
	return &Analyzer{eval: eval}
}

// Analyze evaluates every vehicle against the same route template and
// partitions the pool. Violation counts are per vehicle and type: a
// vehicle tripping the same rule at three stops counts once.
func (a *Analyzer) Analyze(vehicles []model.Vehicle, stops []model.Stop, at time.Time) model.ViolationAnalysis {
	out := model.ViolationAnalysis{
		TotalVehicles:       len(vehicles),
		CompliantVehicles:   []string{},
		ViolatedVehicles:    []string{},
		ViolationCounts:     map[model.ViolationType]int{},
		MostCommonViolation: "none",
	}
	for _, v := range vehicles {
		verdict := a.eval.Evaluate(v, stops, at)
		if verdict.IsCompliant {
			out.CompliantVehicles = append(out.CompliantVehicles, v.ID)
			continue
		}
		out.ViolatedVehicles = append(out.ViolatedVehicles, v.ID)
		seen := map[model.ViolationType]bool{}
		for _, vi := range verdict.Violations {
			if !seen[vi.Type] {
				seen[vi.Type] = true
				out.ViolationCounts[vi.Type]++
			}
		}
	}
	// Tie-break on enum declaration order.
	best := 0
	for _, t := range model.ViolationTypes {
		if c := out.ViolationCounts[t]; c > best {
			best = c
			out.MostCommonViolation = string(t)
		}
	}
	return out
}
