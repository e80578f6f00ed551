package api

import (
	"fmt"

	"routeguard/internal/model"
)

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	switch req.Algorithm {
	case "", "nearest_neighbor", "greedy", "emergency":
	default:
		return fmt.Errorf("invalid algorithm: %s (allowed: nearest_neighbor,greedy,emergency)", req.Algorithm)
	}
	if req.DeadlineMs < 0 {
		return fmt.Errorf("deadlineMs must be >= 0")
	}
	if !req.Window.Start.IsZero() && !req.Window.End.IsZero() && req.Window.End.Before(req.Window.Start) {
		return fmt.Errorf("window end before start")
	}
	return nil
}
