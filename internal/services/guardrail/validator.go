// Package guardrail bounds setpoint changes proposed from outside the planner before any of
// them reaches an actuator.
package guardrail

import (
	"fmt"
	"math"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

const (
	ReasonNotAllowed    = "entity not in allowed list"
	ReasonInvalidValues = "invalid values"

	// absorbs float noise such as |0.75-0.6| = 0.15000000000000002
	changeTolerance = 1e-9
)

// Validate checks req against the hard-limit table. The first failing rule wins:
// listed entity, finite values, change magnitude, range.
func Validate(req entities.AutonomousActionRequest, limits entities.HardLimits) entities.Decision {
	lim, ok := limits[req.Entity]
	if !ok {
		return entities.Decision{Reason: ReasonNotAllowed}
	}
	if !finite(req.CurrentValue) || !finite(req.NewValue) {
		return entities.Decision{Reason: ReasonInvalidValues}
	}
	if delta := math.Abs(req.NewValue - req.CurrentValue); delta > lim.MaxChangePerInvocation+changeTolerance {
		return entities.Decision{Reason: fmt.Sprintf("change of %.3f exceeds max change per invocation %.3f",
			delta, lim.MaxChangePerInvocation)}
	}
	if req.NewValue < lim.Min || req.NewValue > lim.Max {
		return entities.Decision{Reason: fmt.Sprintf("value %.3f outside allowed range [%.3f, %.3f]",
			req.NewValue, lim.Min, lim.Max)}
	}
	return entities.Decision{Accepted: true, Reason: "within hard limits"}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
