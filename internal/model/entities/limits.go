package entities

// HardLimit bounds any externally proposed numeric change for one entity.
type HardLimit struct {
	Entity                 string  `json:"entity" yaml:"entity"`
	Min                    float64 `json:"min" yaml:"min"`
	Max                    float64 `json:"max" yaml:"max"`
	MaxChangePerInvocation float64 `json:"max_change_per_invocation" yaml:"max_change_per_invocation"`
}

// HardLimits is keyed by entity identifier.
type HardLimits map[string]HardLimit

// AutonomousActionRequest is a setpoint change proposed outside the planner (e.g. by an LLM).
type AutonomousActionRequest struct {
	Entity       string  `json:"entity"`
	CurrentValue float64 `json:"current_value"`
	NewValue     float64 `json:"new_value"`
	Reason       string  `json:"reason"`
}

type Decision struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}
