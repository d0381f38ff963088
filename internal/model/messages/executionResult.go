package messages

import "github.com/LeonardoBeccarini/climate_controller/internal/model/entities"

// ExecutionResult is produced for every action the executor attempts; dispatch
// failures are reported here, never returned as errors.
type ExecutionResult struct {
	Action    entities.Action `json:"action"`
	Success   bool            `json:"success"`
	Skipped   bool            `json:"skipped"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
}
