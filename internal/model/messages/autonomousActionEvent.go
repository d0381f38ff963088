package messages

import (
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

// AutonomousActionEvent records what the guardrail did with an externally proposed change.
type AutonomousActionEvent struct {
	RequestID string                           `json:"request_id"`
	Request   entities.AutonomousActionRequest `json:"request"`
	Accepted  bool                             `json:"accepted"`
	Executed  bool                             `json:"executed"`
	Reason    string                           `json:"reason"`
	ErrorCode string                           `json:"error_code,omitempty"`
	Timestamp time.Time                        `json:"timestamp"`
}
