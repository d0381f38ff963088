package messages

import (
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

// CycleReportEvent is published by the climate controller after each control cycle to
// record WHAT was seen, planned and applied.
type CycleReportEvent struct {
	CycleID         string                  `json:"cycle_id"`
	Room            string                  `json:"room"`
	Stage           entities.Stage          `json:"stage"`
	Trigger         string                  `json:"trigger"` // "timer" | "manual"
	Snapshot        entities.SensorSnapshot `json:"snapshot"`
	Problems        []entities.Problem      `json:"problems"`
	Actions         []entities.Action       `json:"actions"`
	Recommendations []entities.Action       `json:"recommendations"`
	Results         []ExecutionResult       `json:"results"`
	Aborted         bool                    `json:"aborted"` // controller disabled mid-cycle
	StartedAt       time.Time               `json:"started_at"`
	Timestamp       time.Time               `json:"timestamp"`
}

// Counts tallies the results by outcome.
func (e CycleReportEvent) Counts() (executed, failed, skipped int) {
	for _, r := range e.Results {
		switch {
		case r.Skipped:
			skipped++
		case r.Success:
			executed++
		default:
			failed++
		}
	}
	return executed, failed, skipped
}
