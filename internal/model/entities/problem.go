package entities

type ProblemType string

const (
	ProblemVPDHigh      ProblemType = "VPD_HIGH"
	ProblemVPDLow       ProblemType = "VPD_LOW"
	ProblemTempHigh     ProblemType = "TEMP_HIGH"
	ProblemTempLow      ProblemType = "TEMP_LOW"
	ProblemHumidityLow  ProblemType = "HUMIDITY_LOW"
	ProblemHumidityHigh ProblemType = "HUMIDITY_HIGH"
)

// Problem is one out-of-range variable. Severity is one of 0, 25, 50, 75, 100.
type Problem struct {
	Type         ProblemType `json:"type"`
	Severity     int         `json:"severity"`
	CurrentValue float64     `json:"current_value"`
	TargetValue  float64     `json:"target_value"` // the violated boundary
	Delta        float64     `json:"delta"`        // current - target
	Description  string      `json:"description"`
}
