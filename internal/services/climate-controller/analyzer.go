package climate_controller

import (
	"fmt"
	"math"
	"sort"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

// Analyze compares a snapshot with the stage target ranges and returns the problems found,
// most severe first. Unknown readings never produce a problem.
func Analyze(s entities.SensorSnapshot, t entities.TargetProfile) []entities.Problem {
	out := make([]entities.Problem, 0, 3)
	out = checkRange(out, s.VPD, t.VPDMin, t.VPDMax, "VPD", "kPa", 2,
		entities.ProblemVPDHigh, entities.ProblemVPDLow)
	out = checkRange(out, s.Temperature, t.TempMin, t.TempMax, "temperature", "°F", 1,
		entities.ProblemTempHigh, entities.ProblemTempLow)
	out = checkRange(out, s.Humidity, t.HumidityMin, t.HumidityMax, "humidity", "%", 1,
		entities.ProblemHumidityHigh, entities.ProblemHumidityLow)

	// stable: equal severities keep the VPD, temperature, humidity order
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out
}

func checkRange(out []entities.Problem, reading *float64, lo, hi float64, name, unit string, prec int,
	high, low entities.ProblemType) []entities.Problem {
	if reading == nil {
		return out
	}
	cur := *reading
	switch {
	case cur > hi:
		return append(out, entities.Problem{
			Type:         high,
			Severity:     Severity(cur, hi),
			CurrentValue: cur,
			TargetValue:  hi,
			Delta:        cur - hi,
			Description:  fmt.Sprintf("%s too high: %.*f%s above max %.*f%s", name, prec, cur, unit, prec, hi, unit),
		})
	case cur < lo:
		return append(out, entities.Problem{
			Type:         low,
			Severity:     Severity(cur, lo),
			CurrentValue: cur,
			TargetValue:  lo,
			Delta:        cur - lo,
			Description:  fmt.Sprintf("%s too low: %.*f%s below min %.*f%s", name, prec, cur, unit, prec, lo, unit),
		})
	}
	return out
}

// Severity buckets |current-boundary|/boundary: <5% → 0, <10% → 25, <20% → 50,
// <30% → 75, otherwise 100. A zero boundary is always 100.
func Severity(current, boundary float64) int {
	if boundary == 0 {
		return 100
	}
	pct := math.Abs(current-boundary) / math.Abs(boundary) * 100
	switch {
	case pct < 5:
		return 0
	case pct < 10:
		return 25
	case pct < 20:
		return 50
	case pct < 30:
		return 75
	default:
		return 100
	}
}
