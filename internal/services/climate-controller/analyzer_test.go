package climate_controller

import (
	"testing"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flowering is a late-flower style profile; humidity optimal sits above the usual reading.
var flowering = entities.TargetProfile{
	TempMin: 68, TempMax: 82, TempOptimal: 77,
	HumidityMin: 50, HumidityMax: 75, HumidityOptimal: 70,
	VPDMin: 0.4, VPDMax: 0.8, VPDOptimal: 0.6,
}

func types(ps []entities.Problem) []entities.ProblemType {
	out := make([]entities.ProblemType, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Type)
	}
	return out
}

func TestAnalyzeInRangeIsEmpty(t *testing.T) {
	for _, s := range []entities.SensorSnapshot{
		entities.NewSnapshot(77, 60, 0.6),
		entities.NewSnapshot(68, 50, 0.4),
		entities.NewSnapshot(82, 75, 0.8),
	} {
		assert.Empty(t, Analyze(s, flowering))
	}
}

func TestAnalyzeEndToEndExample(t *testing.T) {
	ps := Analyze(entities.NewSnapshot(84, 58, 0.85), flowering)
	require.Equal(t, []entities.ProblemType{entities.ProblemVPDHigh, entities.ProblemTempHigh}, types(ps))

	assert.Equal(t, 25, ps[0].Severity) // 6.25%
	assert.InDelta(t, 0.05, ps[0].Delta, 1e-9)
	assert.Equal(t, 0.8, ps[0].TargetValue)
	assert.Equal(t, 0, ps[1].Severity) // 2.4%
	assert.Contains(t, ps[1].Description, "84.0")
}

func TestAnalyzeSortsBySeverity(t *testing.T) {
	// humidity 30 vs min 50 is 40% → 100; temperature 60 vs 68 is 11.8% → 50
	ps := Analyze(entities.NewSnapshot(60, 30, 0.6), flowering)
	require.Equal(t, []entities.ProblemType{entities.ProblemHumidityLow, entities.ProblemTempLow}, types(ps))
	assert.Equal(t, 100, ps[0].Severity)
	assert.Equal(t, 50, ps[1].Severity)
}

func TestAnalyzeTiesKeepVariableOrder(t *testing.T) {
	// all three just past their boundary → severity 0
	ps := Analyze(entities.NewSnapshot(83, 76, 0.81), flowering)
	assert.Equal(t, []entities.ProblemType{
		entities.ProblemVPDHigh, entities.ProblemTempHigh, entities.ProblemHumidityHigh,
	}, types(ps))
}

func TestAnalyzeSkipsUnknownReadings(t *testing.T) {
	s := entities.SensorSnapshot{Temperature: entities.Known(90)}
	ps := Analyze(s, flowering)
	assert.Equal(t, []entities.ProblemType{entities.ProblemTempHigh}, types(ps))

	assert.Empty(t, Analyze(entities.SensorSnapshot{}, flowering))
}

func TestSeverityBuckets(t *testing.T) {
	cases := []struct {
		cur, boundary float64
		want          int
	}{
		{104, 100, 0},
		{105, 100, 25},
		{109.9, 100, 25},
		{110, 100, 50},
		{120, 100, 75},
		{130, 100, 100},
		{60, 100, 100},
		{85, 100, 50},
		{1, 0, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Severity(tc.cur, tc.boundary), "cur=%v boundary=%v", tc.cur, tc.boundary)
	}
}

func TestSeverityMonotonic(t *testing.T) {
	prev := -1
	for cur := 0.80; cur < 1.2; cur += 0.005 {
		s := Severity(cur, 0.8)
		assert.Contains(t, []int{0, 25, 50, 75, 100}, s)
		assert.GreaterOrEqual(t, s, prev, "cur=%v", cur)
		prev = s
	}
}
