package climate_controller

import (
	"testing"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func states(humidifierMode string, humidifierPower, fanPower float64) entities.ActuatorStates {
	fanMode := entities.ModeOn
	if fanPower == 0 {
		fanMode = entities.ModeOff
	}
	return entities.ActuatorStates{
		entities.DeviceHumidifier: {Device: entities.DeviceHumidifier, Mode: humidifierMode, CurrentPower: humidifierPower},
		entities.DeviceExhaustFan: {Device: entities.DeviceExhaustFan, Mode: fanMode, CurrentPower: fanPower},
		entities.DeviceHeater:     {Device: entities.DeviceHeater, Mode: "heat", Setpoint: entities.Known(80)},
	}
}

func summary(as []entities.Action) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.String()+" "+string(a.Ownership))
	}
	return out
}

func planFor(snap entities.SensorSnapshot, st entities.ActuatorStates) Plan {
	return BuildPlan(Analyze(snap, flowering), snap, flowering, st, nil)
}

func TestPlanEndToEndExample(t *testing.T) {
	p := planFor(entities.NewSnapshot(84, 58, 0.85), states(entities.ModeOn, 4, 6))

	wantActions := []string{"heater set_temperature 77.0 (p1) controller"}
	wantRecs := []string{
		"humidifier set_intensity 10.0 (p1) external_app",
		"exhaust_fan set_power 2.0 (p2) external_app",
	}
	if d := cmp.Diff(wantActions, summary(p.Actions)); d != "" {
		t.Errorf("actions (-want +got):\n%s", d)
	}
	if d := cmp.Diff(wantRecs, summary(p.Recommendations)); d != "" {
		t.Errorf("recommendations (-want +got):\n%s", d)
	}
}

func TestPlanQuietFanIsLeftAlone(t *testing.T) {
	p := planFor(entities.NewSnapshot(84, 58, 0.85), states(entities.ModeOn, 4, 3))
	assert.Equal(t, []string{"humidifier set_intensity 10.0 (p1) external_app"}, summary(p.Recommendations))
}

func TestPlanHumidifierAlreadyAtMax(t *testing.T) {
	p := planFor(entities.NewSnapshot(75, 45, 1.1), states(entities.ModeOn, 10, 2))
	for _, a := range p.All() {
		assert.NotEqual(t, entities.DeviceHumidifier, a.Device, a.String())
	}
}

func TestPlanVPDHighWithoutDryness(t *testing.T) {
	// humidity at optimal, temperature above optimal → back the heater off
	p := planFor(entities.NewSnapshot(80, 72, 0.9), states(entities.ModeOn, 4, 6))
	assert.Equal(t, []string{"heater set_temperature 76.0 (p1) controller"}, summary(p.Actions))
	assert.Empty(t, p.Recommendations)
}

func TestPlanTempHighWithHeadroom(t *testing.T) {
	p := planFor(entities.NewSnapshot(84, 60, 0.6), states(entities.ModeOn, 4, 6))
	assert.Empty(t, p.Actions)
	assert.Equal(t, []string{"exhaust_fan set_power 8.0 (p1) external_app"}, summary(p.Recommendations))
}

func TestPlanFanIncreaseCapped(t *testing.T) {
	p := planFor(entities.NewSnapshot(84, 60, 0.6), states(entities.ModeOn, 4, 9))
	assert.Equal(t, []string{"exhaust_fan set_power 10.0 (p1) external_app"}, summary(p.Recommendations))
}

func TestPlanVPDLow(t *testing.T) {
	p := planFor(entities.NewSnapshot(75, 70, 0.3), states(entities.ModeOn, 4, 4))
	assert.Equal(t, []string{
		"humidifier turn_off (p1) external_app",
		"exhaust_fan set_power 6.0 (p2) external_app",
	}, summary(p.Recommendations))
}

func TestPlanTempLow(t *testing.T) {
	p := planFor(entities.NewSnapshot(64, 60, 0.6), states(entities.ModeOn, 4, 4))
	assert.Equal(t, []string{"heater set_temperature 77.0 (p1) controller"}, summary(p.Actions))
}

func TestPlanHumidityHigh(t *testing.T) {
	p := planFor(entities.NewSnapshot(75, 78, 0.5), states(entities.ModeOn, 4, 4))
	assert.Equal(t, []string{"exhaust_fan set_power 6.0 (p2) external_app"}, summary(p.Recommendations))

	p = planFor(entities.NewSnapshot(75, 90, 0.5), states(entities.ModeOn, 4, 4))
	assert.Equal(t, []string{
		"humidifier turn_off (p1) external_app",
		"exhaust_fan set_power 6.0 (p2) external_app",
	}, summary(p.Recommendations))
}

func TestPlanDedupKeepsLowestPriority(t *testing.T) {
	snap := entities.NewSnapshot(84, 80, 0.5)
	problems := []entities.Problem{
		{Type: entities.ProblemHumidityHigh, CurrentValue: 80},
		{Type: entities.ProblemTempHigh, CurrentValue: 84},
	}
	p := BuildPlan(problems, snap, flowering, states(entities.ModeOn, 4, 6), nil)
	assert.Equal(t, []string{"exhaust_fan set_power 8.0 (p1) external_app"}, summary(p.Recommendations))
}

func TestPlanNeverDuplicates(t *testing.T) {
	all := []entities.ProblemType{
		entities.ProblemVPDHigh, entities.ProblemVPDLow, entities.ProblemTempHigh,
		entities.ProblemTempLow, entities.ProblemHumidityLow, entities.ProblemHumidityHigh,
	}
	snaps := []entities.SensorSnapshot{
		entities.NewSnapshot(84, 58, 0.85),
		entities.NewSnapshot(64, 90, 0.3),
		entities.NewSnapshot(80, 72, 0.75),
	}
	for _, snap := range snaps {
		for i := range all {
			for j := range all {
				problems := []entities.Problem{{Type: all[i], CurrentValue: 90}, {Type: all[j], CurrentValue: 90}}
				p := BuildPlan(problems, snap, flowering, states(entities.ModeOn, 2, 6), nil)
				seen := map[string]bool{}
				prev := 0
				for _, a := range p.All() {
					assert.False(t, seen[a.DedupKey()], "duplicate %s", a)
					seen[a.DedupKey()] = true
					assert.GreaterOrEqual(t, a.Priority, prev)
					prev = a.Priority
				}
			}
		}
	}
}

func TestPlanSkipsRulesOnUnknownReadings(t *testing.T) {
	snap := entities.SensorSnapshot{VPD: entities.Known(0.9), Temperature: entities.Known(84)}
	problems := []entities.Problem{{Type: entities.ProblemVPDHigh, CurrentValue: 0.9}}
	p := BuildPlan(problems, snap, flowering, states(entities.ModeOn, 4, 6), nil)
	assert.Empty(t, p.All(), "root cause needs humidity")

	// unknown fan state → no fan action
	snap = entities.NewSnapshot(84, 60, 0.6)
	p = BuildPlan(Analyze(snap, flowering), snap, flowering, entities.ActuatorStates{}, nil)
	assert.Empty(t, p.All())
}

func TestPlanOwnershipOverride(t *testing.T) {
	own := DefaultOwnership()
	own[entities.DeviceHumidifier] = entities.ControllerOwned
	snap := entities.NewSnapshot(84, 58, 0.85)
	p := BuildPlan(Analyze(snap, flowering), snap, flowering, states(entities.ModeOn, 4, 6), own)
	assert.Equal(t, []string{
		"humidifier set_intensity 10.0 (p1) controller",
		"heater set_temperature 77.0 (p1) controller",
	}, summary(p.Actions))
}
