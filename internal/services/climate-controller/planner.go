package climate_controller

import (
	"fmt"
	"math"
	"sort"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

const (
	fanReducedPower     = 2.0 // fan power that stops fighting the humidifier
	fanFightThreshold   = 3.0
	fanStep             = 2.0
	vpdHeadroom         = 0.1
	heaterBackoff       = 1.0
	ventTempMargin      = 2.0
	humidityFloodMargin = 10.0
)

// OwnershipMap tells, per device, who may dispatch its actions.
type OwnershipMap map[entities.Device]entities.Ownership

// DefaultOwnership: only the heater is driven by the controller; humidifier, fan and light
// belong to the vendor app and are only recommended.
func DefaultOwnership() OwnershipMap {
	return OwnershipMap{
		entities.DeviceHeater:     entities.ControllerOwned,
		entities.DeviceHumidifier: entities.ExternalAppOwned,
		entities.DeviceExhaustFan: entities.ExternalAppOwned,
		entities.DeviceLight:      entities.ExternalAppOwned,
	}
}

// Of defaults to external_app for unlisted devices.
func (m OwnershipMap) Of(d entities.Device) entities.Ownership {
	if o, ok := m[d]; ok {
		return o
	}
	return entities.ExternalAppOwned
}

// Plan is the outcome of one planning pass. Both lists are sorted by ascending priority.
type Plan struct {
	Actions         []entities.Action `json:"actions"`         // controller-owned, executable
	Recommendations []entities.Action `json:"recommendations"` // external-app-owned
}

// All merges both lists, still ordered by priority.
func (p Plan) All() []entities.Action {
	all := make([]entities.Action, 0, len(p.Actions)+len(p.Recommendations))
	all = append(all, p.Actions...)
	all = append(all, p.Recommendations...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Priority < all[j].Priority })
	return all
}

// BuildPlan applies the decision table to each problem in order, deduplicates the
// candidates by (device, verb, target) keeping the lowest priority number, and splits
// them by ownership. It is deterministic and has no side effects.
func BuildPlan(problems []entities.Problem, snap entities.SensorSnapshot, t entities.TargetProfile,
	states entities.ActuatorStates, own OwnershipMap) Plan {
	if own == nil {
		own = DefaultOwnership()
	}
	b := &planBuilder{states: states, own: own}

	for _, p := range problems {
		switch p.Type {
		case entities.ProblemVPDHigh:
			hum := snap.Humidity
			if hum == nil {
				continue
			}
			if *hum < t.HumidityOptimal {
				b.moisten(fmt.Sprintf("VPD %.2f high, humidity %.0f%% below optimal %.0f%%", p.CurrentValue, *hum, t.HumidityOptimal))
			} else if temp := snap.Temperature; temp != nil && *temp > t.TempOptimal {
				b.heater(t.TempOptimal-heaterBackoff, 1,
					fmt.Sprintf("VPD %.2f high, temperature %.1f above optimal %.1f", p.CurrentValue, *temp, t.TempOptimal))
			}
		case entities.ProblemVPDLow:
			b.humidifierOff(1, fmt.Sprintf("VPD %.2f low", p.CurrentValue))
			if temp := snap.Temperature; temp != nil && *temp > t.TempMin+ventTempMargin {
				b.fanUp(2, fmt.Sprintf("VPD %.2f low, venting moist air", p.CurrentValue))
			}
		case entities.ProblemTempHigh:
			vpd := snap.VPD
			if vpd == nil {
				continue
			}
			if *vpd < t.VPDMax-vpdHeadroom {
				b.fanUp(1, fmt.Sprintf("temperature %.1f high, VPD has headroom", p.CurrentValue))
			} else {
				b.heater(t.TempOptimal, 1, fmt.Sprintf("temperature %.1f high, no VPD headroom for airflow", p.CurrentValue))
			}
		case entities.ProblemTempLow:
			b.heater(t.TempOptimal, 1, fmt.Sprintf("temperature %.1f low", p.CurrentValue))
		case entities.ProblemHumidityLow:
			b.moisten(fmt.Sprintf("humidity %.0f%% low", p.CurrentValue))
		case entities.ProblemHumidityHigh:
			if p.CurrentValue > t.HumidityMax+humidityFloodMargin {
				b.humidifierOff(1, fmt.Sprintf("humidity %.0f%% far above max", p.CurrentValue))
			}
			b.fanUp(2, fmt.Sprintf("humidity %.0f%% high", p.CurrentValue))
		}
	}
	return b.build()
}

type planBuilder struct {
	states     entities.ActuatorStates
	own        OwnershipMap
	candidates []entities.Action
}

func (b *planBuilder) add(d entities.Device, verb string, params entities.ActionParams, prio int, reason string) {
	b.candidates = append(b.candidates, entities.Action{
		Device:    d,
		Verb:      verb,
		Params:    params,
		Reason:    reason,
		Priority:  prio,
		Ownership: b.own.Of(d),
	})
}

// moisten: humidifier to max intensity, and pull the fan down if it is blowing the
// moisture out.
func (b *planBuilder) moisten(reason string) {
	if st, ok := b.states[entities.DeviceHumidifier]; !ok || !(st.IsOn() && st.CurrentPower >= entities.MaxPower) {
		b.add(entities.DeviceHumidifier, entities.VerbSetIntensity,
			entities.ActionParams{TargetIntensity: entities.Known(entities.MaxPower)}, 1, reason)
	}
	if st, ok := b.states[entities.DeviceExhaustFan]; ok && st.CurrentPower > fanFightThreshold {
		b.add(entities.DeviceExhaustFan, entities.VerbSetPower,
			entities.ActionParams{ToPower: entities.Known(fanReducedPower)}, 2,
			fmt.Sprintf("%s; fan at %.0f fights the humidifier", reason, st.CurrentPower))
	}
}

func (b *planBuilder) humidifierOff(prio int, reason string) {
	b.add(entities.DeviceHumidifier, entities.VerbTurnOff, entities.ActionParams{}, prio, reason)
}

// fanUp needs the current fan power; with an unknown state the rule is skipped.
func (b *planBuilder) fanUp(prio int, reason string) {
	st, ok := b.states[entities.DeviceExhaustFan]
	if !ok {
		return
	}
	to := math.Min(st.CurrentPower+fanStep, entities.MaxPower)
	b.add(entities.DeviceExhaustFan, entities.VerbSetPower, entities.ActionParams{ToPower: entities.Known(to)}, prio, reason)
}

func (b *planBuilder) heater(to float64, prio int, reason string) {
	b.add(entities.DeviceHeater, entities.VerbSetTemperature, entities.ActionParams{ToTemp: entities.Known(to)}, prio, reason)
}

func (b *planBuilder) build() Plan {
	kept := dedupActions(b.candidates)
	plan := Plan{Actions: []entities.Action{}, Recommendations: []entities.Action{}}
	for _, a := range kept {
		if a.Ownership == entities.ControllerOwned {
			plan.Actions = append(plan.Actions, a)
		} else {
			plan.Recommendations = append(plan.Recommendations, a)
		}
	}
	return plan
}

// dedupActions keeps one action per DedupKey, the one with the lowest priority number
// (first seen on ties), and returns them sorted by ascending priority.
func dedupActions(in []entities.Action) []entities.Action {
	idx := make(map[string]int, len(in))
	out := make([]entities.Action, 0, len(in))
	for _, a := range in {
		k := a.DedupKey()
		if i, ok := idx[k]; ok {
			if a.Priority < out[i].Priority {
				out[i] = a
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
