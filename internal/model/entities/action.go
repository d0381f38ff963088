package entities

import (
	"fmt"
	"strconv"
)

const (
	VerbSetIntensity   = "set_intensity"
	VerbSetPower       = "set_power"
	VerbSetTemperature = "set_temperature"
	VerbTurnOff        = "turn_off"
	VerbTurnOn         = "turn_on"
)

type ActionParams struct {
	ToPower         *float64 `json:"to_power,omitempty"`
	ToTemp          *float64 `json:"to_temp,omitempty"`
	TargetIntensity *float64 `json:"target_intensity,omitempty"`
}

// Target returns the single target parameter of the action, if any.
func (p ActionParams) Target() (float64, bool) {
	switch {
	case p.TargetIntensity != nil:
		return *p.TargetIntensity, true
	case p.ToPower != nil:
		return *p.ToPower, true
	case p.ToTemp != nil:
		return *p.ToTemp, true
	}
	return 0, false
}

// Action is one step of a plan. Priority 1 is the most urgent.
type Action struct {
	Device    Device       `json:"device"`
	Verb      string       `json:"verb"`
	Params    ActionParams `json:"params"`
	Reason    string       `json:"reason"`
	Priority  int          `json:"priority"`
	Ownership Ownership    `json:"ownership"`
}

// DedupKey identifies (device, verb, target-parameter).
func (a Action) DedupKey() string {
	k := string(a.Device) + "|" + a.Verb
	if v, ok := a.Params.Target(); ok {
		k += "|" + strconv.FormatFloat(v, 'f', 2, 64)
	}
	return k
}

func (a Action) String() string {
	if v, ok := a.Params.Target(); ok {
		return fmt.Sprintf("%s %s %.1f (p%d)", a.Device, a.Verb, v, a.Priority)
	}
	return fmt.Sprintf("%s %s (p%d)", a.Device, a.Verb, a.Priority)
}
