package entities

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageSeedling   Stage = "Seedling"
	StageVegetative Stage = "Vegetative"
	StageFlowering  Stage = "Flowering"
	StageLateFlower Stage = "LateFlower"
)

var ErrInvalidProfile = errors.New("invalid target profile")

// TargetProfile holds the target ranges of one growth stage. Temperatures are in °F,
// humidity in % RH, VPD in kPa.
type TargetProfile struct {
	TempMin         float64 `json:"temp_min" yaml:"temp_min"`
	TempMax         float64 `json:"temp_max" yaml:"temp_max"`
	TempOptimal     float64 `json:"temp_optimal" yaml:"temp_optimal"`
	HumidityMin     float64 `json:"humidity_min" yaml:"humidity_min"`
	HumidityMax     float64 `json:"humidity_max" yaml:"humidity_max"`
	HumidityOptimal float64 `json:"humidity_optimal" yaml:"humidity_optimal"`
	VPDMin          float64 `json:"vpd_min" yaml:"vpd_min"`
	VPDMax          float64 `json:"vpd_max" yaml:"vpd_max"`
	VPDOptimal      float64 `json:"vpd_optimal" yaml:"vpd_optimal"`
}

// Validate checks min <= optimal <= max for every variable.
func (t TargetProfile) Validate() error {
	check := func(name string, lo, opt, hi float64) error {
		if lo > hi {
			return fmt.Errorf("%w: %s min %.2f > max %.2f", ErrInvalidProfile, name, lo, hi)
		}
		if opt < lo || opt > hi {
			return fmt.Errorf("%w: %s optimal %.2f outside %.2f..%.2f", ErrInvalidProfile, name, opt, lo, hi)
		}
		return nil
	}
	if err := check("temperature", t.TempMin, t.TempOptimal, t.TempMax); err != nil {
		return err
	}
	if err := check("humidity", t.HumidityMin, t.HumidityOptimal, t.HumidityMax); err != nil {
		return err
	}
	return check("vpd", t.VPDMin, t.VPDOptimal, t.VPDMax)
}
