// Package config loads the static tables of the controller: stage target profiles, hard
// limits, cooldown policy, ownership and provider entity ids.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/pkg/actuator"
	"github.com/LeonardoBeccarini/climate_controller/pkg/cooldown"
	"gopkg.in/yaml.v3"
)

// File is the YAML config file. Missing sections keep their defaults.
type File struct {
	Room       string                                    `yaml:"room"`
	Crop       string                                    `yaml:"crop"`
	Stage      entities.Stage                            `yaml:"stage"`
	Stages     map[entities.Stage]entities.TargetProfile `yaml:"stages"`
	HardLimits []entities.HardLimit                      `yaml:"hard_limits"`
	Cooldowns  cooldown.Policy                           `yaml:"cooldowns"`
	Ownership  map[entities.Device]entities.Ownership    `yaml:"ownership"`
	Entities   actuator.Entities                         `yaml:"entities"`
}

// Default is a cannabis-style grow room profile set with VPD targets per stage.
func Default() *File {
	return &File{
		Room:  "grow-room",
		Crop:  "default",
		Stage: entities.StageVegetative,
		Stages: map[entities.Stage]entities.TargetProfile{
			entities.StageSeedling: {
				TempMin: 70, TempMax: 80, TempOptimal: 75,
				HumidityMin: 65, HumidityMax: 80, HumidityOptimal: 70,
				VPDMin: 0.4, VPDMax: 0.8, VPDOptimal: 0.6,
			},
			entities.StageVegetative: {
				TempMin: 70, TempMax: 85, TempOptimal: 78,
				HumidityMin: 55, HumidityMax: 70, HumidityOptimal: 60,
				VPDMin: 0.8, VPDMax: 1.1, VPDOptimal: 0.95,
			},
			entities.StageFlowering: {
				TempMin: 68, TempMax: 82, TempOptimal: 76,
				HumidityMin: 45, HumidityMax: 60, HumidityOptimal: 50,
				VPDMin: 1.0, VPDMax: 1.4, VPDOptimal: 1.2,
			},
			entities.StageLateFlower: {
				TempMin: 65, TempMax: 80, TempOptimal: 72,
				HumidityMin: 40, HumidityMax: 50, HumidityOptimal: 45,
				VPDMin: 1.2, VPDMax: 1.6, VPDOptimal: 1.4,
			},
		},
		HardLimits: []entities.HardLimit{
			{Entity: "number.target_vpd", Min: 0.3, Max: 1.2, MaxChangePerInvocation: 0.15},
			{Entity: "number.exhaust_fan_power", Min: 0, Max: 10, MaxChangePerInvocation: 3},
			{Entity: "climate.grow_room_heater", Min: 60, Max: 85, MaxChangePerInvocation: 3},
		},
		Cooldowns: cooldown.DefaultPolicy(),
		Ownership: map[entities.Device]entities.Ownership{
			entities.DeviceHeater:     entities.ControllerOwned,
			entities.DeviceHumidifier: entities.ExternalAppOwned,
			entities.DeviceExhaustFan: entities.ExternalAppOwned,
			entities.DeviceLight:      entities.ExternalAppOwned,
		},
		Entities: actuator.DefaultEntities(),
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*File, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	f, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

func Parse(raw []byte) (*File, error) {
	f := Default()
	if err := yaml.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Validate() error {
	if err := f.ClimatePolicy().Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(f.HardLimits))
	for _, l := range f.HardLimits {
		switch {
		case l.Entity == "":
			return errors.New("hard limit without entity")
		case seen[l.Entity]:
			return fmt.Errorf("hard limit %s listed twice", l.Entity)
		case l.Min > l.Max:
			return fmt.Errorf("hard limit %s: min %.3f > max %.3f", l.Entity, l.Min, l.Max)
		case l.MaxChangePerInvocation < 0:
			return fmt.Errorf("hard limit %s: negative max change", l.Entity)
		}
		seen[l.Entity] = true
	}
	for d, o := range f.Ownership {
		if o != entities.ControllerOwned && o != entities.ExternalAppOwned {
			return fmt.Errorf("ownership of %s: unknown value %q", d, o)
		}
	}
	return nil
}

func (f *File) ClimatePolicy() entities.ClimatePolicy {
	return entities.ClimatePolicy{Room: f.Room, Crop: f.Crop, Stage: f.Stage, Stages: f.Stages}
}

// Limits indexes the hard-limit list by entity.
func (f *File) Limits() entities.HardLimits {
	out := make(entities.HardLimits, len(f.HardLimits))
	for _, l := range f.HardLimits {
		out[l.Entity] = l
	}
	return out
}
