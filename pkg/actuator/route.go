package actuator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

var ErrUnroutable = errors.New("action has no provider route")

// Entities maps actuators to provider entity ids ("<domain>.<name>").
type Entities struct {
	Humidifier          string `yaml:"humidifier"`
	HumidifierIntensity string `yaml:"humidifier_intensity"`
	ExhaustFan          string `yaml:"exhaust_fan"`
	Heater              string `yaml:"heater"`
	Light               string `yaml:"light"`
}

func DefaultEntities() Entities {
	return Entities{
		Humidifier:          "humidifier.grow_room",
		HumidifierIntensity: "select.humidifier_intensity",
		ExhaustFan:          "number.exhaust_fan_power",
		Heater:              "climate.grow_room_heater",
		Light:               "number.grow_light_power",
	}
}

// Command is one provider call.
type Command struct {
	Domain  string
	Service string
	Params  map[string]any
}

// Route translates a planner action into a provider call. Three device kinds exist:
// select-mode (humidifier intensity), numeric-setpoint (fan and light power) and
// climate-setpoint (heater).
func Route(a entities.Action, ents Entities) (Command, error) {
	switch a.Device {
	case entities.DeviceHumidifier:
		switch a.Verb {
		case entities.VerbSetIntensity:
			if a.Params.TargetIntensity == nil {
				break
			}
			return Command{
				Domain:  DomainOf(ents.HumidifierIntensity, "select"),
				Service: "select_option",
				Params: map[string]any{
					"entity_id": ents.HumidifierIntensity,
					"option":    strconv.Itoa(int(*a.Params.TargetIntensity)),
				},
			}, nil
		case entities.VerbTurnOff, entities.VerbTurnOn:
			return Command{
				Domain:  DomainOf(ents.Humidifier, "humidifier"),
				Service: a.Verb,
				Params:  map[string]any{"entity_id": ents.Humidifier},
			}, nil
		}
	case entities.DeviceExhaustFan, entities.DeviceLight:
		entity := ents.ExhaustFan
		if a.Device == entities.DeviceLight {
			entity = ents.Light
		}
		switch a.Verb {
		case entities.VerbSetPower:
			if a.Params.ToPower == nil {
				break
			}
			return numeric(entity, *a.Params.ToPower), nil
		case entities.VerbTurnOff:
			return numeric(entity, 0), nil
		}
	case entities.DeviceHeater:
		switch a.Verb {
		case entities.VerbSetTemperature:
			if a.Params.ToTemp == nil {
				break
			}
			return Command{
				Domain:  DomainOf(ents.Heater, "climate"),
				Service: "set_temperature",
				Params:  map[string]any{"entity_id": ents.Heater, "temperature": *a.Params.ToTemp},
			}, nil
		case entities.VerbTurnOff, entities.VerbTurnOn:
			return Command{
				Domain:  DomainOf(ents.Heater, "climate"),
				Service: a.Verb,
				Params:  map[string]any{"entity_id": ents.Heater},
			}, nil
		}
	}
	return Command{}, fmt.Errorf("%w: %s", ErrUnroutable, a)
}

// SetValue is the numeric-setpoint call used for any "<domain>.<name>" entity.
func SetValue(entity string, value float64) Command { return numeric(entity, value) }

func numeric(entity string, value float64) Command {
	return Command{
		Domain:  DomainOf(entity, "number"),
		Service: "set_value",
		Params:  map[string]any{"entity_id": entity, "value": value},
	}
}

// DomainOf returns the part of an entity id before the first dot.
func DomainOf(entity, def string) string {
	if i := strings.IndexByte(entity, '.'); i > 0 {
		return entity[:i]
	}
	return def
}
