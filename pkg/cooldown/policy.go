package cooldown

import (
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

const (
	// IntensityKey is shared by every humidifier intensity change.
	IntensityKey = "humidifier:intensity"

	defaultIntensityWindow = 5 * time.Minute
	defaultExtendedWindow  = 30 * time.Minute
)

// Policy holds the static cooldown table.
type Policy struct {
	Base      map[entities.Device]time.Duration `yaml:"base"`
	Intensity time.Duration                     `yaml:"intensity"`
	// Extended replaces the base window of a key after a vendor rate-limit response.
	Extended time.Duration `yaml:"extended"`
}

func DefaultPolicy() Policy {
	return Policy{
		Base: map[entities.Device]time.Duration{
			entities.DeviceHumidifier: 120 * time.Second,
			entities.DeviceExhaustFan: 60 * time.Second,
			entities.DeviceHeater:     30 * time.Second,
			entities.DeviceLight:      10 * time.Second,
		},
		Intensity: defaultIntensityWindow,
		Extended:  defaultExtendedWindow,
	}
}

// KeyFor returns "<device>:<verb>".
func KeyFor(a entities.Action) string { return string(a.Device) + ":" + a.Verb }

// IsIntensity reports whether the action also falls under IntensityKey.
func IsIntensity(a entities.Action) bool {
	return a.Device == entities.DeviceHumidifier && a.Verb == entities.VerbSetIntensity
}

// BaseFor falls back to the default table for devices missing from p.Base.
func (p Policy) BaseFor(d entities.Device) time.Duration {
	if v, ok := p.Base[d]; ok && v > 0 {
		return v
	}
	if v, ok := DefaultPolicy().Base[d]; ok {
		return v
	}
	return 30 * time.Second
}

func (p Policy) IntensityWindow() time.Duration {
	if p.Intensity > 0 {
		return p.Intensity
	}
	return defaultIntensityWindow
}

func (p Policy) ExtendedWindow() time.Duration {
	if p.Extended > 0 {
		return p.Extended
	}
	return defaultExtendedWindow
}
