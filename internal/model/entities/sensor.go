package entities

import "time"

// SensorSnapshot is one control cycle's view of the room. A nil reading is unknown
// (sensor offline or stale) and is never treated as zero.
type SensorSnapshot struct {
	Temperature *float64  `json:"temperature"` // °F
	Humidity    *float64  `json:"humidity"`    // % RH, 0-100
	VPD         *float64  `json:"vpd"`         // kPa
	Timestamp   time.Time `json:"timestamp"`
}

func NewSnapshot(temp, humidity, vpd float64) SensorSnapshot {
	return SensorSnapshot{
		Temperature: Known(temp),
		Humidity:    Known(humidity),
		VPD:         Known(vpd),
	}
}

// Known wraps a reading that is present.
func Known(v float64) *float64 { return &v }
