package messages

import (
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

// ActuatorStateChanged is published by the provider bridge on actuator/state/{device}.
type ActuatorStateChanged struct {
	Device       entities.Device `json:"device"`
	Mode         string          `json:"mode"`
	CurrentPower float64         `json:"current_power"`
	Setpoint     *float64        `json:"setpoint,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}
