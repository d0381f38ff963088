package entities

import "time"

type Device string

const (
	DeviceHumidifier Device = "humidifier"
	DeviceExhaustFan Device = "exhaust_fan"
	DeviceHeater     Device = "heater"
	DeviceLight      Device = "light"
)

// Devices lists every actuator kind in a stable order.
var Devices = []Device{DeviceHumidifier, DeviceExhaustFan, DeviceHeater, DeviceLight}

const (
	ModeOn  = "on"
	ModeOff = "off"
)

// MaxPower is the top of the 0..10 power/intensity scale shared by fan and humidifier.
const MaxPower = 10.0

// Ownership tells whether the controller may dispatch an action itself or only recommend it.
type Ownership string

const (
	ControllerOwned  Ownership = "controller"
	ExternalAppOwned Ownership = "external_app"
)

// ActuatorState is a read-only snapshot of an actuator at analysis time.
type ActuatorState struct {
	Device       Device    `json:"device"`
	Mode         string    `json:"mode"`
	CurrentPower float64   `json:"current_power"`
	Setpoint     *float64  `json:"setpoint,omitempty"` // climate devices only
	ReportedAt   time.Time `json:"reported_at"`
}

func (s ActuatorState) IsOn() bool { return s.Mode != "" && s.Mode != ModeOff }

// ActuatorStates is keyed by device; a missing entry means the state is unknown.
type ActuatorStates map[Device]ActuatorState
