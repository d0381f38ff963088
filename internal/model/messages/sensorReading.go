package messages

import "time"

// SensorReading is a single raw reading published by the provider bridge on
// sensor/data/{metric}.
type SensorReading struct {
	SensorID  string    `json:"sensor_id"`
	Metric    string    `json:"metric"` // temperature | humidity | vpd
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
