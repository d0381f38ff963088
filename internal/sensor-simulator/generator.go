package sensor_simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	"github.com/cenkalti/backoff/v4"
)

// Tunables, per minute.
const (
	leakBase     = 0.02  // fraction of the indoor/outdoor gap closed with the fan off
	leakPerFan   = 0.015 // extra fraction per fan power step
	heaterGain   = 0.8   // °F while below setpoint
	lightGain    = 0.05  // °F per light power step
	humidGain    = 0.6   // % RH per humidifier intensity step
	defaultTemp  = 72.0
	defaultRH    = 55.0
	ambientTemp  = 62.0
	ambientRH    = 45.0
	owmURLFormat = "%s/data/2.5/weather?lat=%f&lon=%f&units=imperial&appid=%s"
)

// RoomModel is a first-order thermal and moisture model of a grow room driven by its
// actuators. It is good enough to close the loop in local runs, not to predict anything.
type RoomModel struct {
	mu       sync.Mutex
	temp, rh float64
	outTemp  float64
	outRH    float64
	states   entities.ActuatorStates
	last     time.Time
	noise    float64
	rnd      *rand.Rand
}

func NewRoomModel(seed int64, noise float64) *RoomModel {
	return &RoomModel{
		temp:    defaultTemp,
		rh:      defaultRH,
		outTemp: ambientTemp,
		outRH:   ambientRH,
		states:  entities.ActuatorStates{},
		noise:   math.Max(0, noise),
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

// SetAmbient sets the outdoor conditions the room leaks towards.
func (m *RoomModel) SetAmbient(tempF, rh float64) {
	m.mu.Lock()
	m.outTemp, m.outRH = tempF, clampRH(rh)
	m.mu.Unlock()
}

func (m *RoomModel) Ambient() (tempF, rh float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outTemp, m.outRH
}

// SetIndoor overrides the current room conditions.
func (m *RoomModel) SetIndoor(tempF, rh float64) {
	m.mu.Lock()
	m.temp, m.rh = tempF, clampRH(rh)
	m.mu.Unlock()
}

// ApplyState records the latest reported state of one actuator.
func (m *RoomModel) ApplyState(s messages.ActuatorStateChanged) {
	m.mu.Lock()
	m.states[s.Device] = entities.ActuatorState{
		Device:       s.Device,
		Mode:         s.Mode,
		CurrentPower: s.CurrentPower,
		Setpoint:     s.Setpoint,
		ReportedAt:   s.Timestamp,
	}
	m.mu.Unlock()
}

// Step advances the model to now and returns the true conditions.
func (m *RoomModel) Step(now time.Time) (tempF, rh float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last.IsZero() {
		m.last = now
		return m.temp, m.rh
	}
	dt := now.Sub(m.last).Minutes()
	m.last = now
	if dt <= 0 {
		return m.temp, m.rh
	}

	fan := m.power(entities.DeviceExhaustFan)
	leak := math.Min(1, (leakBase+leakPerFan*fan)*dt)

	heat := lightGain * m.power(entities.DeviceLight) * dt
	if h, ok := m.states[entities.DeviceHeater]; ok && h.IsOn() && h.Setpoint != nil && m.temp < *h.Setpoint {
		heat += math.Min(heaterGain*dt, *h.Setpoint-m.temp)
	}
	m.temp += leak*(m.outTemp-m.temp) + heat

	moist := 0.0
	if h, ok := m.states[entities.DeviceHumidifier]; ok && h.IsOn() {
		moist = humidGain * h.CurrentPower * dt
	}
	m.rh = clampRH(m.rh + leak*(m.outRH-m.rh) + moist)
	return m.temp, m.rh
}

func (m *RoomModel) power(d entities.Device) float64 {
	if s, ok := m.states[d]; ok && s.IsOn() {
		return s.CurrentPower
	}
	return 0
}

// Next steps the model and returns one noisy reading per metric.
func (m *RoomModel) Next(sensorID string, now time.Time) []messages.SensorReading {
	temp, rh := m.Step(now)
	m.mu.Lock()
	temp += m.rnd.NormFloat64() * m.noise
	rh += m.rnd.NormFloat64() * m.noise
	m.mu.Unlock()
	return []messages.SensorReading{
		{SensorID: sensorID, Metric: "temperature", Value: round1(temp), Timestamp: now},
		{SensorID: sensorID, Metric: "humidity", Value: round1(clampRH(rh)), Timestamp: now},
	}
}

type owmCurrent struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
}

// AmbientClient fetches outdoor conditions once at startup.
type AmbientClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries uint64
}

func NewAmbientClient(apiKey string) *AmbientClient {
	return &AmbientClient{
		BaseURL:    "https://api.openweathermap.org",
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 8 * time.Second},
		MaxRetries: 2,
	}
}

// Current returns outdoor temperature (°F) and relative humidity. 429 and 5xx are retried.
func (c *AmbientClient) Current(ctx context.Context, lat, lon float64) (tempF, rh float64, err error) {
	if c.APIKey == "" {
		return 0, 0, fmt.Errorf("missing api key")
	}
	url := fmt.Sprintf(owmURLFormat, c.BaseURL, lat, lon, c.APIKey)

	var out owmCurrent
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
				return backoff.Permanent(err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("owm status %d", resp.StatusCode)
		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			return backoff.Permanent(fmt.Errorf("owm status %d: %s", resp.StatusCode, string(b)))
		}
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.MaxRetries), ctx)); err != nil {
		return 0, 0, err
	}
	return out.Main.Temp, clampRH(out.Main.Humidity), nil
}

func clampRH(x float64) float64 { return math.Max(0, math.Min(100, x)) }

func round1(x float64) float64 { return math.Round(x*10) / 10 }
