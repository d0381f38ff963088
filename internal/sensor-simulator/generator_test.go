package sensor_simulator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
	"github.com/LeonardoBeccarini/climate_controller/internal/model/messages"
	"github.com/LeonardoBeccarini/climate_controller/pkg/rabbitmq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRoomLeaksTowardsAmbient(t *testing.T) {
	m := NewRoomModel(1, 0)
	m.SetAmbient(50, 30)
	m.SetIndoor(75, 60)

	m.Step(t0)
	temp, rh := m.Step(t0.Add(10 * time.Minute))
	assert.Less(t, temp, 75.0)
	assert.Greater(t, temp, 50.0)
	assert.Less(t, rh, 60.0)
}

func TestFanSpeedsUpExchange(t *testing.T) {
	still := NewRoomModel(1, 0)
	vented := NewRoomModel(1, 0)
	for _, m := range []*RoomModel{still, vented} {
		m.SetAmbient(50, 30)
		m.SetIndoor(75, 60)
		m.Step(t0)
	}
	vented.ApplyState(messages.ActuatorStateChanged{Device: entities.DeviceExhaustFan, Mode: entities.ModeOn, CurrentPower: 8})

	stillT, _ := still.Step(t0.Add(5 * time.Minute))
	ventT, _ := vented.Step(t0.Add(5 * time.Minute))
	assert.Less(t, ventT, stillT)
}

func TestHeaterStopsAtSetpoint(t *testing.T) {
	m := NewRoomModel(1, 0)
	m.SetAmbient(70, 50)
	m.SetIndoor(70, 50)
	m.ApplyState(messages.ActuatorStateChanged{Device: entities.DeviceHeater, Mode: "heat", Setpoint: entities.Known(74)})

	m.Step(t0)
	temp, _ := m.Step(t0.Add(time.Minute))
	assert.InDelta(t, 70.8, temp, 1e-9)

	for i := 2; i <= 60; i++ {
		temp, _ = m.Step(t0.Add(time.Duration(i) * time.Minute))
	}
	assert.LessOrEqual(t, temp, 74.0)
	assert.Greater(t, temp, 72.0)
}

func TestHumidifierRaisesHumidity(t *testing.T) {
	m := NewRoomModel(1, 0)
	m.SetAmbient(70, 40)
	m.SetIndoor(70, 40)
	m.ApplyState(messages.ActuatorStateChanged{Device: entities.DeviceHumidifier, Mode: entities.ModeOn, CurrentPower: 5})

	m.Step(t0)
	_, rh := m.Step(t0.Add(2 * time.Minute))
	assert.InDelta(t, 46.0, rh, 1e-9)

	for i := 3; i < 600; i++ {
		_, rh = m.Step(t0.Add(time.Duration(i) * time.Minute))
	}
	assert.LessOrEqual(t, rh, 100.0)
}

func TestNextEmitsBothMetrics(t *testing.T) {
	m := NewRoomModel(7, 0)
	m.SetIndoor(72.04, 55.06)
	rs := m.Next("s1", t0)
	require.Len(t, rs, 2)
	assert.Equal(t, "temperature", rs[0].Metric)
	assert.Equal(t, 72.0, rs[0].Value)
	assert.Equal(t, "humidity", rs[1].Metric)
	assert.Equal(t, 55.1, rs[1].Value)
	assert.Equal(t, "s1", rs[1].SensorID)
}

func TestAmbientClient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "imperial", r.URL.Query().Get("units"))
		assert.Equal(t, "k", r.URL.Query().Get("appid"))
		_, _ = w.Write([]byte(`{"main":{"temp":58.3,"humidity":71}}`))
	}))
	defer srv.Close()

	c := NewAmbientClient("k")
	c.BaseURL = srv.URL
	temp, rh, err := c.Current(context.Background(), 41.9, 12.5)
	require.NoError(t, err)
	assert.Equal(t, 58.3, temp)
	assert.Equal(t, 71.0, rh)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAmbientClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewAmbientClient("bad")
	c.BaseURL = srv.URL
	_, _, err := c.Current(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())

	_, _, err = NewAmbientClient("").Current(context.Background(), 0, 0)
	assert.Error(t, err)
}

type capturePublisher struct {
	topics []string
	msgs   []messages.SensorReading
}

var _ rabbitmq.IPublisher = (*capturePublisher)(nil)

func (p *capturePublisher) PublishMessage(message any) error { return p.PublishTo("", 0, false, message) }
func (p *capturePublisher) PublishTo(topic string, _ byte, _ bool, message any) error {
	p.topics = append(p.topics, topic)
	p.msgs = append(p.msgs, message.(messages.SensorReading))
	return nil
}
func (p *capturePublisher) Close() {}

func TestSimulatorAppliesStatesAndPublishes(t *testing.T) {
	model := NewRoomModel(1, 0)
	pub := &capturePublisher{}
	sim := NewRoomSimulator(nil, pub, model, "s1", nil)
	sim.clock = func() time.Time { return t0 }

	payload := []byte(`{"mode":"on","current_power":4}`)
	require.NoError(t, sim.HandlePayload("actuator/state/humidifier", payload))
	// redelivery is ignored
	require.NoError(t, sim.HandlePayload("actuator/state/humidifier", payload))
	assert.Equal(t, 4.0, model.states[entities.DeviceHumidifier].CurrentPower)

	assert.Error(t, sim.HandlePayload("actuator/state/heater", []byte(`not json`)))

	sim.PublishOnce()
	assert.Equal(t, []string{"sensor/data/temperature", "sensor/data/humidity"}, pub.topics)
}
